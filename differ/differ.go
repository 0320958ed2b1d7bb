package differ

import (
	"errors"
	"fmt"
	"sync"

	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/protocols/poolregistry"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrStaleHeight is returned for an update whose height is not strictly
// greater than the last accepted height of its exchange.
var ErrStaleHeight = errors.New("stale height")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolDiff summarizes one accepted exchange update: the height it moves the
// exchange from and to, and the pools whose reserves changed on the way.
type PoolDiff struct {
	Dex        engine.DexName `json:"dex"`
	FromHeight uint64         `json:"fromHeight"`
	ToHeight   uint64         `json:"toHeight"`
	Changed    []engine.Pool  `json:"changed"`
}

// Config holds the dependencies of a PoolDiffer.
type Config struct {
	Registry prometheus.Registerer
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// PoolDiffer turns raw exchange updates into PoolDiffs. It owns the pool
// registry and the last accepted height of every exchange.
type PoolDiffer struct {
	metrics *metrics
	logger  Logger

	mu      sync.Mutex
	pools   *poolregistry.Registry
	heights map[engine.DexName]uint64
}

// New constructs a PoolDiffer from a configuration.
func New(cfg *Config) (*PoolDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}
	return &PoolDiffer{
		metrics: m,
		logger:  cfg.Logger,
		pools:   poolregistry.New(),
		heights: make(map[engine.DexName]uint64),
	}, nil
}

// Diff applies update to the registry and returns what changed. It is
// Prepare followed by Commit.
//
// The first update of an exchange is accepted at any height. Afterwards only
// strictly increasing heights are accepted; anything else returns
// ErrStaleHeight and leaves the registry untouched. An accepted update with no
// moved pools yields a PoolDiff with an empty Changed list.
func (d *PoolDiffer) Diff(dex engine.DexName, update engine.PoolUpdate) (*PoolDiff, error) {
	diff, err := d.Prepare(dex, update)
	if err != nil {
		return nil, err
	}
	if err := d.Commit(diff); err != nil {
		return nil, err
	}
	return diff, nil
}

// Prepare computes the PoolDiff of update against the registry without
// changing any state. The result takes effect only once passed to Commit, so a
// caller that fails to use it can simply drop it.
func (d *PoolDiffer) Prepare(dex engine.DexName, update engine.PoolUpdate) (*PoolDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues(string(dex)))
	defer timer.ObserveDuration()

	d.mu.Lock()
	defer d.mu.Unlock()

	last, seen := d.heights[dex]
	if seen && update.Height <= last {
		d.metrics.updatesDropped.WithLabelValues(string(dex)).Inc()
		d.logger.Debug("Dropping stale update", "dex", dex, "height", update.Height, "last_height", last)
		return nil, fmt.Errorf("%w: %s at %d, last accepted %d", ErrStaleHeight, dex, update.Height, last)
	}

	return &PoolDiff{
		Dex:        dex,
		FromHeight: last,
		ToHeight:   update.Height,
		Changed:    poolregistry.Changes(d.pools, dex, update),
	}, nil
}

// Commit writes a prepared diff to the registry and advances the exchange to
// diff.ToHeight. A diff whose FromHeight no longer matches the exchange height
// was prepared against older state and returns ErrStaleHeight.
func (d *PoolDiffer) Commit(diff *PoolDiff) error {
	if diff == nil {
		return errors.New("differ: nil diff")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	last, seen := d.heights[diff.Dex]
	if seen && (last != diff.FromHeight || diff.ToHeight <= last) {
		return fmt.Errorf("%w: %s diff from %d to %d, last accepted %d", ErrStaleHeight, diff.Dex, diff.FromHeight, diff.ToHeight, last)
	}

	for _, pool := range diff.Changed {
		d.pools.Upsert(diff.Dex, pool.ID, pool, diff.ToHeight)
	}
	d.heights[diff.Dex] = diff.ToHeight

	d.metrics.updatesAccepted.WithLabelValues(string(diff.Dex)).Inc()
	d.metrics.poolsChanged.WithLabelValues(string(diff.Dex)).Add(float64(len(diff.Changed)))
	return nil
}

// Height returns the last accepted height of dex.
func (d *PoolDiffer) Height(dex engine.DexName) (uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.heights[dex]
	return h, ok
}

// Pools returns the registry backing the differ. Callers must treat it as read-only.
func (d *PoolDiffer) Pools() *poolregistry.Registry {
	return d.pools
}
