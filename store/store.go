package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/dexarb/chains"
	"github.com/defistate/dexarb/differ"
	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/patcher"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNotAttached is returned when an update names an exchange that was never attached.
	ErrNotAttached = errors.New("exchange not attached")
	// ErrAlreadyAttached is returned when an exchange is attached twice.
	ErrAlreadyAttached = errors.New("exchange already attached")
	// ErrRunning is returned by Attach and Run once the store is running.
	ErrRunning = errors.New("store is running")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the store.
type Config struct {
	Logger               Logger
	PrometheusRegisterer prometheus.Registerer

	// BufferSize is the capacity of the snapshot channel.
	BufferSize uint
	// DebounceInterval coalesces snapshots produced within the interval into
	// the latest one. Zero emits every snapshot.
	DebounceInterval time.Duration
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PrometheusRegisterer == nil {
		return errors.New("config: PrometheusRegisterer is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.DebounceInterval < 0 {
		return errors.New("config: DebounceInterval must not be negative")
	}
	return nil
}

// Option configures the Store.
type Option interface {
	apply(*Store)
}

type funcOption func(*Store)

func (f funcOption) apply(s *Store) {
	f(s)
}

func newOption(f func(*Store)) Option {
	return funcOption(f)
}

// WithPatcher replaces the pool set patcher of one exchange.
func WithPatcher(dex engine.DexName, fn patcher.PatcherFunc) Option {
	return newOption(func(s *Store) {
		s.patchers[dex] = fn
	})
}

// Store merges the update streams of every attached exchange into one
// combined Snapshot.
//
// Each exchange is height gated independently: an update is accepted only if
// its height is strictly greater than the last accepted height of that
// exchange. Nothing is emitted until every attached exchange has had one
// update accepted; after that every accepted update produces a snapshot.
type Store struct {
	logger   Logger
	metrics  *metrics
	debounce time.Duration

	differ   *differ.PoolDiffer
	patcher  *patcher.SnapshotPatcher
	patchers map[engine.DexName]patcher.PatcherFunc

	mu       sync.Mutex
	running  bool
	adapters []chains.Adapter
	attached map[engine.DexName]bool // dex -> has an accepted update
	latest   *engine.Snapshot

	snapshotCh chan engine.Snapshot
}

// New creates a Store.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d, err := differ.New(&differ.Config{Registry: cfg.PrometheusRegisterer, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create differ: %w", err)
	}
	m, err := newMetrics(cfg.PrometheusRegisterer)
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger:     cfg.Logger,
		metrics:    m,
		debounce:   cfg.DebounceInterval,
		differ:     d,
		patchers:   make(map[engine.DexName]patcher.PatcherFunc),
		attached:   make(map[engine.DexName]bool),
		snapshotCh: make(chan engine.Snapshot, cfg.BufferSize),
	}
	for _, opt := range opts {
		opt.apply(s)
	}

	p, err := patcher.New(&patcher.Config{Patchers: s.patchers})
	if err != nil {
		return nil, fmt.Errorf("failed to create patcher: %w", err)
	}
	s.patcher = p
	return s, nil
}

// Attach registers an exchange adapter. It must be called before Run.
func (s *Store) Attach(adapter chains.Adapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}
	dex := adapter.Dex()
	if _, ok := s.attached[dex]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, dex)
	}
	s.attached[dex] = false
	s.adapters = append(s.adapters, adapter)
	s.logger.Info("Exchange attached", "dex", dex)
	return nil
}

// Snapshots returns the combined snapshot stream. It is closed when Run returns.
func (s *Store) Snapshots() <-chan engine.Snapshot {
	return s.snapshotCh
}

// Latest returns the most recent combined snapshot, if every attached
// exchange has produced one accepted update.
func (s *Store) Latest() (engine.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil || !s.readyLocked() {
		return engine.Snapshot{}, false
	}
	return *s.latest, true
}

// Apply processes one update of an attached exchange synchronously.
//
// It returns the new combined snapshot and true when the update was accepted
// and every attached exchange is warm. Stale heights are absorbed: they
// return false and a nil error. A failed update changes nothing, so a later
// update of the same exchange is applied as if it had never arrived.
func (s *Store) Apply(dex engine.DexName, update engine.PoolUpdate) (engine.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attached[dex]; !ok {
		return engine.Snapshot{}, false, fmt.Errorf("%w: %s", ErrNotAttached, dex)
	}

	diff, err := s.differ.Prepare(dex, update)
	if errors.Is(err, differ.ErrStaleHeight) {
		return engine.Snapshot{}, false, nil
	}
	if err != nil {
		return engine.Snapshot{}, false, err
	}

	// the differ only advances once the snapshot has, so a failed patch leaves
	// the exchange at its previous height
	next, err := s.patcher.Patch(s.latest, diff)
	if err != nil {
		return engine.Snapshot{}, false, err
	}
	if err := s.differ.Commit(diff); err != nil {
		return engine.Snapshot{}, false, err
	}
	s.latest = next
	s.attached[dex] = true

	s.logger.Debug("Update accepted", "dex", dex, "height", update.Height, "pools", len(update.Pools), "changed", len(diff.Changed))

	if !s.readyLocked() {
		return engine.Snapshot{}, false, nil
	}
	return *next, true, nil
}

func (s *Store) readyLocked() bool {
	for _, warm := range s.attached {
		if !warm {
			return false
		}
	}
	return len(s.attached) > 0
}

type taggedUpdate struct {
	dex    engine.DexName
	update engine.PoolUpdate
}

// Run consumes every attached adapter until ctx is cancelled or all adapter
// channels are closed. An adapter that stops emitting only freezes its own
// exchange in the combined view.
func (s *Store) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	adapters := append([]chains.Adapter(nil), s.adapters...)
	s.mu.Unlock()

	defer close(s.snapshotCh)

	incoming := make(chan taggedUpdate)
	var wg sync.WaitGroup
	for _, adapter := range adapters {
		wg.Add(1)
		go s.forward(ctx, &wg, adapter, incoming)
	}
	go func() {
		wg.Wait()
		close(incoming)
	}()

	var (
		pending *engine.Snapshot
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	s.logger.Info("Store started", "exchanges", len(adapters))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Store stopped")
			return nil

		case u, ok := <-incoming:
			if !ok {
				if pending != nil {
					s.publish(*pending)
				}
				s.logger.Warn("Every adapter channel closed, store stopped")
				return nil
			}

			snapshot, ready, err := s.Apply(u.dex, u.update)
			if err != nil {
				s.logger.Error("Failed to apply update", "dex", u.dex, "height", u.update.Height, "err", err)
				continue
			}
			if !ready {
				continue
			}

			if s.debounce == 0 {
				s.publish(snapshot)
				continue
			}
			if pending != nil {
				s.metrics.snapshotsCoalesced.Inc()
			}
			pending = &snapshot
			if timer == nil {
				timer = time.NewTimer(s.debounce)
				timerC = timer.C
			}

		case <-timerC:
			timer, timerC = nil, nil
			if pending != nil {
				s.publish(*pending)
				pending = nil
			}
		}
	}
}

func (s *Store) forward(ctx context.Context, wg *sync.WaitGroup, adapter chains.Adapter, out chan<- taggedUpdate) {
	defer wg.Done()
	dex := adapter.Dex()
	updates := adapter.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				s.logger.Warn("Adapter channel closed", "dex", dex)
				return
			}
			select {
			case out <- taggedUpdate{dex: dex, update: update}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// publish sends snapshot without blocking. When the buffer is full the oldest
// buffered snapshot is discarded; Run is the only sender.
func (s *Store) publish(snapshot engine.Snapshot) {
	select {
	case s.snapshotCh <- snapshot:
		s.metrics.snapshotsEmitted.Inc()
		return
	default:
	}

	select {
	case <-s.snapshotCh:
		s.metrics.snapshotsDiscarded.Inc()
		s.logger.Warn("Snapshot buffer full, discarding oldest snapshot...", "updated", snapshot.Updated)
	default:
	}
	select {
	case s.snapshotCh <- snapshot:
		s.metrics.snapshotsEmitted.Inc()
	default:
		s.metrics.snapshotsDiscarded.Inc()
	}
}
