package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/dexarb/differ"
	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/protocols/poolregistry"
)

// PatcherFunc builds an exchange's new pool set from its previous set and the
// pools that changed.
//
// CONTRACT:
//  1. Immutability: implementations MUST NOT mutate prevState.
//  2. nil handling: prevState is nil the first time an exchange is patched.
type PatcherFunc func(prevState []engine.Pool, changed []engine.Pool) (newState []engine.Pool, err error)

// Config maps exchanges to patcher functions. Exchanges without an entry use
// DefaultPatcher.
type Config struct {
	Patchers map[engine.DexName]PatcherFunc
}

func (c *Config) validate() error {
	for dex, patcher := range c.Patchers {
		if patcher == nil {
			return fmt.Errorf("config: patcher for %s cannot be nil", dex)
		}
	}
	return nil
}

// DefaultPatcher replaces pools by id and keeps the set sorted by id.
func DefaultPatcher(prevState []engine.Pool, changed []engine.Pool) ([]engine.Pool, error) {
	return poolregistry.Patcher(prevState, changed), nil
}

// SnapshotPatcher applies PoolDiffs to snapshots.
type SnapshotPatcher struct {
	patchers map[engine.DexName]PatcherFunc
}

// New constructs a SnapshotPatcher from a configuration.
func New(cfg *Config) (*SnapshotPatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	patchers := make(map[engine.DexName]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}
	return &SnapshotPatcher{patchers: patchers}, nil
}

// Patch creates a new Snapshot by applying diff to old, which may be nil.
// Exchanges the diff does not touch are shared with old by reference; the
// patched exchange gets a fresh pool slice. old is never modified.
func (p *SnapshotPatcher) Patch(old *engine.Snapshot, diff *differ.PoolDiff) (*engine.Snapshot, error) {
	if diff == nil {
		return nil, errors.New("patcher: nil diff")
	}
	if h := old.HeightOf(diff.Dex); h != diff.FromHeight {
		return nil, fmt.Errorf("patcher: mismatch fromHeight for %s (snapshot=%d, diff=%d)", diff.Dex, h, diff.FromHeight)
	}

	patcherFunc, ok := p.patchers[diff.Dex]
	if !ok {
		patcherFunc = DefaultPatcher
	}

	var (
		pools   = make(map[engine.DexName][]engine.Pool)
		heights = make(map[engine.DexName]uint64)
	)
	if old != nil {
		for k, v := range old.Pools {
			pools[k] = v
		}
		for k, v := range old.Heights {
			heights[k] = v
		}
	}

	newPools, err := patcherFunc(pools[diff.Dex], diff.Changed)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch %s: %w", diff.Dex, err)
	}
	pools[diff.Dex] = newPools
	heights[diff.Dex] = diff.ToHeight

	return &engine.Snapshot{
		Pools:   pools,
		Heights: heights,
		Updated: diff.Dex,
		Changed: diff.Changed,
	}, nil
}
