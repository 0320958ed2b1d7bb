package poolregistry

import (
	"sort"
	"sync"

	"github.com/defistate/dexarb/engine"
)

// key scopes a pool id to its exchange; two exchanges may reuse an id.
type key struct {
	dex    engine.DexName
	poolID string
}

// Registry holds the latest observed state of every pool, keyed by (dex, poolID).
// Entries are created on first observation and never evicted.
// It is safe for concurrent use; writes are expected from a single pipeline.
type Registry struct {
	mu    sync.RWMutex
	pools map[key]engine.PersistedPoolData
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		pools: make(map[key]engine.PersistedPoolData),
	}
}

// Get returns the stored pool for (dex, poolID).
func (r *Registry) Get(dex engine.DexName, poolID string) (engine.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[key{dex, poolID}]
	return p.Pool, ok
}

// Height returns the height at which (dex, poolID) was last changed.
func (r *Registry) Height(dex engine.DexName, poolID string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[key{dex, poolID}]
	return p.Height, ok
}

// Upsert stores pool at height and reports whether the stored value changed.
//
// The first observation of a key always stores. Afterwards a write happens
// only when the height is strictly greater AND the pool changed (see Changed);
// anything else is a no-op.
func (r *Registry) Upsert(dex engine.DexName, poolID string, pool engine.Pool, height uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{dex, poolID}
	if !r.storesLocked(k, pool, height) {
		return false
	}
	pool.ID = poolID
	pool.Dex = dex
	r.pools[k] = engine.PersistedPoolData{Pool: pool, Height: height}
	return true
}

// WouldStore reports whether Upsert would write pool at height, without writing.
func (r *Registry) WouldStore(dex engine.DexName, poolID string, pool engine.Pool, height uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.storesLocked(key{dex, poolID}, pool, height)
}

func (r *Registry) storesLocked(k key, pool engine.Pool, height uint64) bool {
	existing, ok := r.pools[k]
	if !ok {
		return true
	}
	return height > existing.Height && Changed(existing.Pool, pool)
}

// All returns a copy of every pool of one exchange, sorted by pool id.
func (r *Registry) All(dex engine.DexName) []engine.Pool {
	r.mu.RLock()
	out := make([]engine.Pool, 0, len(r.pools))
	for k, p := range r.pools {
		if k.dex == dex {
			out = append(out, p.Pool)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of pools stored for one exchange.
func (r *Registry) Len(dex engine.DexName) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.pools {
		if k.dex == dex {
			n++
		}
	}
	return n
}
