package indexer

import (
	"github.com/defistate/dexarb/engine"
)

type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed view over one exchange's pool set.
func (i *Indexer) Index(pools []engine.Pool) IndexedPools {
	return NewIndexablePools(pools)
}

// IndexablePools provides fast, indexed access to a pool set.
// The underlying slice is shared and must not be mutated by anyone.
type IndexablePools struct {
	byID    map[string]engine.Pool
	byToken map[engine.PoolToken][]engine.Pool
	all     []engine.Pool
}

// NewIndexablePools indexes pools by id and by token.
func NewIndexablePools(pools []engine.Pool) *IndexablePools {
	byID := make(map[string]engine.Pool, len(pools))
	byToken := make(map[engine.PoolToken][]engine.Pool)

	for _, p := range pools {
		byID[p.ID] = p
		byToken[p.Token0ID] = append(byToken[p.Token0ID], p)
		if p.Token1ID != p.Token0ID {
			byToken[p.Token1ID] = append(byToken[p.Token1ID], p)
		}
	}

	return &IndexablePools{
		byID:    byID,
		byToken: byToken,
		all:     pools,
	}
}

// GetByID retrieves a pool by its id.
func (ip *IndexablePools) GetByID(id string) (engine.Pool, bool) {
	p, ok := ip.byID[id]
	return p, ok
}

// GetByToken returns a defensive copy of the pools trading token.
func (ip *IndexablePools) GetByToken(token engine.PoolToken) []engine.Pool {
	pools := ip.byToken[token]
	out := make([]engine.Pool, len(pools))
	copy(out, pools)
	return out
}

// All returns a defensive copy of the slice of all pools.
func (ip *IndexablePools) All() []engine.Pool {
	allCopy := make([]engine.Pool, len(ip.all))
	copy(allCopy, ip.all)
	return allCopy
}
