package indexer

import "github.com/defistate/dexarb/engine"

// IndexedPools defines the methods for accessing an immutable, indexed pool set.
type IndexedPools interface {
	GetByID(id string) (engine.Pool, bool)
	GetByToken(token engine.PoolToken) []engine.Pool
	All() []engine.Pool
}
