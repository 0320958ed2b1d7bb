package indexer

import (
	"github.com/defistate/dexarb/engine"
	tokenregistry "github.com/defistate/dexarb/protocols/tokenregistry"
)

// IndexedTokenSystem defines the methods for accessing the static token table.
type IndexedTokenSystem interface {
	// GetByDenom resolves an exchange local denom.
	GetByDenom(dex engine.DexName, denom engine.PoolToken) (tokenregistry.Token, bool)
	// GetBySymbol returns the primary (first listed) denom of a symbol on an exchange.
	GetBySymbol(dex engine.DexName, symbol engine.Token) (tokenregistry.Token, bool)
	All() []tokenregistry.Token
}
