package indexer

import (
	"github.com/defistate/dexarb/engine"
	tokenregistry "github.com/defistate/dexarb/protocols/tokenregistry"
)

// Indexer builds IndexedTokenSystem values.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed token table from a raw slice of tokens.
func (i *Indexer) Index(tokens []tokenregistry.Token) IndexedTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

type denomKey struct {
	dex   engine.DexName
	denom engine.PoolToken
}

type symbolKey struct {
	dex    engine.DexName
	symbol engine.Token
}

// IndexableTokenSystem provides fast, indexed access to the token table.
type IndexableTokenSystem struct {
	byDenom  map[denomKey]tokenregistry.Token
	bySymbol map[symbolKey]tokenregistry.Token
	all      []tokenregistry.Token
}

// NewIndexableTokenSystem creates a new indexed token table. When several
// denoms of one exchange share a symbol, the first one listed is primary.
func NewIndexableTokenSystem(tokens []tokenregistry.Token) *IndexableTokenSystem {
	byDenom := make(map[denomKey]tokenregistry.Token, len(tokens))
	bySymbol := make(map[symbolKey]tokenregistry.Token, len(tokens))

	for _, t := range tokens {
		byDenom[denomKey{t.Dex, t.Denom}] = t
		sk := symbolKey{t.Dex, t.Symbol}
		if _, exists := bySymbol[sk]; !exists {
			bySymbol[sk] = t
		}
	}

	all := make([]tokenregistry.Token, len(tokens))
	copy(all, tokens)

	return &IndexableTokenSystem{
		byDenom:  byDenom,
		bySymbol: bySymbol,
		all:      all,
	}
}

// GetByDenom resolves an exchange local denom to its token record.
func (its *IndexableTokenSystem) GetByDenom(dex engine.DexName, denom engine.PoolToken) (tokenregistry.Token, bool) {
	t, ok := its.byDenom[denomKey{dex, denom}]
	return t, ok
}

// GetBySymbol returns the primary token record of a symbol on an exchange.
func (its *IndexableTokenSystem) GetBySymbol(dex engine.DexName, symbol engine.Token) (tokenregistry.Token, bool) {
	t, ok := its.bySymbol[symbolKey{dex, symbol}]
	return t, ok
}

// All returns a defensive copy of the slice of all tokens in the system.
func (its *IndexableTokenSystem) All() []tokenregistry.Token {
	allCopy := make([]tokenregistry.Token, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
