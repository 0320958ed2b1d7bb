package indexer

import (
	"testing"

	"github.com/defistate/dexarb/engine"
	tokenregistry "github.com/defistate/dexarb/protocols/tokenregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableTokenSystem(t *testing.T) {
	tokens := []tokenregistry.Token{
		{Symbol: "ATOM", Dex: engine.DexOsmosis, Denom: "ibc/27394FB0", Decimals: 6},
		{Symbol: "ATOM", Dex: engine.DexOsmosis, Denom: "ibc/A8C2D23A", Decimals: 6},
		{Symbol: "ATOM", Dex: engine.DexShade, Denom: "secret19e75", Decimals: 6},
		{Symbol: "SCRT", Dex: engine.DexShade, Denom: "secret1k0jn", Decimals: 6},
	}

	system := New().Index(tokens)
	require.NotNil(t, system)

	t.Run("many denoms map to one symbol", func(t *testing.T) {
		a, ok := system.GetByDenom(engine.DexOsmosis, "ibc/27394FB0")
		require.True(t, ok)
		b, ok := system.GetByDenom(engine.DexOsmosis, "ibc/A8C2D23A")
		require.True(t, ok)
		assert.Equal(t, a.Symbol, b.Symbol)
	})

	t.Run("primary denom is the first listed", func(t *testing.T) {
		tok, ok := system.GetBySymbol(engine.DexOsmosis, "ATOM")
		require.True(t, ok)
		assert.Equal(t, engine.PoolToken("ibc/27394FB0"), tok.Denom)

		tok, ok = system.GetBySymbol(engine.DexShade, "ATOM")
		require.True(t, ok)
		assert.Equal(t, engine.PoolToken("secret19e75"), tok.Denom)
	})

	t.Run("lookups are scoped by exchange", func(t *testing.T) {
		_, ok := system.GetBySymbol(engine.DexOsmosis, "SCRT")
		assert.False(t, ok)
		_, ok = system.GetByDenom(engine.DexOsmosis, "secret1k0jn")
		assert.False(t, ok)
	})

	t.Run("All is a defensive copy", func(t *testing.T) {
		all := system.All()
		require.Len(t, all, 4)
		all[0].Symbol = "HACKED"
		assert.Equal(t, engine.Token("ATOM"), system.All()[0].Symbol)
	})
}
