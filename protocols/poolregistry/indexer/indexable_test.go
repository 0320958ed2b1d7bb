package indexer

import (
	"testing"

	"github.com/defistate/dexarb/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexablePools(t *testing.T) {
	// --- Test Data Setup ---
	testPools := []engine.Pool{
		{ID: "1", Token0ID: "uatom", Token1ID: "uosmo", Token0Amount: decimal.NewFromInt(10), Token1Amount: decimal.NewFromInt(20)},
		{ID: "2", Token0ID: "uosmo", Token1ID: "uusdc", Token0Amount: decimal.NewFromInt(30), Token1Amount: decimal.NewFromInt(40)},
	}

	t.Run("Indexer Factory and Method", func(t *testing.T) {
		idx := New()
		require.NotNil(t, idx)

		view := idx.Index(testPools)
		require.NotNil(t, view)
		assert.Equal(t, 2, len(view.All()))
	})

	view := NewIndexablePools(testPools)

	t.Run("Successful Lookups", func(t *testing.T) {
		pool, found := view.GetByID("2")
		assert.True(t, found)
		assert.Equal(t, engine.PoolToken("uusdc"), pool.Token1ID)

		osmoPools := view.GetByToken("uosmo")
		assert.Len(t, osmoPools, 2)
		assert.Len(t, view.GetByToken("uatom"), 1)
	})

	t.Run("Not Found Lookups", func(t *testing.T) {
		_, found := view.GetByID("999")
		assert.False(t, found)
		assert.Empty(t, view.GetByToken("uion"))
	})

	t.Run("All Method", func(t *testing.T) {
		allPools := view.All()
		require.Len(t, allPools, 2)

		allPools[0].ID = "hacked"
		original, found := view.GetByID("1")
		assert.True(t, found)
		assert.Equal(t, "1", original.ID)
		assert.Equal(t, "1", view.All()[0].ID)
	})

	t.Run("Edge Case - Empty View", func(t *testing.T) {
		empty := NewIndexablePools(nil)
		_, found := empty.GetByID("1")
		assert.False(t, found)
		assert.Len(t, empty.All(), 0)
	})
}
