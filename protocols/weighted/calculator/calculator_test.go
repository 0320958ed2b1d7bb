package calculator

import (
	"testing"

	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/numeric"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightedPool(r0, r1 int64, fee, w0, w1 string) engine.Pool {
	params := engine.XYKParams{Fee: decimal.RequireFromString(fee)}
	if w0 != "" {
		params.Weight0 = decimal.RequireFromString(w0)
		params.Weight1 = decimal.RequireFromString(w1)
	}
	return engine.Pool{
		ID:           "1",
		Token0ID:     "uosmo",
		Token1ID:     "uatom",
		Token0Amount: decimal.NewFromInt(r0),
		Token1Amount: decimal.NewFromInt(r1),
		Kind:         params,
	}
}

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name           string
		amountIn       int64
		tokenIn        engine.PoolToken
		tokenOut       engine.PoolToken
		pool           engine.Pool
		expectedAmount string
		expectedErr    error
	}{
		{
			name:           "unset weights behave as constant product with input fee",
			amountIn:       1000,
			tokenIn:        "uosmo",
			tokenOut:       "uatom",
			pool:           weightedPool(1_000_000, 2_000_000, "0.003", "", ""),
			expectedAmount: "1992",
		},
		{
			name:           "equal weights",
			amountIn:       1000,
			tokenIn:        "uosmo",
			tokenOut:       "uatom",
			pool:           weightedPool(1_000_000, 2_000_000, "0.003", "0.5", "0.5"),
			expectedAmount: "1992",
		},
		{
			name:           "80/20 heavy side in",
			amountIn:       10_000,
			tokenIn:        "uosmo",
			tokenOut:       "uatom",
			pool:           weightedPool(1_000_000, 4_000_000, "0.002", "0.8", "0.2"),
			expectedAmount: "155774",
		},
		{
			name:           "80/20 light side in",
			amountIn:       40_000,
			tokenIn:        "uatom",
			tokenOut:       "uosmo",
			pool:           weightedPool(1_000_000, 4_000_000, "0.002", "0.8", "0.2"),
			expectedAmount: "2479",
		},
		{
			name:        "zero input",
			amountIn:    0,
			tokenIn:     "uosmo",
			tokenOut:    "uatom",
			pool:        weightedPool(1, 1, "0", "", ""),
			expectedErr: ErrInvalidAmount,
		},
		{
			name:        "wrong pair",
			amountIn:    1,
			tokenIn:     "uosmo",
			tokenOut:    "uion",
			pool:        weightedPool(1, 1, "0", "", ""),
			expectedErr: ErrTokenMismatch,
		},
		{
			name:        "drained pool",
			amountIn:    1,
			tokenIn:     "uosmo",
			tokenOut:    "uatom",
			pool:        weightedPool(100, 0, "0", "", ""),
			expectedErr: numeric.ErrInvalidReserve,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetAmountOut(decimal.NewFromInt(tc.amountIn), tc.tokenIn, tc.tokenOut, tc.pool)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedAmount, got.String())
		})
	}
}

func TestGetAmountOut_StablePool(t *testing.T) {
	pool := engine.Pool{ID: "s", Token0ID: "a", Token1ID: "b", Kind: engine.StableParams{}}
	_, err := GetAmountOut(decimal.NewFromInt(1), "a", "b", pool)
	assert.ErrorIs(t, err, ErrUnsupportedPool)
}

func TestSpotPrice(t *testing.T) {
	pool := weightedPool(1_000_000, 4_000_000, "0.002", "0.8", "0.2")

	p, err := SpotPrice("uosmo", "uatom", pool)
	require.NoError(t, err)
	assert.Equal(t, "16", p.String())

	p, err = SpotPrice("uosmo", "uatom", weightedPool(1_000_000, 4_000_000, "0", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "4", p.String())
}
