package pathfinder

import (
	"errors"

	"github.com/defistate/dexarb/engine"
	stableswap "github.com/defistate/dexarb/protocols/stableswap/calculator"
	xyk "github.com/defistate/dexarb/protocols/xyk/calculator"
	"github.com/shopspring/decimal"
)

// ErrUnpricedPool is returned for hops through a pool with no pricing function.
var ErrUnpricedPool = errors.New("pool cannot be priced")

// settlers returns the forward and reverse settlement of one pool, or nils if
// the pool kind is unknown. A stable pool's simulator is built once and only
// quoted afterwards; a pool whose invariant cannot be solved gets functions
// that return that error.
func settlers(pool engine.Pool) (forward, reverse settleFunc) {
	switch pool.Kind.(type) {
	case engine.XYKParams:
		forward = func(amount decimal.Decimal, tokenIn, tokenOut engine.PoolToken) (decimal.Decimal, error) {
			return xyk.GetAmountOut(amount, tokenIn, tokenOut, pool)
		}
		reverse = func(amount decimal.Decimal, tokenIn, tokenOut engine.PoolToken) (decimal.Decimal, error) {
			return xyk.GetAmountIn(amount, tokenIn, tokenOut, pool)
		}

	case engine.StableParams:
		sim, err := stableswap.NewFromPool(pool)
		if err != nil {
			fail := func(decimal.Decimal, engine.PoolToken, engine.PoolToken) (decimal.Decimal, error) {
				return decimal.Zero, err
			}
			return fail, fail
		}
		forward = func(amount decimal.Decimal, tokenIn, tokenOut engine.PoolToken) (decimal.Decimal, error) {
			token0In, err := direction(tokenIn, tokenOut, pool)
			if err != nil {
				return decimal.Zero, err
			}
			trade, err := sim.QuoteSwap(amount, token0In)
			if err != nil {
				return decimal.Zero, err
			}
			return trade.AmountOut, nil
		}
		reverse = func(amount decimal.Decimal, tokenIn, tokenOut engine.PoolToken) (decimal.Decimal, error) {
			token0In, err := direction(tokenIn, tokenOut, pool)
			if err != nil {
				return decimal.Zero, err
			}
			trade, err := sim.QuoteReverseSwap(amount, token0In)
			if err != nil {
				return decimal.Zero, err
			}
			return trade.AmountIn, nil
		}
	}
	return forward, reverse
}

func direction(tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (bool, error) {
	switch {
	case tokenIn == pool.Token0ID && tokenOut == pool.Token1ID:
		return true, nil
	case tokenIn == pool.Token1ID && tokenOut == pool.Token0ID:
		return false, nil
	}
	return false, stableswap.ErrTokenMismatch
}
