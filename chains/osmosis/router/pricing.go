package router

import (
	"errors"
	"fmt"

	"github.com/defistate/dexarb/engine"
	stableswap "github.com/defistate/dexarb/protocols/stableswap/calculator"
	weighted "github.com/defistate/dexarb/protocols/weighted/calculator"
	"github.com/shopspring/decimal"
)

var (
	// ErrPoolNotFound is returned when a cached route references a pool missing from the current view.
	ErrPoolNotFound = errors.New("pool not found")
	// ErrUnknownPoolKind is returned for pools without pricing parameters.
	ErrUnknownPoolKind = errors.New("unknown pool kind")
)

// price swaps amountIn through one pool using the pool kind's own formula.
func price(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	switch pool.Kind.(type) {
	case engine.XYKParams:
		return weighted.GetAmountOut(amountIn, tokenIn, tokenOut, pool)
	case engine.StableParams:
		trade, err := stableswap.Quote(amountIn, tokenIn, tokenOut, pool)
		if err != nil {
			return decimal.Zero, err
		}
		return trade.AmountOut, nil
	}
	return decimal.Zero, fmt.Errorf("%w: pool %s", ErrUnknownPoolKind, pool.ID)
}
