package calculator

import (
	"errors"
	"fmt"

	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/numeric"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when an input/output amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidFee is returned when the pool fee is outside [0, 1).
	ErrInvalidFee = errors.New("invalid fee")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that the pool cannot supply.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrUnsupportedPool is returned for pools that are not constant product.
	ErrUnsupportedPool = errors.New("pool is not constant product")
)

// GetAmountOut returns the output of swapping amountIn through the pool.
//
//	out = floor((reserveOut * amountIn / (reserveIn + amountIn)) * (1 - fee))
//
// The fee is skimmed from the gross output, then the result is floored.
func GetAmountOut(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	if amountIn.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	reserveIn, reserveOut, fee, err := prepare(tokenIn, tokenOut, pool)
	if err != nil {
		return decimal.Zero, err
	}

	numerator := reserveOut.Mul(amountIn).Mul(numeric.One.Sub(fee))
	denominator := reserveIn.Add(amountIn)
	out, _ := numerator.QuoRem(denominator, 0)
	return out, nil
}

// GetAmountIn returns the smallest input that yields at least amountOut.
//
//	gross = amountOut / (1 - fee)
//	in    = ceil(reserveIn * gross / (reserveOut - gross))
func GetAmountIn(amountOut decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	if amountOut.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	reserveIn, reserveOut, fee, err := prepare(tokenIn, tokenOut, pool)
	if err != nil {
		return decimal.Zero, err
	}

	// reserveIn*gross/(reserveOut-gross) with gross = amountOut/(1-fee), kept as one exact division.
	denominator := reserveOut.Mul(numeric.One.Sub(fee)).Sub(amountOut)
	if denominator.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: requested amountOut (%s) needs the whole reserveOut (%s)", ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}
	q, r := reserveIn.Mul(amountOut).QuoRem(denominator, 0)
	if !r.IsZero() {
		q = q.Add(numeric.One)
	}
	return q, nil
}

// SimulateSwap returns the output of a swap together with the resulting pool state.
func SimulateSwap(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, engine.Pool, error) {
	amountOut, err := GetAmountOut(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return decimal.Zero, engine.Pool{}, err
	}

	newPoolState := pool
	if tokenIn == pool.Token0ID {
		newPoolState.Token0Amount = pool.Token0Amount.Add(amountIn)
		newPoolState.Token1Amount = pool.Token1Amount.Sub(amountOut)
	} else {
		newPoolState.Token1Amount = pool.Token1Amount.Add(amountIn)
		newPoolState.Token0Amount = pool.Token0Amount.Sub(amountOut)
	}
	return amountOut, newPoolState, nil
}

// SpotPrice returns the marginal tokenOut per tokenIn price before fees.
func SpotPrice(tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	reserveIn, reserveOut, _, err := prepare(tokenIn, tokenOut, pool)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.Div(reserveOut, reserveIn)
}

// PriceImpact returns, in percent, how far the realized price amountOut/amountIn
// falls below the marginal price.
func PriceImpact(amountIn, amountOut decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	spot, err := SpotPrice(tokenIn, tokenOut, pool)
	if err != nil {
		return decimal.Zero, err
	}
	execution, err := numeric.Div(amountOut, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	ratio, err := numeric.Div(execution, spot)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.One.Sub(ratio).Mul(numeric.Hundred), nil
}

func prepare(tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (reserveIn, reserveOut, fee decimal.Decimal, err error) {
	params, ok := pool.Kind.(engine.XYKParams)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: pool %s", ErrUnsupportedPool, pool.ID)
	}
	reserveIn, reserveOut, ok = pool.Reserves(tokenIn, tokenOut)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.ID, tokenIn, tokenOut)
	}
	if err := numeric.RequirePositive(reserveIn, reserveOut); err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("pool %s: %w", pool.ID, err)
	}
	if params.Fee.Sign() < 0 || params.Fee.GreaterThanOrEqual(numeric.One) {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidFee, params.Fee.String())
	}
	return reserveIn, reserveOut, params.Fee, nil
}
