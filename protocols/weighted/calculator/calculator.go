package calculator

import (
	"errors"
	"fmt"

	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/numeric"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when an input amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrTokenMismatch is returned when the specified tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidFee is returned when the swap fee is outside [0, 1).
	ErrInvalidFee = errors.New("invalid fee")
	// ErrUnsupportedPool is returned for pools that are not weighted / constant product.
	ErrUnsupportedPool = errors.New("pool is not weighted")
)

// GetAmountOut prices a swap on a weighted pool. The fee is charged on the input:
//
//	out = floor(Bo * (1 - (Bi / (Bi + Ai*(1-fee)))^(wi/wo)))
//
// With equal (or unset) weights this is the constant product formula and is
// evaluated exactly.
func GetAmountOut(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	if amountIn.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	params, ok := pool.Kind.(engine.XYKParams)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: pool %s", ErrUnsupportedPool, pool.ID)
	}
	if params.Fee.Sign() < 0 || params.Fee.GreaterThanOrEqual(numeric.One) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidFee, params.Fee.String())
	}
	balanceIn, balanceOut, ok := pool.Reserves(tokenIn, tokenOut)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.ID, tokenIn, tokenOut)
	}
	if err := numeric.RequirePositive(balanceIn, balanceOut); err != nil {
		return decimal.Zero, fmt.Errorf("pool %s: %w", pool.ID, err)
	}

	amountInAfterFee := amountIn.Mul(numeric.One.Sub(params.Fee))

	if !params.Weighted() {
		out, _ := balanceOut.Mul(amountInAfterFee).QuoRem(balanceIn.Add(amountInAfterFee), 0)
		return out, nil
	}

	weightIn, weightOut := params.Weight0, params.Weight1
	if tokenIn == pool.Token1ID {
		weightIn, weightOut = params.Weight1, params.Weight0
	}

	base, err := numeric.Div(balanceIn, balanceIn.Add(amountInAfterFee))
	if err != nil {
		return decimal.Zero, err
	}
	exponent, err := numeric.Div(weightIn, weightOut)
	if err != nil {
		return decimal.Zero, err
	}
	power, err := numeric.Pow(base, exponent)
	if err != nil {
		return decimal.Zero, err
	}
	out := numeric.Mul(balanceOut, numeric.One.Sub(power)).Floor()
	if out.Sign() < 0 {
		return decimal.Zero, nil
	}
	return out, nil
}

// SpotPrice returns the marginal tokenOut per tokenIn price before fees:
// (Bo/wo) / (Bi/wi).
func SpotPrice(tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (decimal.Decimal, error) {
	params, ok := pool.Kind.(engine.XYKParams)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: pool %s", ErrUnsupportedPool, pool.ID)
	}
	balanceIn, balanceOut, ok := pool.Reserves(tokenIn, tokenOut)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.ID, tokenIn, tokenOut)
	}
	if !params.Weighted() {
		return numeric.Div(balanceOut, balanceIn)
	}
	weightIn, weightOut := params.Weight0, params.Weight1
	if tokenIn == pool.Token1ID {
		weightIn, weightOut = params.Weight1, params.Weight0
	}
	return numeric.Div(balanceOut.Mul(weightIn), balanceIn.Mul(weightOut))
}
