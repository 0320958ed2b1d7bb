package calculator

import (
	"errors"
	"fmt"

	"github.com/defistate/dexarb/engine"
	"github.com/defistate/dexarb/numeric"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTradeSize is returned for non-positive trade sizes.
	ErrInvalidTradeSize = errors.New("invalid trade size")
	// ErrTradeTooSmall is returned when a trade does not exceed the pool's minimum size for its direction.
	ErrTradeTooSmall = errors.New("trade too small")
	// ErrPriceImpactExceeded is returned when a trade's price impact falls outside [0, limit] percent.
	ErrPriceImpactExceeded = errors.New("price impact exceeded")
	// ErrInsufficientLiquidity is returned when a requested output cannot be supplied.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInvalidParams is returned for malformed pool parameters.
	ErrInvalidParams = errors.New("invalid stableswap params")
	// ErrTokenMismatch is returned when a pool does not trade the requested pair.
	ErrTokenMismatch = errors.New("token mismatch")
)

// impactNoise absorbs solver rounding on near-zero price impacts.
var impactNoise = decimal.New(-1, -9)

// Trade is the outcome of one simulated swap. Amounts are in minimal denomination.
type Trade struct {
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal // net of fees, floored
	GrossOut    decimal.Decimal
	LPFee       decimal.Decimal
	DAOFee      decimal.Decimal
	PriceImpact decimal.Decimal // percent
}

// Simulator replays trades against one stableswap pool.
//
// Both fees are skimmed from the gross output and stay in the output side of
// the pool, so every trade leaves the invariant slightly larger. A rejected
// trade leaves the simulator untouched. A Simulator is not safe for concurrent use.
type Simulator struct {
	pool0Size     decimal.Decimal
	pool1Size     decimal.Decimal
	priceOfToken1 decimal.Decimal
	invariant     decimal.Decimal

	curve             curve
	lpFee             decimal.Decimal
	daoFee            decimal.Decimal
	minTradeSize0For1 decimal.Decimal
	minTradeSize1For0 decimal.Decimal
	priceImpactLimit  decimal.Decimal
}

// New creates a simulator and computes its invariant.
func New(pool0Size, pool1Size decimal.Decimal, params engine.StableParams) (*Simulator, error) {
	if err := numeric.RequirePositive(pool0Size, pool1Size); err != nil {
		return nil, err
	}
	if err := validate(params); err != nil {
		return nil, err
	}
	s := &Simulator{
		pool0Size:     pool0Size,
		pool1Size:     pool1Size,
		priceOfToken1: params.PriceOfToken1,
		curve: curve{
			amplification: params.Amplification,
			gamma1:        params.Gamma1,
			gamma2:        params.Gamma2,
		},
		lpFee:             params.LPFee,
		daoFee:            params.DAOFee,
		minTradeSize0For1: params.MinTradeSize0For1,
		minTradeSize1For0: params.MinTradeSize1For0,
		priceImpactLimit:  params.PriceImpactLimit,
	}
	d, err := s.computeInvariant(pool0Size, pool1Size)
	if err != nil {
		return nil, err
	}
	s.invariant = d
	return s, nil
}

// NewFromPool creates a simulator from a stable pool.
func NewFromPool(pool engine.Pool) (*Simulator, error) {
	params, ok := pool.Kind.(engine.StableParams)
	if !ok {
		return nil, fmt.Errorf("%w: pool %s is not stable", ErrInvalidParams, pool.ID)
	}
	s, err := New(pool.Token0Amount, pool.Token1Amount, params)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.ID, err)
	}
	return s, nil
}

func validate(p engine.StableParams) error {
	switch {
	case p.PriceOfToken1.Sign() <= 0:
		return fmt.Errorf("%w: priceOfToken1 %s", ErrInvalidParams, p.PriceOfToken1.String())
	case p.Amplification.Sign() < 0:
		return fmt.Errorf("%w: amplification %s", ErrInvalidParams, p.Amplification.String())
	case p.Gamma1.Sign() <= 0 || p.Gamma2.Sign() <= 0:
		return fmt.Errorf("%w: gamma %s/%s", ErrInvalidParams, p.Gamma1.String(), p.Gamma2.String())
	case p.LPFee.Sign() < 0 || p.DAOFee.Sign() < 0 || p.LPFee.Add(p.DAOFee).GreaterThanOrEqual(numeric.One):
		return fmt.Errorf("%w: fees %s/%s", ErrInvalidParams, p.LPFee.String(), p.DAOFee.String())
	case p.PriceImpactLimit.Sign() < 0:
		return fmt.Errorf("%w: price impact limit %s", ErrInvalidParams, p.PriceImpactLimit.String())
	}
	return nil
}

// Pool0Size returns the current token0 reserve.
func (s *Simulator) Pool0Size() decimal.Decimal { return s.pool0Size }

// Pool1Size returns the current token1 reserve, in token1 units.
func (s *Simulator) Pool1Size() decimal.Decimal { return s.pool1Size }

// PriceOfToken1 returns the price of one token1 in units of token0.
func (s *Simulator) PriceOfToken1() decimal.Decimal { return s.priceOfToken1 }

// Invariant returns the current D.
func (s *Simulator) Invariant() decimal.Decimal { return s.invariant }

// SetPriceOfToken1 changes the external price ratio and recomputes D.
func (s *Simulator) SetPriceOfToken1(price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("%w: priceOfToken1 %s", ErrInvalidParams, price.String())
	}
	old := s.priceOfToken1
	s.priceOfToken1 = price
	d, err := s.computeInvariant(s.pool0Size, s.pool1Size)
	if err != nil {
		s.priceOfToken1 = old
		return err
	}
	s.invariant = d
	return nil
}

func (s *Simulator) computeInvariant(pool0Size, pool1Size decimal.Decimal) (decimal.Decimal, error) {
	return s.curve.invariant(pool0Size, numeric.Mul(pool1Size, s.priceOfToken1))
}

// SolveInvFnForPool1Size returns the token1 reserve that keeps the current
// invariant for a token0 reserve of pool0Size.
func (s *Simulator) SolveInvFnForPool1Size(pool0Size decimal.Decimal) (decimal.Decimal, error) {
	var y decimal.Decimal
	var err error
	if pool0Size.GreaterThanOrEqual(s.pool0Size) {
		y, err = s.curve.solveY(pool0Size, s.invariant, numeric.Mul(s.pool1Size, s.priceOfToken1))
	} else {
		y, err = s.curve.growY(pool0Size, s.invariant, numeric.Mul(s.pool1Size, s.priceOfToken1))
	}
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.Div(y, s.priceOfToken1)
}

// SolveInvFnForPool0Size returns the token0 reserve that keeps the current
// invariant for a token1 reserve of pool1Size.
func (s *Simulator) SolveInvFnForPool0Size(pool1Size decimal.Decimal) (decimal.Decimal, error) {
	y := numeric.Mul(pool1Size, s.priceOfToken1)
	if pool1Size.GreaterThanOrEqual(s.pool1Size) {
		return s.curve.solveX(y, s.invariant, s.pool0Size)
	}
	return s.curve.growX(y, s.invariant, s.pool0Size)
}

// PriceOfToken0InToken1 returns the marginal amount of token1 paid for one token0.
func (s *Simulator) PriceOfToken0InToken1() (decimal.Decimal, error) {
	pt, err := s.curve.eval(s.pool0Size, numeric.Mul(s.pool1Size, s.priceOfToken1), s.invariant)
	if err != nil {
		return decimal.Zero, err
	}
	ratio, err := numeric.Div(pt.fx, pt.fy)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.Div(ratio, s.priceOfToken1)
}

// PriceOfToken1InToken0 returns the marginal amount of token0 paid for one token1.
func (s *Simulator) PriceOfToken1InToken0() (decimal.Decimal, error) {
	pt, err := s.curve.eval(s.pool0Size, numeric.Mul(s.pool1Size, s.priceOfToken1), s.invariant)
	if err != nil {
		return decimal.Zero, err
	}
	ratio, err := numeric.Div(pt.fy, pt.fx)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.Mul(ratio, s.priceOfToken1), nil
}

// SwapToken0WithToken1 sells amountIn of token0 for token1.
func (s *Simulator) SwapToken0WithToken1(amountIn decimal.Decimal) (Trade, error) {
	trade, pool0, pool1, err := s.swapToken0WithToken1(amountIn)
	if err != nil {
		return Trade{}, err
	}
	return trade, s.apply(pool0, pool1)
}

func (s *Simulator) swapToken0WithToken1(amountIn decimal.Decimal) (Trade, decimal.Decimal, decimal.Decimal, error) {
	if err := checkSize(amountIn, s.minTradeSize0For1); err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	newPool0 := s.pool0Size.Add(amountIn)
	newPool1, err := s.SolveInvFnForPool1Size(newPool0)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	gross := s.pool1Size.Sub(newPool1)
	marginal, err := s.PriceOfToken0InToken1()
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	trade, err := s.settle(amountIn, gross, marginal)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	return trade, newPool0, s.pool1Size.Sub(trade.AmountOut), nil
}

// SwapToken1WithToken0 sells amountIn of token1 for token0.
func (s *Simulator) SwapToken1WithToken0(amountIn decimal.Decimal) (Trade, error) {
	trade, pool0, pool1, err := s.swapToken1WithToken0(amountIn)
	if err != nil {
		return Trade{}, err
	}
	return trade, s.apply(pool0, pool1)
}

func (s *Simulator) swapToken1WithToken0(amountIn decimal.Decimal) (Trade, decimal.Decimal, decimal.Decimal, error) {
	if err := checkSize(amountIn, s.minTradeSize1For0); err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	newPool1 := s.pool1Size.Add(amountIn)
	newPool0, err := s.SolveInvFnForPool0Size(newPool1)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	gross := s.pool0Size.Sub(newPool0)
	marginal, err := s.PriceOfToken1InToken0()
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	trade, err := s.settle(amountIn, gross, marginal)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	return trade, s.pool0Size.Sub(trade.AmountOut), newPool1, nil
}

// ReverseSwapToken0WithToken1 returns the token0 input needed to receive
// amountOut of token1, and applies that trade.
func (s *Simulator) ReverseSwapToken0WithToken1(amountOut decimal.Decimal) (Trade, error) {
	trade, pool0, pool1, err := s.reverseSwapToken0WithToken1(amountOut)
	if err != nil {
		return Trade{}, err
	}
	return trade, s.apply(pool0, pool1)
}

func (s *Simulator) reverseSwapToken0WithToken1(amountOut decimal.Decimal) (Trade, decimal.Decimal, decimal.Decimal, error) {
	if amountOut.Sign() <= 0 {
		return Trade{}, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidTradeSize, amountOut.String())
	}
	gross, err := s.grossFor(amountOut)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	newPool1 := s.pool1Size.Sub(gross)
	if newPool1.Sign() <= 0 {
		return Trade{}, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s of %s token1", ErrInsufficientLiquidity, gross.String(), s.pool1Size.String())
	}
	newPool0, err := s.SolveInvFnForPool0Size(newPool1)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	amountIn := newPool0.Sub(s.pool0Size).Ceil()
	if err := checkSize(amountIn, s.minTradeSize0For1); err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	marginal, err := s.PriceOfToken0InToken1()
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	trade, err := s.reverseSettle(amountIn, amountOut, gross, marginal)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	return trade, s.pool0Size.Add(amountIn), s.pool1Size.Sub(amountOut), nil
}

// ReverseSwapToken1WithToken0 returns the token1 input needed to receive
// amountOut of token0, and applies that trade.
func (s *Simulator) ReverseSwapToken1WithToken0(amountOut decimal.Decimal) (Trade, error) {
	trade, pool0, pool1, err := s.reverseSwapToken1WithToken0(amountOut)
	if err != nil {
		return Trade{}, err
	}
	return trade, s.apply(pool0, pool1)
}

func (s *Simulator) reverseSwapToken1WithToken0(amountOut decimal.Decimal) (Trade, decimal.Decimal, decimal.Decimal, error) {
	if amountOut.Sign() <= 0 {
		return Trade{}, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidTradeSize, amountOut.String())
	}
	gross, err := s.grossFor(amountOut)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	newPool0 := s.pool0Size.Sub(gross)
	if newPool0.Sign() <= 0 {
		return Trade{}, decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s of %s token0", ErrInsufficientLiquidity, gross.String(), s.pool0Size.String())
	}
	newPool1, err := s.SolveInvFnForPool1Size(newPool0)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	amountIn := newPool1.Sub(s.pool1Size).Ceil()
	if err := checkSize(amountIn, s.minTradeSize1For0); err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	marginal, err := s.PriceOfToken1InToken0()
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	trade, err := s.reverseSettle(amountIn, amountOut, gross, marginal)
	if err != nil {
		return Trade{}, decimal.Zero, decimal.Zero, err
	}
	return trade, s.pool0Size.Sub(amountOut), s.pool1Size.Add(amountIn), nil
}

func checkSize(amountIn, minTradeSize decimal.Decimal) error {
	if amountIn.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTradeSize, amountIn.String())
	}
	if amountIn.LessThanOrEqual(minTradeSize) {
		return fmt.Errorf("%w: %s <= %s", ErrTradeTooSmall, amountIn.String(), minTradeSize.String())
	}
	return nil
}

// grossFor returns the gross output whose net after both fees is amountOut.
func (s *Simulator) grossFor(amountOut decimal.Decimal) (decimal.Decimal, error) {
	return numeric.Div(amountOut, numeric.One.Sub(s.lpFee).Sub(s.daoFee))
}

// settle splits a gross output into fees and floored net output, and checks price impact.
func (s *Simulator) settle(amountIn, gross, marginal decimal.Decimal) (Trade, error) {
	if gross.Sign() <= 0 {
		return Trade{}, fmt.Errorf("%w: gross output %s", ErrInvalidTradeSize, gross.String())
	}
	lp := numeric.Mul(gross, s.lpFee)
	dao := numeric.Mul(gross, s.daoFee)
	net := gross.Sub(lp).Sub(dao).Floor()

	impact, err := s.priceImpact(amountIn, gross, marginal)
	if err != nil {
		return Trade{}, err
	}
	return Trade{
		AmountIn:    amountIn,
		AmountOut:   net,
		GrossOut:    gross,
		LPFee:       lp,
		DAOFee:      dao,
		PriceImpact: impact,
	}, nil
}

func (s *Simulator) reverseSettle(amountIn, amountOut, gross, marginal decimal.Decimal) (Trade, error) {
	impact, err := s.priceImpact(amountIn, gross, marginal)
	if err != nil {
		return Trade{}, err
	}
	return Trade{
		AmountIn:    amountIn,
		AmountOut:   amountOut,
		GrossOut:    gross,
		LPFee:       numeric.Mul(gross, s.lpFee),
		DAOFee:      numeric.Mul(gross, s.daoFee),
		PriceImpact: impact,
	}, nil
}

// priceImpact returns (1 - execution/marginal) * 100 and rejects values outside [0, limit].
func (s *Simulator) priceImpact(amountIn, gross, marginal decimal.Decimal) (decimal.Decimal, error) {
	execution, err := numeric.Div(gross, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	ratio, err := numeric.Div(execution, marginal)
	if err != nil {
		return decimal.Zero, err
	}
	impact := numeric.One.Sub(ratio).Mul(numeric.Hundred)
	if impact.Sign() < 0 && impact.GreaterThan(impactNoise) {
		impact = decimal.Zero
	}
	if impact.Sign() < 0 || impact.GreaterThan(s.priceImpactLimit) {
		return decimal.Zero, fmt.Errorf("%w: %s%% not in [0, %s%%]", ErrPriceImpactExceeded, impact.StringFixed(6), s.priceImpactLimit.String())
	}
	return impact, nil
}

// apply commits new reserves and recomputes D. Reserves are only replaced
// once the new invariant is known.
func (s *Simulator) apply(pool0Size, pool1Size decimal.Decimal) error {
	d, err := s.computeInvariant(pool0Size, pool1Size)
	if err != nil {
		return err
	}
	s.pool0Size = pool0Size
	s.pool1Size = pool1Size
	s.invariant = d
	return nil
}

// QuoteSwap prices an exact-input swap without changing the simulator.
// token0In selects the token0 -> token1 direction.
func (s *Simulator) QuoteSwap(amountIn decimal.Decimal, token0In bool) (Trade, error) {
	var (
		trade Trade
		err   error
	)
	if token0In {
		trade, _, _, err = s.swapToken0WithToken1(amountIn)
	} else {
		trade, _, _, err = s.swapToken1WithToken0(amountIn)
	}
	return trade, err
}

// QuoteReverseSwap prices an exact-output swap without changing the simulator.
func (s *Simulator) QuoteReverseSwap(amountOut decimal.Decimal, token0In bool) (Trade, error) {
	var (
		trade Trade
		err   error
	)
	if token0In {
		trade, _, _, err = s.reverseSwapToken0WithToken1(amountOut)
	} else {
		trade, _, _, err = s.reverseSwapToken1WithToken0(amountOut)
	}
	return trade, err
}

// Quote prices an exact-input swap on a stable pool.
func Quote(amountIn decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (Trade, error) {
	token0In, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return Trade{}, err
	}
	sim, err := NewFromPool(pool)
	if err != nil {
		return Trade{}, err
	}
	return sim.QuoteSwap(amountIn, token0In)
}

// QuoteReverse prices an exact-output swap on a stable pool.
func QuoteReverse(amountOut decimal.Decimal, tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (Trade, error) {
	token0In, err := direction(tokenIn, tokenOut, pool)
	if err != nil {
		return Trade{}, err
	}
	sim, err := NewFromPool(pool)
	if err != nil {
		return Trade{}, err
	}
	return sim.QuoteReverseSwap(amountOut, token0In)
}

func direction(tokenIn, tokenOut engine.PoolToken, pool engine.Pool) (bool, error) {
	switch {
	case tokenIn == pool.Token0ID && tokenOut == pool.Token1ID:
		return true, nil
	case tokenIn == pool.Token1ID && tokenOut == pool.Token0ID:
		return false, nil
	}
	return false, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.ID, tokenIn, tokenOut)
}
