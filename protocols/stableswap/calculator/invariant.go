package calculator

import (
	"fmt"

	"github.com/defistate/dexarb/numeric"
	"github.com/shopspring/decimal"
)

// bracketSlack widens the geometric-mean lower bound of D so rounding in the
// square root cannot push the root outside the bracket.
var bracketSlack = numeric.One.Sub(decimal.New(1, -20))

// curve is the regime-switching stableswap invariant
//
//	F(x, y, D) = 4a * (x/D) * (y/D)^γ * D * (x + (y - D)) + x*y - D²/4
//
// where x is the token0 reserve, y the token1 reserve valued in token0 and
// γ = gamma1 while x <= y, gamma2 otherwise. (x/D)*D cancels, so eval works
// on 4a * x * (y/D)^γ * (x + y - D).
type curve struct {
	amplification decimal.Decimal
	gamma1        decimal.Decimal
	gamma2        decimal.Decimal
}

func (c curve) gamma(x, y decimal.Decimal) decimal.Decimal {
	if x.LessThanOrEqual(y) {
		return c.gamma1
	}
	return c.gamma2
}

// partials holds F and its partial derivatives at one point.
type partials struct {
	f, fx, fy, fd decimal.Decimal
}

func (c curve) eval(x, y, d decimal.Decimal) (partials, error) {
	if d.Sign() <= 0 {
		return partials{}, fmt.Errorf("%w: invariant %s", numeric.ErrInvalidReserve, d.String())
	}
	v, err := numeric.Div(y, d)
	if err != nil {
		return partials{}, err
	}
	g := c.gamma(x, y)

	vg, err := numeric.Pow(v, g)
	if err != nil {
		return partials{}, err
	}
	vg1 := decimal.Zero
	if !v.IsZero() {
		if vg1, err = numeric.Pow(v, g.Sub(numeric.One)); err != nil {
			return partials{}, err
		}
	}

	k := numeric.Four.Mul(c.amplification)
	gap := x.Add(y).Sub(d)
	kxvg := numeric.Mul(numeric.Mul(k, x), vg)
	quarterD2, _ := numeric.Div(numeric.Mul(d, d), numeric.Four)

	f := numeric.Mul(kxvg, gap).Add(numeric.Mul(x, y)).Sub(quarterD2)

	// ∂/∂x: 4a (y/D)^γ (gap + x) + y
	fx := numeric.Mul(numeric.Mul(k, vg), gap.Add(x)).Add(y)

	// ∂/∂y: 4a x (γ (y/D)^(γ-1) gap / D + (y/D)^γ) + x
	slope, _ := numeric.Div(numeric.Mul(numeric.Mul(g, vg1), gap), d)
	fy := numeric.Mul(numeric.Mul(k, x), slope.Add(vg)).Add(x)

	// ∂/∂D: -4a x (y/D)^γ (γ gap / D + 1) - D/2
	shrink, _ := numeric.Div(numeric.Mul(g, gap), d)
	halfD, _ := numeric.Div(d, numeric.Two)
	fd := numeric.Mul(kxvg, shrink.Add(numeric.One)).Neg().Sub(halfD)

	return partials{f: f, fx: fx, fy: fy, fd: fd}, nil
}

// invariant returns D for reserves x and y (both in token0 units).
// The root lies in [2*sqrt(xy), x+y].
func (c curve) invariant(x, y decimal.Decimal) (decimal.Decimal, error) {
	if err := numeric.RequirePositive(x, y); err != nil {
		return decimal.Zero, err
	}
	root, err := numeric.Sqrt(numeric.Mul(x, y))
	if err != nil {
		return decimal.Zero, err
	}
	lo := numeric.Mul(numeric.Two.Mul(root), bracketSlack)
	hi := x.Add(y)

	fn := func(d decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
		pt, err := c.eval(x, y, d)
		return pt.f, pt.fd, err
	}
	return solve(fn, hi, lo, hi, true)
}

// solveY returns the y that keeps F(x, y, d) = 0, searching [0, hiY].
func (c curve) solveY(x, d, hiY decimal.Decimal) (decimal.Decimal, error) {
	fn := func(y decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
		pt, err := c.eval(x, y, d)
		return pt.f, pt.fy, err
	}
	return solve(fn, hiY, decimal.Zero, hiY, true)
}

// solveX returns the x that keeps F(x, y, d) = 0, searching [0, hiX].
func (c curve) solveX(y, d, hiX decimal.Decimal) (decimal.Decimal, error) {
	fn := func(x decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
		pt, err := c.eval(x, y, d)
		return pt.f, pt.fx, err
	}
	return solve(fn, hiX, decimal.Zero, hiX, true)
}

// growX returns the x >= loX that keeps F(x, y, d) = 0. The upper bound is
// found by doubling from loX + d.
func (c curve) growX(y, d, loX decimal.Decimal) (decimal.Decimal, error) {
	fn := func(x decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
		pt, err := c.eval(x, y, d)
		return pt.f, pt.fx, err
	}
	hi, err := c.grow(fn, loX, d)
	if err != nil {
		return decimal.Zero, err
	}
	return solve(fn, hi, loX, hi, true)
}

// growY is growX for the token1 side.
func (c curve) growY(x, d, loY decimal.Decimal) (decimal.Decimal, error) {
	fn := func(y decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
		pt, err := c.eval(x, y, d)
		return pt.f, pt.fy, err
	}
	hi, err := c.grow(fn, loY, d)
	if err != nil {
		return decimal.Zero, err
	}
	return solve(fn, hi, loY, hi, true)
}

func (c curve) grow(fn objective, lo, d decimal.Decimal) (decimal.Decimal, error) {
	hi := lo.Add(d)
	for i := 0; i < bracketMaxDoublings; i++ {
		f, _, err := fn(hi)
		if err != nil {
			return decimal.Zero, err
		}
		if f.Sign() > 0 {
			return hi, nil
		}
		hi = hi.Mul(numeric.Two)
	}
	return decimal.Zero, fmt.Errorf("%w: no upper bound above %s", ErrNoBracket, lo.String())
}
