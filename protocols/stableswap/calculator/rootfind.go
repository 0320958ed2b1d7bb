package calculator

import (
	"errors"
	"fmt"

	"github.com/defistate/dexarb/numeric"
	"github.com/shopspring/decimal"
)

const (
	newtonMaxIterations    = 80
	bisectionMaxIterations = 150
	bracketMaxDoublings    = 200
)

var half = decimal.New(5, -1)

var (
	// ErrNewtonMethod is returned when Newton's method diverges, stalls or leaves its bracket.
	ErrNewtonMethod = errors.New("newton method failed")
	// ErrNoBracket is returned when bisection endpoints do not straddle a root.
	ErrNoBracket = errors.New("no bracket")
)

// objective evaluates a function and its derivative at v.
type objective func(v decimal.Decimal) (f, df decimal.Decimal, err error)

// converged reports |step| <= tol*max(1, |v|).
func converged(step, v decimal.Decimal) bool {
	scale := v.Abs()
	if scale.LessThan(numeric.One) {
		scale = numeric.One
	}
	return step.Abs().LessThanOrEqual(numeric.Tolerance.Mul(scale))
}

// newton runs Newton's method from start. The root must stay within [lo, hi];
// with nonNegative the root must also be >= 0.
func newton(fn objective, start, lo, hi decimal.Decimal, nonNegative bool) (decimal.Decimal, error) {
	accept := func(v decimal.Decimal) (decimal.Decimal, error) {
		if nonNegative && v.Sign() < 0 {
			return decimal.Zero, fmt.Errorf("%w: negative root %s", ErrNewtonMethod, v.String())
		}
		if v.LessThan(lo) || v.GreaterThan(hi) {
			return decimal.Zero, fmt.Errorf("%w: root %s outside [%s, %s]", ErrNewtonMethod, v.String(), lo.String(), hi.String())
		}
		return v, nil
	}

	v := start
	for i := 0; i < newtonMaxIterations; i++ {
		f, df, err := fn(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrNewtonMethod, err)
		}
		if f.IsZero() {
			return accept(v)
		}
		if df.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: zero derivative at %s", ErrNewtonMethod, v.String())
		}
		step, err := numeric.Div(f, df)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrNewtonMethod, err)
		}
		v = v.Sub(step)
		if converged(step, v) {
			// polish the last digits
			if f2, df2, err := fn(v); err == nil && !df2.IsZero() {
				if s2, err := numeric.Div(f2, df2); err == nil {
					v = v.Sub(s2)
				}
			}
			return accept(v)
		}
	}
	return decimal.Zero, fmt.Errorf("%w: no convergence after %d iterations", ErrNewtonMethod, newtonMaxIterations)
}

// bisect finds a root of fn in [lo, hi]. fn(lo) and fn(hi) must not share a sign.
func bisect(fn objective, lo, hi decimal.Decimal) (decimal.Decimal, error) {
	fLo, _, err := fn(lo)
	if err != nil {
		return decimal.Zero, err
	}
	if fLo.IsZero() {
		return lo, nil
	}
	fHi, _, err := fn(hi)
	if err != nil {
		return decimal.Zero, err
	}
	if fHi.IsZero() {
		return hi, nil
	}
	if fLo.Sign() == fHi.Sign() {
		return decimal.Zero, fmt.Errorf("%w: f(%s)=%s, f(%s)=%s", ErrNoBracket, lo.String(), fLo.String(), hi.String(), fHi.String())
	}

	mid := lo
	for i := 0; i < bisectionMaxIterations; i++ {
		mid = lo.Add(hi).Mul(half).Round(numeric.Precision)
		if converged(hi.Sub(lo), mid) {
			return mid, nil
		}
		fMid, _, err := fn(mid)
		if err != nil {
			return decimal.Zero, err
		}
		if fMid.IsZero() {
			return mid, nil
		}
		if fMid.Sign() == fLo.Sign() {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	return mid, nil
}

// solve tries Newton's method first and falls back to bisection over [lo, hi].
func solve(fn objective, start, lo, hi decimal.Decimal, nonNegative bool) (decimal.Decimal, error) {
	v, err := newton(fn, start, lo, hi, nonNegative)
	if err == nil {
		return v, nil
	}
	return bisect(fn, lo, hi)
}
