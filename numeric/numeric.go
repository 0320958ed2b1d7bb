package numeric

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept by every division,
// non-integer power and square root in reserve math.
const Precision int32 = 40

// sqrtBits is the mantissa size used for square roots; ~2^-512 is far below 10^-Precision.
const sqrtBits = 512

var (
	// ErrInvalidReserve is returned when a reserve is zero or negative where a positive value is required.
	ErrInvalidReserve = errors.New("invalid reserve")
	// ErrInvalidAmount is returned when an amount string cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidPower is returned when a power is undefined over the reals (0^-n, negative base with fractional exponent).
	ErrInvalidPower = errors.New("invalid power")

	// Tolerance is the convergence tolerance shared by the root finders.
	Tolerance = decimal.New(1, -16)

	One     = decimal.NewFromInt(1)
	Two     = decimal.NewFromInt(2)
	Four    = decimal.NewFromInt(4)
	Hundred = decimal.NewFromInt(100)
)

// FromMinimal converts an integer amount in minimal denomination into a decimal amount.
// "1500000" with 6 decimals is 1.5.
func FromMinimal(amount string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w %q: %v", ErrInvalidAmount, amount, err)
	}
	return d.Shift(-decimals), nil
}

// ToMinimal converts a decimal amount into an integer string in minimal denomination,
// truncating toward zero.
func ToMinimal(amount decimal.Decimal, decimals int32) string {
	return amount.Shift(decimals).Truncate(0).String()
}

// Mul multiplies and rounds the result to Precision fractional digits so that
// long iteration chains do not grow the coefficient without bound.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Round(Precision)
}

// Div divides a by b at Precision fractional digits.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: division by zero", ErrInvalidReserve)
	}
	return a.DivRound(b, Precision), nil
}

// RequirePositive fails with ErrInvalidReserve if any value is zero or negative.
func RequirePositive(values ...decimal.Decimal) error {
	for _, v := range values {
		if v.Sign() <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidReserve, v.String())
		}
	}
	return nil
}

// Pow raises base to exp. Integer exponents are exact up to rounding; fractional
// exponents go through ln/exp at Precision digits.
func Pow(base, exp decimal.Decimal) (decimal.Decimal, error) {
	if base.IsZero() {
		switch exp.Sign() {
		case 0:
			return One, nil
		case 1:
			return decimal.Zero, nil
		default:
			return decimal.Zero, fmt.Errorf("%w: 0^%s", ErrInvalidPower, exp.String())
		}
	}
	if exp.IsInteger() && exp.Abs().LessThanOrEqual(decimal.NewFromInt(1<<20)) {
		r, err := base.PowInt32(int32(exp.IntPart()))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPower, err)
		}
		return r.Round(Precision), nil
	}
	if base.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: %s^%s", ErrInvalidPower, base.String(), exp.String())
	}
	r, err := base.PowWithPrecision(exp, Precision)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPower, err)
	}
	return r.Round(Precision), nil
}

// Sqrt returns the square root of a non-negative value at Precision digits.
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%w: sqrt of %s", ErrInvalidPower, d.String())
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	f, ok := new(big.Float).SetPrec(sqrtBits).SetString(d.String())
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	f.Sqrt(f)
	r, err := decimal.NewFromString(f.Text('f', int(Precision)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return r, nil
}

// Percent returns part/whole*100. A zero whole yields ErrInvalidReserve.
func Percent(part, whole decimal.Decimal) (decimal.Decimal, error) {
	r, err := Div(part, whole)
	if err != nil {
		return decimal.Zero, err
	}
	return r.Mul(Hundred), nil
}
