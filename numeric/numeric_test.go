package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMinimal(t *testing.T) {
	testCases := []struct {
		name        string
		amount      string
		decimals    int32
		expected    string
		expectedErr error
	}{
		{name: "six decimals", amount: "1500000", decimals: 6, expected: "1.5"},
		{name: "eighteen decimals", amount: "1000000000000000000", decimals: 18, expected: "1"},
		{name: "zero decimals", amount: "42", decimals: 0, expected: "42"},
		{name: "sub unit", amount: "1", decimals: 6, expected: "0.000001"},
		{name: "garbage", amount: "12abc", decimals: 6, expectedErr: ErrInvalidAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromMinimal(tc.amount, tc.decimals)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.String())
		})
	}
}

func TestToMinimal(t *testing.T) {
	testCases := []struct {
		name     string
		amount   decimal.Decimal
		decimals int32
		expected string
	}{
		{name: "exact", amount: decimal.RequireFromString("1.5"), decimals: 6, expected: "1500000"},
		{name: "truncates", amount: decimal.RequireFromString("1.0000009"), decimals: 6, expected: "1000000"},
		{name: "truncates toward zero for negatives", amount: decimal.RequireFromString("-1.0000009"), decimals: 6, expected: "-1000000"},
		{name: "round trip", amount: decimal.RequireFromString("123.456789"), decimals: 6, expected: "123456789"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ToMinimal(tc.amount, tc.decimals))
		})
	}
}

func TestDiv(t *testing.T) {
	t.Run("division by zero is an invalid reserve", func(t *testing.T) {
		_, err := Div(One, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidReserve)
	})

	t.Run("keeps forty fractional digits", func(t *testing.T) {
		got, err := Div(One, decimal.NewFromInt(3))
		require.NoError(t, err)
		assert.Equal(t, "0.3333333333333333333333333333333333333333", got.String())
	})
}

func TestRequirePositive(t *testing.T) {
	assert.NoError(t, RequirePositive(One, Two))
	assert.ErrorIs(t, RequirePositive(One, decimal.Zero), ErrInvalidReserve)
	assert.ErrorIs(t, RequirePositive(decimal.NewFromInt(-5)), ErrInvalidReserve)
}

func TestPow(t *testing.T) {
	t.Run("integer exponent", func(t *testing.T) {
		got, err := Pow(Two, decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.Equal(t, "1024", got.String())
	})

	t.Run("zero exponent", func(t *testing.T) {
		got, err := Pow(decimal.NewFromInt(7), decimal.Zero)
		require.NoError(t, err)
		assert.True(t, got.Equal(One))
	})

	t.Run("fractional exponent", func(t *testing.T) {
		got, err := Pow(decimal.NewFromInt(4), decimal.RequireFromString("0.5"))
		require.NoError(t, err)
		assert.True(t, got.Sub(Two).Abs().LessThan(decimal.New(1, -30)), "got %s", got)
	})

	t.Run("zero base with negative exponent", func(t *testing.T) {
		_, err := Pow(decimal.Zero, decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, ErrInvalidPower)
	})

	t.Run("zero base with positive exponent", func(t *testing.T) {
		got, err := Pow(decimal.Zero, decimal.RequireFromString("0.7"))
		require.NoError(t, err)
		assert.True(t, got.IsZero())
	})
}

func TestSqrt(t *testing.T) {
	got, err := Sqrt(decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.Equal(t, "1.4142135623730950488016887242096980785697", got.String())

	got, err = Sqrt(decimal.NewFromInt(1_000_000))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(1000)))

	_, err = Sqrt(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidPower)
}
