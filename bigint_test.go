package batchdeploy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// Helper function to create big.Int values for testing
func newBigInt(s string) *big.Int {
	i, _ := new(big.Int).SetString(s, 10)
	return i
}

// TestToBaseUnits test ToBaseUnits.
func TestToBaseUnits(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expected    *big.Int
		expectError bool
	}{
		{"Empty input", "", nil, true},
		{"Not a number", "ten", nil, true},
		{"Zero", "0", nil, true},
		{"Negative", "-1", nil, true},
		{"Whole tokens", "1000", newBigInt("1000000000000000000000"), false},
		{"Fraction", "0.5", newBigInt("500000000000000000"), false},
		{"Smallest unit", "0.000000000000000001", big.NewInt(1), false},
		{"Too many decimals", "0.0000000000000000001", nil, true},
		{"Trailing zeros past 18 decimals", "1.0000000000000000000", newBigInt("1000000000000000000"), false},
		{"Nonzero digit past 18 decimals", "1.0000000000000000010", nil, true},
		{"Overflow", "115792089237316195423570985008687907853269984665640564039457584007913129639936", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ToBaseUnits(tc.input)
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 0, tc.expected.Cmp(result), "Expected %s, got %s", tc.expected, result)
		})
	}
}

// TestFromBaseUnits test FromBaseUnits.
func TestFromBaseUnits(t *testing.T) {
	testCases := []struct {
		name     string
		input    *big.Int
		expected string
	}{
		{"Nil input", nil, "0"},
		{"Whole tokens", newBigInt("1000000000000000000000"), "1000"},
		{"Fraction", newBigInt("1500000000000000000"), "1.5"},
		{"One wei", big.NewInt(1), "0.000000000000000001"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, FromBaseUnits(tc.input))
		})
	}
}

func TestBaseUnitsRoundTrip(t *testing.T) {
	for _, amount := range []string{"1", "1000", "21000000", "0.25", "123.456"} {
		base, err := ToBaseUnits(amount)
		require.NoError(t, err)
		require.Equal(t, amount, FromBaseUnits(base))
	}
}
