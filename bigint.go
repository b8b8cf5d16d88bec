package batchdeploy

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the decimal precision of every deployed token.
const TokenDecimals = 18

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ToBaseUnits converts a human readable amount such as "1000" or "0.5" into
// base units (amount * 10^18).
func ToBaseUnits(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, errors.New("amount cannot be a zero or negative amount")
	}
	shifted := d.Shift(TokenDecimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, TokenDecimals)
	}

	base := shifted.BigInt()
	if base.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("amount %q overflows uint256", amount)
	}
	return base, nil
}

// FromBaseUnits renders a base-unit integer in human units, without trailing
// zeros ("1000000000000000000000" becomes "1000").
func FromBaseUnits(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -TokenDecimals).String()
}
