// Package codec implements the fixed-width byte packing and ABI call encoding
// used to build ERC-4337 packed UserOperations.
package codec

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// PackPair returns (high << 128) | low as a big-endian 32-byte word. Both
// halves must be unsigned values that fit in 128 bits.
//
// EntryPoint v0.7 uses this layout for accountGasLimits
// (verificationGasLimit, callGasLimit) and gasFees
// (maxPriorityFeePerGas, maxFeePerGas).
func PackPair(high, low *big.Int) ([32]byte, error) {
	h, err := toUint128(high)
	if err != nil {
		return [32]byte{}, fmt.Errorf("high half: %w", err)
	}
	l, err := toUint128(low)
	if err != nil {
		return [32]byte{}, fmt.Errorf("low half: %w", err)
	}

	word := new(uint256.Int).Lsh(h, 128)
	word.Or(word, l)
	return word.Bytes32(), nil
}

// UnpackPair splits a packed word into its high (bits 255..128) and low
// (bits 127..0) halves.
func UnpackPair(word [32]byte) (high, low *big.Int) {
	w := new(uint256.Int).SetBytes32(word[:])

	h := new(uint256.Int).Rsh(w, 128)
	l := new(uint256.Int).Lsh(w, 128)
	l.Rsh(l, 128)

	return h.ToBig(), l.ToBig()
}

func toUint128(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value", ErrEncoding)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return nil, fmt.Errorf("%w: %s does not fit in uint128", ErrEncoding, v)
	}
	u, _ := uint256.FromBig(v)
	return u, nil
}
