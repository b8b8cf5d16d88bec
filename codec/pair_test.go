package codec

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func TestPackPair(t *testing.T) {
	tests := []struct {
		name     string
		high     *big.Int
		low      *big.Int
		expected string
	}{
		{"zero", big.NewInt(0), big.NewInt(0), "0x0000000000000000000000000000000000000000000000000000000000000000"},
		{"gas limits", big.NewInt(500000), big.NewInt(2000000), "0x0000000000000000000000000007a120000000000000000000000000001e8480"},
		{"low only", big.NewInt(0), big.NewInt(1), "0x0000000000000000000000000000000000000000000000000000000000000001"},
		{"high only", big.NewInt(1), big.NewInt(0), "0x0000000000000000000000000000000100000000000000000000000000000000"},
		{"max", maxUint128, maxUint128, "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, err := PackPair(tt.high, tt.low)
			require.NoError(t, err)
			require.Equal(t, tt.expected, common.Hash(word).Hex())
		})
	}
}

func TestPackPair_OutOfRange(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 128)

	tests := []struct {
		name      string
		high, low *big.Int
	}{
		{"nil high", nil, big.NewInt(1)},
		{"nil low", big.NewInt(1), nil},
		{"negative", big.NewInt(-1), big.NewInt(1)},
		{"high overflow", tooBig, big.NewInt(1)},
		{"low overflow", big.NewInt(1), tooBig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PackPair(tt.high, tt.low)
			require.ErrorIs(t, err, ErrEncoding)
		})
	}
}

func TestUnpackPair_InvertsPackPair(t *testing.T) {
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(21000),
		big.NewInt(50_000_000_000),
		new(big.Int).Lsh(big.NewInt(1), 64),
		new(big.Int).Lsh(big.NewInt(1), 127),
		maxUint128,
	}

	for _, high := range values {
		for _, low := range values {
			word, err := PackPair(high, low)
			require.NoError(t, err)

			gotHigh, gotLow := UnpackPair(word)
			require.Equal(t, 0, high.Cmp(gotHigh), "high %s != %s", high, gotHigh)
			require.Equal(t, 0, low.Cmp(gotLow), "low %s != %s", low, gotLow)
		}
	}
}
