package batchdeploy

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/batchdeploy/codec"
)

const senderAddress = "0x0A7199a96fdf0252E09F76545c1eF2be3692F46b"

func testBuildParams() BuildParams {
	return BuildParams{
		Sender:               common.HexToAddress(senderAddress),
		Nonce:                big.NewInt(7),
		CallData:             common.FromHex("0xb61d27f6"),
		VerificationGasLimit: big.NewInt(500000),
		CallGasLimit:         big.NewInt(2000000),
		PreVerificationGas:   big.NewInt(100000),
		MaxFeePerGas:         big.NewInt(50_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
	}
}

func TestBuild(t *testing.T) {
	op, err := Build(testBuildParams())
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(senderAddress), op.Sender)
	assert.Equal(t, int64(7), op.Nonce.Int64())
	assert.Empty(t, op.InitCode)
	assert.Empty(t, op.PaymasterAndData)
	assert.Empty(t, op.Signature)
	assert.Equal(t, common.FromHex("0xb61d27f6"), op.CallData)

	assert.Equal(t, "0x0000000000000000000000000007a120000000000000000000000000001e8480", common.Hash(op.AccountGasLimits).Hex())
	assert.Equal(t, "0x0000000000000000000000007735940000000000000000000000000ba43b7400", common.Hash(op.GasFees).Hex())

	assert.Equal(t, int64(500000), op.VerificationGasLimit().Int64())
	assert.Equal(t, int64(2000000), op.CallGasLimit().Int64())
	assert.Equal(t, int64(2_000_000_000), op.MaxPriorityFeePerGas().Int64())
	assert.Equal(t, int64(50_000_000_000), op.MaxFeePerGas().Int64())
}

func TestBuild_DoesNotRetainInputs(t *testing.T) {
	params := testBuildParams()
	op, err := Build(params)
	require.NoError(t, err)

	params.Nonce.SetInt64(99)
	params.PreVerificationGas.SetInt64(1)
	params.CallData[0] = 0xff

	assert.Equal(t, int64(7), op.Nonce.Int64())
	assert.Equal(t, int64(100000), op.PreVerificationGas.Int64())
	assert.Equal(t, byte(0xb6), op.CallData[0])
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BuildParams)
		target error
	}{
		{
			name:   "nil nonce",
			mutate: func(p *BuildParams) { p.Nonce = nil },
			target: ErrMissingField,
		},
		{
			name:   "nil call gas",
			mutate: func(p *BuildParams) { p.CallGasLimit = nil },
			target: codec.ErrEncoding,
		},
		{
			name:   "fee above uint128",
			mutate: func(p *BuildParams) { p.MaxFeePerGas = new(big.Int).Lsh(big.NewInt(1), 128) },
			target: codec.ErrEncoding,
		},
		{
			name:   "negative verification gas",
			mutate: func(p *BuildParams) { p.VerificationGasLimit = big.NewInt(-1) },
			target: codec.ErrEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testBuildParams()
			tt.mutate(&params)
			_, err := Build(params)
			require.ErrorIs(t, err, tt.target)
		})
	}
}

// TestUserOperation_GetMaxPrefund test GetMaxPrefund function.
func TestUserOperation_GetMaxPrefund(t *testing.T) {
	op, err := Build(BuildParams{
		Nonce:                big.NewInt(0),
		VerificationGasLimit: big.NewInt(30000),
		CallGasLimit:         big.NewInt(50000),
		PreVerificationGas:   big.NewInt(20000),
		MaxFeePerGas:         big.NewInt(100),
		MaxPriorityFeePerGas: big.NewInt(1),
	})
	require.NoError(t, err)

	// MaxGasAvailable = 30000 + 50000 + 20000 = 100000
	// MaxPrefund = 100000 * 100 = 10000000
	assert.Equal(t, int64(100000), op.GetMaxGasAvailable().Int64())
	assert.Equal(t, int64(10000000), op.GetMaxPrefund().Int64())
}
