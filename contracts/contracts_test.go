package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/batchdeploy/codec"
)

func TestSignatures(t *testing.T) {
	tests := []struct {
		name     string
		sig      string
		expected string
	}{
		{"createAccount", SmartAccountFactory.Methods["createAccount"].Sig, "createAccount(address,uint256)"},
		{"getAddress", SmartAccountFactory.Methods["getAddress"].Sig, "getAddress(address,uint256)"},
		{"execute", SmartAccount.Methods["execute"].Sig, "execute(address,uint256,bytes)"},
		{"nonce", SmartAccount.Methods["nonce"].Sig, "nonce()"},
		{"batchDeployTokens", BatchTokenFactory.Methods["batchDeployTokens"].Sig, "batchDeployTokens((string,string,uint256)[])"},
		{"TokenDeployed", BatchTokenFactory.Events["TokenDeployed"].Sig, "TokenDeployed(address,address,string,string,uint256)"},
		{"handleOps", EntryPoint.Methods["handleOps"].Sig, "handleOps((address,uint256,bytes,bytes,bytes32,uint256,bytes32,bytes,bytes)[],address)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.sig)
		})
	}

	assert.Equal(t, "0xafab02be1fad1d0d43ad198ee814f1c60ef1d1143fea62cb87cc7a65b71af122", TokenDeployedID().Hex())
}

func TestBatchDeployTokensEncoding(t *testing.T) {
	supply, _ := new(big.Int).SetString("1000000000000000000000", 10)
	data, err := codec.EncodeCall(BatchTokenFactory, "batchDeployTokens", []TokenParams{
		{Name: "Test", Symbol: "TST", InitialSupply: supply},
	})
	require.NoError(t, err)
	require.Equal(t, "abca63bd", common.Bytes2Hex(data[:4]))

	out, err := BatchTokenFactory.Methods["batchDeployTokens"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, out, 1)

	params := *abi.ConvertType(out[0], new([]TokenParams)).(*[]TokenParams)
	require.Len(t, params, 1)
	assert.Equal(t, "Test", params[0].Name)
	assert.Equal(t, "TST", params[0].Symbol)
	assert.Equal(t, 0, supply.Cmp(params[0].InitialSupply))
}

func TestBatchDeployTokensEncoding_TypeMismatch(t *testing.T) {
	_, err := codec.EncodeCall(BatchTokenFactory, "batchDeployTokens", []string{"Test"})
	require.ErrorIs(t, err, codec.ErrEncoding)
}

func tokenDeployedLog(t *testing.T, token, owner common.Address, name, symbol string, supply *big.Int) *types.Log {
	data, err := codec.EncodeArgs([]string{"string", "string", "uint256"}, name, symbol, supply)
	require.NoError(t, err)
	return &types.Log{
		Address: common.HexToAddress("0xa667A04fBe2FDFD3d16c14C60EC1C300e7190d85"),
		Topics: []common.Hash{
			TokenDeployedID(),
			common.BytesToHash(token.Bytes()),
			common.BytesToHash(owner.Bytes()),
		},
		Data: data,
	}
}

func TestDecodeTokenDeployed(t *testing.T) {
	token := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	owner := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	supply, _ := new(big.Int).SetString("1000000000000000000000", 10)

	event, err := DecodeTokenDeployed(tokenDeployedLog(t, token, owner, "Test", "TST", supply))
	require.NoError(t, err)
	assert.Equal(t, token, event.Token)
	assert.Equal(t, owner, event.Owner)
	assert.Equal(t, "Test", event.Name)
	assert.Equal(t, "TST", event.Symbol)
	assert.Equal(t, 0, supply.Cmp(event.InitialSupply))
}

func TestDecodeTokenDeployed_SkipOrFail(t *testing.T) {
	token := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	owner := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")

	transfer := &types.Log{
		Topics: []common.Hash{
			common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
			{}, common.BytesToHash(owner.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
	}
	_, err := DecodeTokenDeployed(transfer)
	require.ErrorIs(t, err, ErrNotTokenDeployed)

	_, err = DecodeTokenDeployed(&types.Log{})
	require.ErrorIs(t, err, ErrNotTokenDeployed)

	truncated := tokenDeployedLog(t, token, owner, "Test", "TST", big.NewInt(1))
	truncated.Data = truncated.Data[:40]
	_, err = DecodeTokenDeployed(truncated)
	require.ErrorIs(t, err, ErrMalformedEvent)

	missingTopic := tokenDeployedLog(t, token, owner, "Test", "TST", big.NewInt(1))
	missingTopic.Topics = missingTopic.Topics[:2]
	_, err = DecodeTokenDeployed(missingTopic)
	require.ErrorIs(t, err, ErrMalformedEvent)
}
