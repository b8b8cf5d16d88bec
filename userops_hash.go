package batchdeploy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blndgs/batchdeploy/codec"
)

var (
	packedOpTypes = []string{"address", "uint256", "bytes32", "bytes32", "bytes32", "uint256", "bytes32", "bytes32"}
	opHashTypes   = []string{"bytes32", "address", "uint256"}
)

// PackForSignature returns the ABI encoding of every field except Signature,
// with the dynamic byte fields replaced by their keccak256 hashes.
func (op *UserOperation) PackForSignature() ([]byte, error) {
	return codec.EncodeArgs(packedOpTypes,
		op.Sender,
		bigOrZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.AccountGasLimits,
		bigOrZero(op.PreVerificationGas),
		op.GasFees,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

// GetUserOpHash returns the hash the sender signs:
//
//	keccak256(abi.encode(keccak256(PackForSignature()), entryPoint, chainID))
//
// It never covers the Signature field.
func (op *UserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.PackForSignature()
	if err != nil {
		return common.Hash{}, err
	}

	encoded, err := codec.EncodeArgs(opHashTypes, crypto.Keccak256Hash(packed), entryPoint, bigOrZero(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
