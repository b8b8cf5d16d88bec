// Package batchdeploy provides the ERC-4337 (EntryPoint v0.7) packed
// UserOperation used to deploy a batch of tokens through a smart account,
// together with its canonical hash and signature.
package batchdeploy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blndgs/batchdeploy/codec"
)

// UserOperation is the packed user operation submitted to EntryPoint.handleOps.
// Field names match the PackedUserOperation ABI components.
type UserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

type userOperationError string

func (e userOperationError) Error() string {
	return string(e)
}

// Define error constants
const (
	ErrSignerUnavailable userOperationError = "no signing capability configured"
	ErrSigningRejected   userOperationError = "signing request rejected"
	ErrMissingField      userOperationError = "missing UserOperation field"
	ErrInvalidSignature  userOperationError = "invalid hex-encoded signature"
)

// BuildParams carries the caller supplied UserOperation fields.
type BuildParams struct {
	Sender               common.Address
	Nonce                *big.Int
	CallData             []byte
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Build assembles an unsigned UserOperation. Account creation and paymaster
// sponsorship are never used, so InitCode and PaymasterAndData are empty.
// Build copies every input; the caller's values are never retained.
//
// Returns:
//   - *UserOperation: The unsigned operation.
//   - error: ErrMissingField if a numeric field is nil, or an error wrapping
//     codec.ErrEncoding if a gas value does not fit in 128 bits.
func Build(p BuildParams) (*UserOperation, error) {
	if p.Nonce == nil || p.PreVerificationGas == nil {
		return nil, ErrMissingField
	}

	gasLimits, err := codec.PackPair(p.VerificationGasLimit, p.CallGasLimit)
	if err != nil {
		return nil, err
	}
	gasFees, err := codec.PackPair(p.MaxPriorityFeePerGas, p.MaxFeePerGas)
	if err != nil {
		return nil, err
	}

	return &UserOperation{
		Sender:             p.Sender,
		Nonce:              new(big.Int).Set(p.Nonce),
		InitCode:           []byte{},
		CallData:           common.CopyBytes(p.CallData),
		AccountGasLimits:   gasLimits,
		PreVerificationGas: new(big.Int).Set(p.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   []byte{},
		Signature:          []byte{},
	}, nil
}

// VerificationGasLimit returns the high half of AccountGasLimits.
func (op *UserOperation) VerificationGasLimit() *big.Int {
	high, _ := codec.UnpackPair(op.AccountGasLimits)
	return high
}

// CallGasLimit returns the low half of AccountGasLimits.
func (op *UserOperation) CallGasLimit() *big.Int {
	_, low := codec.UnpackPair(op.AccountGasLimits)
	return low
}

// MaxPriorityFeePerGas returns the high half of GasFees.
func (op *UserOperation) MaxPriorityFeePerGas() *big.Int {
	high, _ := codec.UnpackPair(op.GasFees)
	return high
}

// MaxFeePerGas returns the low half of GasFees.
func (op *UserOperation) MaxFeePerGas() *big.Int {
	_, low := codec.UnpackPair(op.GasFees)
	return low
}

// GetMaxGasAvailable returns the total gas the operation may consume.
func (op *UserOperation) GetMaxGasAvailable() *big.Int {
	total := new(big.Int).Add(op.VerificationGasLimit(), op.CallGasLimit())
	if op.PreVerificationGas != nil {
		total.Add(total, op.PreVerificationGas)
	}
	return total
}

// GetMaxPrefund returns the most the EntryPoint can charge the sender's
// deposit for this operation: GetMaxGasAvailable * maxFeePerGas.
func (op *UserOperation) GetMaxPrefund() *big.Int {
	return new(big.Int).Mul(op.GetMaxGasAvailable(), op.MaxFeePerGas())
}
