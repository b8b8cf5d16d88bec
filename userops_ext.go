// This file defines the JSON wire form of a UserOperation (the unpacked
// EntryPoint v0.7 layout used by eth_sendUserOperation) and other
// extensions to the UserOperation struct.
//
// The packed on-chain fields are expanded on the wire:
//
//	initCode         = factory (20 bytes) || factoryData
//	accountGasLimits = verificationGasLimit (16 bytes) || callGasLimit (16 bytes)
//	gasFees          = maxPriorityFeePerGas (16 bytes) || maxFeePerGas (16 bytes)
//	paymasterAndData = paymaster (20 bytes) || paymasterVerificationGasLimit (16 bytes)
//	                   || paymasterPostOpGasLimit (16 bytes) || paymasterData
package batchdeploy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"

	"github.com/blndgs/batchdeploy/codec"
)

const (
	addressLength        = common.AddressLength
	paymasterGasLength   = 16
	paymasterFixedLength = addressLength + 2*paymasterGasLength
	signatureLength      = 65
)

type userOperationJSON struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

// HasSignature reports whether a 65 byte ECDSA signature is attached.
func (op *UserOperation) HasSignature() bool {
	return len(op.Signature) == signatureLength
}

// GetFactory returns the account factory encoded in InitCode, or the zero
// address when the operation does not create its sender.
func (op *UserOperation) GetFactory() common.Address {
	if len(op.InitCode) < addressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.InitCode[:addressLength])
}

// GetPaymaster returns the paymaster encoded in PaymasterAndData, or the zero
// address when the sender pays for itself.
func (op *UserOperation) GetPaymaster() common.Address {
	if len(op.PaymasterAndData) < addressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:addressLength])
}

// MarshalJSON encodes the operation in the unpacked v0.7 RPC form.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	verificationGas, callGas := codec.UnpackPair(op.AccountGasLimits)
	priorityFee, maxFee := codec.UnpackPair(op.GasFees)

	aux := userOperationJSON{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(bigOrZero(op.Nonce)),
		CallData:             hexutil.Bytes(op.CallData),
		CallGasLimit:         (*hexutil.Big)(callGas),
		VerificationGasLimit: (*hexutil.Big)(verificationGas),
		PreVerificationGas:   (*hexutil.Big)(bigOrZero(op.PreVerificationGas)),
		MaxFeePerGas:         (*hexutil.Big)(maxFee),
		MaxPriorityFeePerGas: (*hexutil.Big)(priorityFee),
		Signature:            hexutil.Bytes(op.Signature),
	}
	if aux.CallData == nil {
		aux.CallData = hexutil.Bytes{}
	}
	if aux.Signature == nil {
		aux.Signature = hexutil.Bytes{}
	}

	if len(op.InitCode) > 0 {
		if len(op.InitCode) < addressLength {
			return nil, fmt.Errorf("initCode shorter than a factory address: %d bytes", len(op.InitCode))
		}
		factory := op.GetFactory()
		aux.Factory = &factory
		aux.FactoryData = op.InitCode[addressLength:]
	}

	if len(op.PaymasterAndData) > 0 {
		if len(op.PaymasterAndData) < paymasterFixedLength {
			return nil, fmt.Errorf("paymasterAndData shorter than %d bytes: %d bytes", paymasterFixedLength, len(op.PaymasterAndData))
		}
		paymaster := op.GetPaymaster()
		offset := addressLength
		aux.Paymaster = &paymaster
		aux.PaymasterVerificationGasLimit = (*hexutil.Big)(new(big.Int).SetBytes(op.PaymasterAndData[offset : offset+paymasterGasLength]))
		offset += paymasterGasLength
		aux.PaymasterPostOpGasLimit = (*hexutil.Big)(new(big.Int).SetBytes(op.PaymasterAndData[offset : offset+paymasterGasLength]))
		offset += paymasterGasLength
		aux.PaymasterData = op.PaymasterAndData[offset:]
	}

	return json.Marshal(aux)
}

// UnmarshalJSON does the reverse of MarshalJSON, re-packing the gas words.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var aux userOperationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	for _, f := range []struct {
		name  string
		value *hexutil.Big
	}{
		{"nonce", aux.Nonce},
		{"callGasLimit", aux.CallGasLimit},
		{"verificationGasLimit", aux.VerificationGasLimit},
		{"preVerificationGas", aux.PreVerificationGas},
		{"maxFeePerGas", aux.MaxFeePerGas},
		{"maxPriorityFeePerGas", aux.MaxPriorityFeePerGas},
	} {
		if f.value == nil {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	gasLimits, err := codec.PackPair(aux.VerificationGasLimit.ToInt(), aux.CallGasLimit.ToInt())
	if err != nil {
		return err
	}
	gasFees, err := codec.PackPair(aux.MaxPriorityFeePerGas.ToInt(), aux.MaxFeePerGas.ToInt())
	if err != nil {
		return err
	}

	initCode := []byte{}
	if aux.Factory != nil {
		initCode = append(aux.Factory.Bytes(), aux.FactoryData...)
	}

	paymasterAndData := []byte{}
	if aux.Paymaster != nil {
		pmGas, err := codec.PackPair(bigOrZero(aux.PaymasterVerificationGasLimit.ToInt()), bigOrZero(aux.PaymasterPostOpGasLimit.ToInt()))
		if err != nil {
			return err
		}
		paymasterAndData = make([]byte, 0, paymasterFixedLength+len(aux.PaymasterData))
		paymasterAndData = append(paymasterAndData, aux.Paymaster.Bytes()...)
		paymasterAndData = append(paymasterAndData, pmGas[:]...)
		paymasterAndData = append(paymasterAndData, aux.PaymasterData...)
	}

	*op = UserOperation{
		Sender:             aux.Sender,
		Nonce:              aux.Nonce.ToInt(),
		InitCode:           initCode,
		CallData:           nonNil(aux.CallData),
		AccountGasLimits:   gasLimits,
		PreVerificationGas: aux.PreVerificationGas.ToInt(),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          nonNil(aux.Signature),
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (op *UserOperation) String() string {
	formatBytes := func(b []byte) string {
		if len(b) == 0 {
			return "0x" // default for empty byte slice
		}
		return hexutil.Encode(b)
	}

	formatBigInt := func(b *big.Int) string {
		if b == nil {
			return "0x, 0" // Default for nil big.Int
		}
		return fmt.Sprintf("0x%x, %s", b, b.Text(10))
	}

	return fmt.Sprintf(
		"UserOperation{\n"+
			"  Sender: %s\n"+
			"  Nonce: %s\n"+
			"  InitCode: %s\n"+
			"  CallData: %s\n"+
			"  VerificationGasLimit: %s\n"+
			"  CallGasLimit: %s\n"+
			"  PreVerificationGas: %s\n"+
			"  MaxPriorityFeePerGas: %s\n"+
			"  MaxFeePerGas: %s\n"+
			"  PaymasterAndData: %s\n"+
			"  Signature: %s\n"+
			"}",
		op.Sender.String(),
		formatBigInt(op.Nonce),
		formatBytes(op.InitCode),
		formatBytes(op.CallData),
		formatBigInt(op.VerificationGasLimit()),
		formatBigInt(op.CallGasLimit()),
		formatBigInt(op.PreVerificationGas),
		formatBigInt(op.MaxPriorityFeePerGas()),
		formatBigInt(op.MaxFeePerGas()),
		formatBytes(op.PaymasterAndData),
		formatBytes(op.Signature),
	)
}
