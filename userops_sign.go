package batchdeploy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MessageSigner is the external signing capability, normally a wallet that
// asks a human for approval. SignMessage must apply the EIP-191 personal
// message prefix ("\x19Ethereum Signed Message:\n" + len(msg)) before signing,
// matching the smart account's default signature check.
type MessageSigner interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

// Sign asks signer to sign the raw bytes of hash.
//
// Returns:
//   - []byte: The 65 byte signature.
//   - error: ErrSignerUnavailable when signer is nil, or the signer's error,
//     which matches ErrSigningRejected when the human declined.
func Sign(ctx context.Context, hash common.Hash, signer MessageSigner) ([]byte, error) {
	if signer == nil {
		return nil, ErrSignerUnavailable
	}
	sig, err := signer.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if len(sig) == 0 {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// SignWith computes the operation hash for entryPoint and chainID, signs it
// and attaches the signature. The operation is left untouched on failure.
func (op *UserOperation) SignWith(ctx context.Context, entryPoint common.Address, chainID *big.Int, signer MessageSigner) (common.Hash, error) {
	hash, err := op.GetUserOpHash(entryPoint, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash UserOperation: %w", err)
	}

	sig, err := Sign(ctx, hash, signer)
	if err != nil {
		return hash, err
	}
	op.Signature = sig
	return hash, nil
}
