// Package chain is the chain-access capability used by the account resolver
// and the deployment orchestrator: balance, code and view reads, fee
// suggestions, transaction submission and receipt waiting.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Fees are the EIP-1559 fee suggestions of the network. Either value is nil
// when the network does not provide it.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Backend is everything the core needs from a chain.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SuggestFees(ctx context.Context) (*Fees, error)
	// SendTransaction signs and submits a transaction from the wallet.
	SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)
	// WaitForReceipt blocks until the transaction is included or ctx ends.
	// A receipt with a failed status is returned together with an error
	// matching ErrReverted.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

var (
	// ErrReverted matches execution reverts, either during gas estimation or
	// of an included transaction.
	ErrReverted = errors.New("execution reverted")
	// ErrInsufficientFunds matches node rejections for lack of balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoWallet is returned by SendTransaction without a transaction signer.
	ErrNoWallet = errors.New("no wallet configured for sending transactions")
)

// RevertError carries the raw revert data when the node returned it.
type RevertError struct {
	Data []byte
	Err  error
}

func (e *RevertError) Error() string {
	return e.Err.Error()
}

func (e *RevertError) Unwrap() []error {
	return []error{ErrReverted, e.Err}
}
