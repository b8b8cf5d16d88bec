// Package chaintest provides an in-memory chain.Backend that understands the
// smart account factory and smart account views.
package chaintest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blndgs/batchdeploy/chain"
	"github.com/blndgs/batchdeploy/codec"
	"github.com/blndgs/batchdeploy/contracts"
)

// Tx is a transaction submitted through Backend.SendTransaction.
type Tx struct {
	Hash  common.Hash
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Backend is a fake chain.Backend. Exported fields may be set before use;
// the maps are created by New.
type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Factory      common.Address
	Balances     map[common.Address]*big.Int
	Code         map[common.Address][]byte
	Nonces       map[common.Address]*big.Int

	Fees       *chain.Fees
	FeesErr    error
	BalanceErr error
	CallErr    error
	SendErr    error
	// Receipt, when set, produces the receipt of every non account-creation
	// transaction.
	Receipt func(tx Tx) (*types.Receipt, error)
	// OnSend, when set, is called after a transaction is accepted.
	OnSend func(tx Tx)

	Sent  []Tx
	Calls int
}

var _ chain.Backend = (*Backend)(nil)

func New(chainID *big.Int, factory common.Address) *Backend {
	return &Backend{
		ChainIDValue: chainID,
		Factory:      factory,
		Balances:     map[common.Address]*big.Int{},
		Code:         map[common.Address][]byte{},
		Nonces:       map[common.Address]*big.Int{},
	}
}

// AccountOf is the address the fake factory derives for owner.
func AccountOf(factory, owner common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(factory.Bytes(), owner.Bytes())[12:])
}

// NetworkCalls returns the number of Backend calls so far.
func (b *Backend) NetworkCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Calls
}

// Deploy marks addr as a contract.
func (b *Backend) Deploy(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Code[addr] = []byte{0x60, 0x00}
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls++
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls++
	if b.BalanceErr != nil {
		return nil, b.BalanceErr
	}
	if bal, ok := b.Balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *Backend) CodeAt(_ context.Context, account common.Address) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls++
	return common.CopyBytes(b.Code[account]), nil
}

func (b *Backend) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls++
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: short call data", chain.ErrReverted)
	}

	switch sel := data[:4]; {
	case to == b.Factory && bytes.Equal(sel, contracts.SmartAccountFactory.Methods["getAddress"].ID):
		args, err := contracts.SmartAccountFactory.Methods["getAddress"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		return contracts.SmartAccountFactory.Methods["getAddress"].Outputs.Pack(AccountOf(b.Factory, args[0].(common.Address)))
	case bytes.Equal(sel, contracts.SmartAccount.Methods["nonce"].ID):
		if len(b.Code[to]) == 0 {
			return nil, nil
		}
		nonce, ok := b.Nonces[to]
		if !ok {
			nonce = new(big.Int)
		}
		return contracts.SmartAccount.Methods["nonce"].Outputs.Pack(nonce)
	}
	return nil, &chain.RevertError{Err: errors.New("execution reverted")}
}

func (b *Backend) SuggestFees(context.Context) (*chain.Fees, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls++
	if b.FeesErr != nil {
		return nil, b.FeesErr
	}
	if b.Fees == nil {
		return &chain.Fees{}, nil
	}
	return b.Fees, nil
}

func (b *Backend) SendTransaction(_ context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	b.mu.Lock()
	b.Calls++
	if b.SendErr != nil {
		b.mu.Unlock()
		return common.Hash{}, b.SendErr
	}
	if value == nil {
		value = new(big.Int)
	}
	tx := Tx{
		Hash:  crypto.Keccak256Hash(big.NewInt(int64(len(b.Sent))).Bytes(), to.Bytes(), data),
		To:    to,
		Value: new(big.Int).Set(value),
		Data:  common.CopyBytes(data),
	}
	b.Sent = append(b.Sent, tx)
	onSend := b.OnSend
	b.mu.Unlock()

	if onSend != nil {
		onSend(tx)
	}
	return tx.Hash, nil
}

// WaitForReceipt fails with the context error when ctx is done. The Receipt
// hook runs without the backend lock held and may block.
func (b *Backend) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.Calls++
	hook := b.Receipt
	tx, created, err := b.settleLocked(hash)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if hook != nil && !created {
		return hook(tx)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(1)}, nil
}

// settleLocked finds a sent transaction and, for an account creation, deploys
// code at the derived address.
func (b *Backend) settleLocked(hash common.Hash) (Tx, bool, error) {
	createAccount := contracts.SmartAccountFactory.Methods["createAccount"]
	for _, tx := range b.Sent {
		if tx.Hash != hash {
			continue
		}
		if tx.To != b.Factory || !bytes.HasPrefix(tx.Data, createAccount.ID) {
			return tx, false, nil
		}
		args, err := createAccount.Inputs.Unpack(tx.Data[4:])
		if err != nil {
			return tx, true, err
		}
		b.Code[AccountOf(b.Factory, args[0].(common.Address))] = []byte{0x60, 0x00}
		return tx, true, nil
	}
	return Tx{}, false, fmt.Errorf("unknown transaction %s", hash)
}

// Selector returns the four byte selector of a sent transaction.
func (tx Tx) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], tx.Data)
	return sel
}

// IsCall reports whether tx calls the method with the given canonical
// signature.
func (tx Tx) IsCall(signature string) bool {
	return tx.Selector() == codec.Selector(signature)
}
