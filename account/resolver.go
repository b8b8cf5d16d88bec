// Package account resolves the smart account owned by a wallet: its
// counterfactual address, whether it is deployed, its creation and its nonce.
package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/blndgs/batchdeploy/chain"
	"github.com/blndgs/batchdeploy/codec"
	"github.com/blndgs/batchdeploy/contracts"
)

type Resolver struct {
	factory common.Address
	backend chain.Backend
	logger  log.Logger
}

func NewResolver(factory common.Address, backend chain.Backend, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.Root()
	}
	return &Resolver{
		factory: factory,
		backend: backend,
		logger:  logger.New("factory", factory),
	}
}

// Factory returns the smart account factory address.
func (r *Resolver) Factory() common.Address {
	return r.factory
}

// DeriveAddress asks the factory for the account address of owner with salt
// zero. The result depends only on (factory, owner).
func (r *Resolver) DeriveAddress(ctx context.Context, owner common.Address) (common.Address, error) {
	data, err := codec.EncodeCall(contracts.SmartAccountFactory, "getAddress", owner, contracts.AccountSalt)
	if err != nil {
		return common.Address{}, err
	}

	out, err := r.backend.CallContract(ctx, r.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to derive account of %s: %w", owner, err)
	}

	values, err := contracts.SmartAccountFactory.Unpack("getAddress", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getAddress result: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getAddress result %T", values[0])
	}
	return addr, nil
}

// Exists reports whether contract code is deployed at addr.
func (r *Resolver) Exists(ctx context.Context, addr common.Address) (bool, error) {
	code, err := r.backend.CodeAt(ctx, addr)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Create sends createAccount(owner, 0) from the wallet, waits for inclusion and
// returns the re-derived account address. The return value of the creation
// call itself is never read.
func (r *Resolver) Create(ctx context.Context, owner common.Address) (common.Address, error) {
	data, err := codec.EncodeCall(contracts.SmartAccountFactory, "createAccount", owner, contracts.AccountSalt)
	if err != nil {
		return common.Address{}, err
	}

	hash, err := r.backend.SendTransaction(ctx, r.factory, nil, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to submit account creation: %w", err)
	}
	r.logger.Info("Account creation submitted", "owner", owner, "tx", hash)

	if _, err := r.backend.WaitForReceipt(ctx, hash); err != nil {
		return common.Address{}, fmt.Errorf("account creation %s failed: %w", hash, err)
	}

	addr, err := r.DeriveAddress(ctx, owner)
	if err != nil {
		return common.Address{}, err
	}
	r.logger.Info("Account created", "owner", owner, "account", addr)
	return addr, nil
}

// Nonce reads the account's current EntryPoint nonce through its nonce() view.
func (r *Resolver) Nonce(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := codec.EncodeCall(contracts.SmartAccount, "nonce")
	if err != nil {
		return nil, err
	}

	out, err := r.backend.CallContract(ctx, account, data)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce of %s: %w", account, err)
	}

	values, err := contracts.SmartAccount.Unpack("nonce", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce result: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce result %T", values[0])
	}
	return nonce, nil
}
