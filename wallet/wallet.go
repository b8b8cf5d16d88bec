// Package wallet is a local private-key wallet implementing both signing
// capabilities: batchdeploy.MessageSigner and chain.TxSigner.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blndgs/batchdeploy"
	"github.com/blndgs/batchdeploy/chain"
)

type RequestKind string

const (
	SignMessageRequest     RequestKind = "message"
	SignTransactionRequest RequestKind = "transaction"
)

// Request describes what the wallet is about to sign.
type Request struct {
	Kind    RequestKind
	From    common.Address
	Message []byte
	Tx      *types.Transaction
}

// Approver is asked before every signature. Returning false declines the
// request.
type Approver func(ctx context.Context, req Request) (bool, error)

// AutoApprove approves every request.
func AutoApprove(context.Context, Request) (bool, error) {
	return true, nil
}

type Key struct {
	key     *ecdsa.PrivateKey
	address common.Address
	approve Approver
}

var (
	_ batchdeploy.MessageSigner = (*Key)(nil)
	_ chain.TxSigner            = (*Key)(nil)
)

// New wraps key. A nil approve approves everything.
func New(key *ecdsa.PrivateKey, approve Approver) *Key {
	if approve == nil {
		approve = AutoApprove
	}
	return &Key{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		approve: approve,
	}
}

// FromHex parses a hex private key, with or without 0x prefix.
func FromHex(hexKey string, approve Approver) (*Key, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return New(key, approve), nil
}

func (k *Key) Address() common.Address {
	return k.address
}

// SignMessage signs msg as an EIP-191 personal message. The recovery id is
// returned as 27/28.
func (k *Key) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := k.confirm(ctx, Request{Kind: SignMessageRequest, From: k.address, Message: msg}); err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(msg), k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (k *Key) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := k.confirm(ctx, Request{Kind: SignTransactionRequest, From: k.address, Tx: tx}); err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), k.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

func (k *Key) confirm(ctx context.Context, req Request) error {
	ok, err := k.approve(ctx, req)
	if err != nil {
		return fmt.Errorf("%s signature request failed: %w", req.Kind, err)
	}
	if !ok {
		return fmt.Errorf("%s signature declined by %s: %w", req.Kind, k.address, batchdeploy.ErrSigningRejected)
	}
	return nil
}

// Describe renders req for a human approval prompt.
func Describe(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sign %s as %s\n", req.Kind, req.From)
	switch req.Kind {
	case SignMessageRequest:
		fmt.Fprintf(&b, "  message: %s\n", hexutil.Encode(req.Message))
	case SignTransactionRequest:
		if req.Tx == nil {
			break
		}
		to := "contract creation"
		if req.Tx.To() != nil {
			to = req.Tx.To().Hex()
		}
		fmt.Fprintf(&b, "  to:    %s\n", to)
		fmt.Fprintf(&b, "  value: %s wei\n", req.Tx.Value())
		fmt.Fprintf(&b, "  gas:   %d\n", req.Tx.Gas())
		fmt.Fprintf(&b, "  data:  %d bytes\n", len(req.Tx.Data()))
	}
	return b.String()
}
