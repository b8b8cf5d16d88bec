package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

const defaultPollInterval = 2 * time.Second

// TxSigner signs transactions on behalf of the wallet. It may ask a human for
// approval and fail with an error matching batchdeploy.ErrSigningRejected.
type TxSigner interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// EthBackend is the subset of *ethclient.Client the Client uses.
type EthBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Config struct {
	RPCURL string
	// ChainID, when set, must match the chain behind RPCURL.
	ChainID *big.Int
	// PollInterval between receipt lookups; defaults to 2s.
	PollInterval time.Duration
}

// Client implements Backend over an Ethereum JSON-RPC endpoint.
type Client struct {
	eth          EthBackend
	chainID      *big.Int
	signer       TxSigner
	pollInterval time.Duration
	logger       log.Logger
}

var _ Backend = (*Client)(nil)

// Dial connects to cfg.RPCURL and checks the chain id.
func Dial(ctx context.Context, cfg Config, signer TxSigner, logger log.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	c, err := NewClient(ctx, eth, signer, logger)
	if err != nil {
		eth.Close()
		return nil, err
	}
	if cfg.ChainID != nil && cfg.ChainID.Sign() > 0 && cfg.ChainID.Cmp(c.chainID) != 0 {
		eth.Close()
		return nil, fmt.Errorf("chain id mismatch: endpoint reports %s, configured %s", c.chainID, cfg.ChainID)
	}
	if cfg.PollInterval > 0 {
		c.pollInterval = cfg.PollInterval
	}
	return c, nil
}

// NewClient wraps an existing backend; it reads the chain id once.
func NewClient(ctx context.Context, eth EthBackend, signer TxSigner, logger log.Logger) (*Client, error) {
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain health check failed: %w", err)
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Client{
		eth:          eth,
		chainID:      chainID,
		signer:       signer,
		pollInterval: defaultPollInterval,
		logger:       logger.New("chain", chainID),
	}, nil
}

// Close releases the RPC connection when the backend owns one.
func (c *Client) Close() {
	if closer, ok := c.eth.(interface{ Close() }); ok {
		closer.Close()
	}
}

// SetPollInterval changes the receipt polling period.
func (c *Client) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

func (c *Client) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", account, err)
	}
	return balance, nil
}

func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code of %s: %w", account, err)
	}
	return code, nil
}

func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("call to %s failed: %w", to, err))
	}
	return out, nil
}

// SuggestFees derives EIP-1559 fees as 2*baseFee + tip. On chains without a
// base fee both values are nil.
func (c *Client) SuggestFees(ctx context.Context) (*Fees, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	if head.BaseFee == nil {
		return &Fees{}, nil
	}

	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	maxFee := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	return &Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

func (c *Client) SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoWallet
	}
	if value == nil {
		value = new(big.Int)
	}
	from := c.signer.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return common.Hash{}, classify(fmt.Errorf("failed to estimate gas: %w", err))
	}
	gas += gas / 5

	var tx *types.Transaction
	fees, err := c.SuggestFees(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if fees.MaxFeePerGas != nil {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			GasTipCap: fees.MaxPriorityFeePerGas,
			GasFeeCap: fees.MaxFeePerGas,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}

	signed, err := c.signer.SignTx(ctx, tx, c.chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, classify(fmt.Errorf("failed to send transaction: %w", err))
	}

	c.logger.Info("Transaction sent", "hash", signed.Hash(), "from", from, "to", to, "nonce", nonce, "gas", gas)
	return signed.Hash(), nil
}

func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, &RevertError{Err: fmt.Errorf("transaction %s reverted in block %s", hash, receipt.BlockNumber)}
			}
			c.logger.Debug("Transaction included", "hash", hash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// classify maps node errors onto ErrReverted and ErrInsufficientFunds.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "insufficient funds") {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}

	// rpc errors always implement DataError; an empty payload is not a revert.
	var data []byte
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		data = revertData(dataErr.ErrorData())
	}
	if len(data) > 0 || isRevertCode(err) || strings.Contains(msg, "revert") {
		return &RevertError{Data: data, Err: err}
	}
	return err
}

const revertErrorCode = 3

func isRevertCode(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode
}

func revertData(data interface{}) []byte {
	s, ok := data.(string)
	if !ok {
		return nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil
	}
	return b
}
