// Package deployer drives a batch token deployment through the owner's smart
// account: it keeps the pending token list, resolves the account, and turns
// the list into one signed UserOperation submitted to the EntryPoint.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/blndgs/batchdeploy"
	"github.com/blndgs/batchdeploy/account"
	"github.com/blndgs/batchdeploy/chain"
	"github.com/blndgs/batchdeploy/codec"
	"github.com/blndgs/batchdeploy/contracts"
)

// AccountInfo describes the smart account of the signer.
type AccountInfo struct {
	Owner    common.Address `json:"owner"`
	Address  common.Address `json:"address"`
	Deployed bool           `json:"deployed"`
	Balance  string         `json:"balance"`
}

type Deployer struct {
	cfg      Config
	backend  chain.Backend
	signer   batchdeploy.MessageSigner
	resolver *account.Resolver
	logger   log.Logger

	mu      sync.Mutex
	tokens  []TokenSpec
	account common.Address
	status  Status
	running bool
}

// New validates cfg after filling defaults. signer may be nil, in which case
// every operation that needs the owner fails.
func New(cfg Config, backend chain.Backend, signer batchdeploy.MessageSigner, logger log.Logger) (*Deployer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid deployer config: %w", err)
	}
	if err := NewValidator(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Deployer{
		cfg:      cfg,
		backend:  backend,
		signer:   signer,
		resolver: account.NewResolver(cfg.AccountFactory, backend, logger),
		logger:   logger,
		status:   Status{State: Idle},
	}, nil
}

// Config returns the effective configuration.
func (d *Deployer) Config() Config {
	return d.cfg
}

// AddToken validates spec, upper-cases its symbol, assigns an id and appends
// it to the pending list.
func (d *Deployer) AddToken(spec TokenSpec) (TokenSpec, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return TokenSpec{}, &Failure{Kind: ValidationError, Message: "invalid token", Err: err}
	}
	spec.ID = newTokenID()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, spec)
	return spec, nil
}

// RemoveToken drops the pending token with the given id.
func (d *Deployer) RemoveToken(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, t := range d.tokens {
		if t.ID == id {
			d.tokens = append(d.tokens[:i:i], d.tokens[i+1:]...)
			return true
		}
	}
	return false
}

// Tokens returns a copy of the pending list.
func (d *Deployer) Tokens() []TokenSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]TokenSpec{}, d.tokens...)
}

// Status returns a snapshot of the current status.
func (d *Deployer) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Deployer) snapshot() Status {
	s := d.status
	s.Account = d.account
	if s.Records != nil {
		s.Records = append([]DeploymentRecord{}, s.Records...)
	}
	return s
}

// Reset returns a finished attempt to Idle. The pending list is kept.
func (d *Deployer) Reset() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return validationFailure("a deployment is in progress")
	}
	d.status = Status{State: Idle}
	s := d.snapshot()
	d.mu.Unlock()

	d.notify(s)
	return nil
}

// ResolveAccount derives the signer's smart account and remembers it when it
// is deployed.
func (d *Deployer) ResolveAccount(ctx context.Context) (AccountInfo, error) {
	if d.signer == nil {
		return AccountInfo{}, batchdeploy.ErrSignerUnavailable
	}
	owner := d.signer.Address()

	addr, err := d.resolver.DeriveAddress(ctx, owner)
	if err != nil {
		return AccountInfo{}, err
	}
	return d.inspect(ctx, owner, addr)
}

// CreateAccount deploys the signer's smart account through the factory, then
// checks that code exists at the derived address.
func (d *Deployer) CreateAccount(ctx context.Context) (AccountInfo, error) {
	if d.signer == nil {
		return AccountInfo{}, batchdeploy.ErrSignerUnavailable
	}
	owner := d.signer.Address()

	addr, err := d.resolver.Create(ctx, owner)
	if err != nil {
		return AccountInfo{}, err
	}
	info, err := d.inspect(ctx, owner, addr)
	if err != nil {
		return AccountInfo{}, err
	}
	if !info.Deployed {
		return info, fmt.Errorf("no code at %s after account creation", addr)
	}
	return info, nil
}

func (d *Deployer) inspect(ctx context.Context, owner, addr common.Address) (AccountInfo, error) {
	deployed, err := d.resolver.Exists(ctx, addr)
	if err != nil {
		return AccountInfo{}, err
	}
	balance, err := d.backend.BalanceAt(ctx, addr)
	if err != nil {
		return AccountInfo{}, err
	}

	if deployed {
		d.mu.Lock()
		d.account = addr
		d.mu.Unlock()
		d.logger.Info("Smart account resolved", "owner", owner, "account", addr, "balance", batchdeploy.FromBaseUnits(balance))
	}
	return AccountInfo{
		Owner:    owner,
		Address:  addr,
		Deployed: deployed,
		Balance:  batchdeploy.FromBaseUnits(balance),
	}, nil
}

// Deploy runs one attempt over the pending list. It returns the final status
// and, when the attempt failed, the *Failure.
func (d *Deployer) Deploy(ctx context.Context) (Status, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return d.Status(), validationFailure("a deployment is already in progress")
	}
	if len(d.tokens) == 0 {
		return d.refuseLocked(validationFailure("no tokens to deploy"))
	}
	if d.account == (common.Address{}) {
		return d.refuseLocked(validationFailure("no smart account resolved; resolve or create the account first"))
	}
	if d.signer == nil {
		return d.refuseLocked(classify("sign", batchdeploy.ErrSignerUnavailable))
	}
	tokens := append([]TokenSpec{}, d.tokens...)
	smartAccount := d.account
	d.running = true
	d.status = Status{State: Preparing}
	s := d.snapshot()
	d.mu.Unlock()
	d.notify(s)

	logger := d.logger.New("account", smartAccount, "tokens", len(tokens))
	records, txHash, err := d.deploy(ctx, logger, smartAccount, tokens)

	d.mu.Lock()
	d.running = false
	if err != nil {
		f := classify("deployment failed", err)
		if f.Account == (common.Address{}) {
			f.Account = smartAccount
		}
		d.status.TxHash = txHash
		st, ferr := d.failLocked(f)
		logger.Warn("Deployment failed", "kind", f.Kind, "err", f)
		return st, ferr
	}

	d.removeLocked(tokens)
	d.status.State = Success
	d.status.TxHash = txHash
	d.status.Records = records
	s = d.snapshot()
	d.mu.Unlock()
	d.notify(s)

	logger.Info("Deployment succeeded", "tx", txHash, "records", len(records))
	return s, nil
}

// deploy performs the network part of an attempt. The caller owns the
// final status.
func (d *Deployer) deploy(ctx context.Context, logger log.Logger, smartAccount common.Address, tokens []TokenSpec) ([]DeploymentRecord, common.Hash, error) {
	balance, err := d.backend.BalanceAt(ctx, smartAccount)
	if err != nil {
		return nil, common.Hash{}, classify("failed to read smart account balance", err)
	}
	if balance.Cmp(d.cfg.MinBalance) < 0 {
		shortfall := new(big.Int).Sub(d.cfg.MinBalance, balance)
		return nil, common.Hash{}, &Failure{
			Kind: InsufficientFunds,
			Message: fmt.Sprintf("smart account holds %s ETH, below the %s ETH minimum; send at least %s ETH to %s",
				batchdeploy.FromBaseUnits(balance), batchdeploy.FromBaseUnits(d.cfg.MinBalance),
				batchdeploy.FromBaseUnits(shortfall), smartAccount),
			Account:   smartAccount,
			Shortfall: shortfall,
		}
	}

	callData, err := d.encodeCallData(tokens)
	if err != nil {
		return nil, common.Hash{}, err
	}

	nonce, err := d.resolver.Nonce(ctx, smartAccount)
	if err != nil {
		return nil, common.Hash{}, classify("failed to read smart account nonce", err)
	}
	fees, err := d.fees(ctx)
	if err != nil {
		return nil, common.Hash{}, classify("failed to read fee suggestions", err)
	}

	op, err := batchdeploy.Build(batchdeploy.BuildParams{
		Sender:               smartAccount,
		Nonce:                nonce,
		CallData:             callData,
		VerificationGasLimit: d.cfg.VerificationGasLimit,
		CallGasLimit:         d.cfg.CallGasLimit,
		PreVerificationGas:   d.cfg.PreVerificationGas,
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
	})
	if err != nil {
		return nil, common.Hash{}, classify("failed to build UserOperation", err)
	}

	opHash, err := op.SignWith(ctx, d.cfg.EntryPoint, d.cfg.ChainID, d.signer)
	if err != nil {
		return nil, common.Hash{}, err
	}
	logger.Debug("UserOperation signed", "hash", opHash, "nonce", nonce, "maxFee", fees.MaxFeePerGas,
		"tip", fees.MaxPriorityFeePerGas, "maxPrefund", batchdeploy.FromBaseUnits(op.GetMaxPrefund()))
	logger.Trace("Signed UserOperation", "op", op.String())

	beneficiary := d.signer.Address()
	handleOps, err := codec.EncodeCall(contracts.EntryPoint, "handleOps", []batchdeploy.UserOperation{*op}, beneficiary)
	if err != nil {
		return nil, common.Hash{}, classify("failed to encode handleOps", err)
	}

	s := d.setStatus(func(s *Status) {
		s.State = Submitting
		s.UserOpHash = opHash
		s.UserOperation = op
	})
	d.notify(s)

	// From here on the operation may be on chain: the attempt runs to its
	// outcome even if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ReceiptTimeout)
	defer cancel()

	txHash, err := d.backend.SendTransaction(ctx, d.cfg.EntryPoint, nil, handleOps)
	if err != nil {
		return nil, common.Hash{}, revertFailure(err, "")
	}
	logger.Info("UserOperation submitted", "userOpHash", opHash, "tx", txHash)

	receipt, err := d.backend.WaitForReceipt(ctx, txHash)
	if err != nil {
		reason := ""
		if receipt != nil {
			reason = contracts.FindRevertReason(receipt.Logs, d.cfg.EntryPoint, opHash)
		}
		return nil, txHash, revertFailure(err, reason)
	}

	event, err := contracts.FindUserOperationEvent(receipt.Logs, d.cfg.EntryPoint, opHash)
	if err != nil {
		return nil, txHash, &Failure{Kind: EncodingError, Message: "malformed UserOperationEvent in receipt", Err: err}
	}
	if event != nil && !event.Success {
		reason := contracts.FindRevertReason(receipt.Logs, d.cfg.EntryPoint, opHash)
		return nil, txHash, revertFailure(fmt.Errorf("%w: UserOperation %s execution failed", chain.ErrReverted, opHash), reason)
	}

	records, err := d.records(receipt)
	if err != nil {
		return nil, txHash, err
	}
	if len(records) != len(tokens) {
		logger.Warn("Unexpected number of deployed tokens", "want", len(tokens), "got", len(records))
	}
	return records, txHash, nil
}

func (d *Deployer) encodeCallData(tokens []TokenSpec) ([]byte, error) {
	params := make([]contracts.TokenParams, 0, len(tokens))
	for _, t := range tokens {
		p, err := t.params()
		if err != nil {
			return nil, &Failure{Kind: ValidationError, Message: "malformed supply value", Err: err}
		}
		params = append(params, p)
	}

	batch, err := codec.EncodeCall(contracts.BatchTokenFactory, "batchDeployTokens", params)
	if err != nil {
		return nil, classify("failed to encode batchDeployTokens", err)
	}
	execute, err := codec.EncodeCall(contracts.SmartAccount, "execute", d.cfg.TokenFactory, new(big.Int), batch)
	if err != nil {
		return nil, classify("failed to encode execute", err)
	}
	return execute, nil
}

// fees returns the network suggestion with each missing value replaced by
// its fallback.
func (d *Deployer) fees(ctx context.Context) (*chain.Fees, error) {
	suggested, err := d.backend.SuggestFees(ctx)
	if err != nil {
		return nil, err
	}
	fees := &chain.Fees{
		MaxFeePerGas:         d.cfg.FallbackMaxFeePerGas,
		MaxPriorityFeePerGas: d.cfg.FallbackMaxPriorityFeePerGas,
	}
	if suggested != nil && suggested.MaxFeePerGas != nil {
		fees.MaxFeePerGas = suggested.MaxFeePerGas
	}
	if suggested != nil && suggested.MaxPriorityFeePerGas != nil {
		fees.MaxPriorityFeePerGas = suggested.MaxPriorityFeePerGas
	}
	if fees.MaxPriorityFeePerGas.Cmp(fees.MaxFeePerGas) > 0 {
		fees.MaxPriorityFeePerGas = fees.MaxFeePerGas
	}
	return fees, nil
}

// records decodes the TokenDeployed logs emitted by the token factory. Logs
// of other events are skipped; a TokenDeployed log that does not decode is an
// error.
func (d *Deployer) records(receipt *types.Receipt) ([]DeploymentRecord, error) {
	var records []DeploymentRecord
	for _, l := range receipt.Logs {
		if l.Address != d.cfg.TokenFactory {
			continue
		}
		ev, err := contracts.DecodeTokenDeployed(l)
		if errors.Is(err, contracts.ErrNotTokenDeployed) {
			continue
		}
		if err != nil {
			return nil, &Failure{Kind: EncodingError, Message: "failed to decode TokenDeployed log", Err: err}
		}
		records = append(records, DeploymentRecord{
			Name:   ev.Name,
			Symbol: ev.Symbol,
			Token:  ev.Token,
			Owner:  ev.Owner,
			Supply: batchdeploy.FromBaseUnits(ev.InitialSupply),
		})
	}
	return records, nil
}

func revertFailure(err error, reason string) error {
	f := classify("failed to submit UserOperation", err)
	if f.Kind != SubmissionReverted {
		return f
	}
	if reason == "" {
		var revert *chain.RevertError
		if errors.As(err, &revert) {
			reason = contracts.DecodeRevert(revert.Data)
		}
	}
	if reason != "" {
		f.Message = fmt.Sprintf("%s (reason: %s)", fundingHint, reason)
	}
	return f
}

func (d *Deployer) setStatus(update func(*Status)) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	update(&d.status)
	return d.snapshot()
}

// refuseLocked fails a new attempt before it starts.
func (d *Deployer) refuseLocked(f *Failure) (Status, error) {
	d.status = Status{}
	return d.failLocked(f)
}

// failLocked moves to Failed, releases d.mu and notifies.
func (d *Deployer) failLocked(f *Failure) (Status, error) {
	d.status.State = Failed
	d.status.Failure = f
	d.status.Records = nil
	s := d.snapshot()
	d.mu.Unlock()

	d.notify(s)
	return s, f
}

func (d *Deployer) removeLocked(deployed []TokenSpec) {
	done := make(map[string]bool, len(deployed))
	for _, t := range deployed {
		done[t.ID] = true
	}
	kept := d.tokens[:0]
	for _, t := range d.tokens {
		if !done[t.ID] {
			kept = append(kept, t)
		}
	}
	d.tokens = kept
}

func (d *Deployer) notify(s Status) {
	if d.cfg.OnStatus != nil {
		d.cfg.OnStatus(s)
	}
}
