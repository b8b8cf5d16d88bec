package deployer

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// Sepolia deployment of the contracts the deployer talks to.
var (
	DefaultEntryPoint     = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	DefaultTokenFactory   = common.HexToAddress("0xa667A04fBe2FDFD3d16c14C60EC1C300e7190d85")
	DefaultAccountFactory = common.HexToAddress("0x8838EA1d2188f63f9187573A77d4b0B31193086D")
	DefaultChainID        = big.NewInt(11155111)
)

const (
	DefaultVerificationGasLimit = 500_000
	DefaultCallGasLimit         = 2_000_000
	DefaultPreVerificationGas   = 100_000

	DefaultReceiptTimeout = 5 * time.Minute
)

var (
	// DefaultMinBalance is 0.01 ETH.
	DefaultMinBalance                   = new(big.Int).Div(big.NewInt(params.Ether), big.NewInt(100))
	DefaultFallbackMaxFeePerGas         = big.NewInt(50 * params.GWei)
	DefaultFallbackMaxPriorityFeePerGas = big.NewInt(2 * params.GWei)
)

type Config struct {
	EntryPoint     common.Address
	TokenFactory   common.Address
	AccountFactory common.Address
	ChainID        *big.Int

	// MinBalance is the smart account balance below which Deploy refuses to
	// submit.
	MinBalance *big.Int
	// Used when the network does not suggest EIP-1559 fees.
	FallbackMaxFeePerGas         *big.Int
	FallbackMaxPriorityFeePerGas *big.Int

	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	PreVerificationGas   *big.Int

	// ReceiptTimeout bounds the wait for the handleOps receipt. The wait
	// ignores cancellation of the Deploy context.
	ReceiptTimeout time.Duration

	// OnStatus, if set, is called after every status change. It runs with the
	// deployer lock released and must not block for long.
	OnStatus func(Status)
}

// DefaultConfig returns the Sepolia configuration.
func DefaultConfig() Config {
	return Config{
		EntryPoint:     DefaultEntryPoint,
		TokenFactory:   DefaultTokenFactory,
		AccountFactory: DefaultAccountFactory,
		ChainID:        new(big.Int).Set(DefaultChainID),
	}
}

// WithDefaults fills every unset policy value.
func (c Config) WithDefaults() Config {
	if c.MinBalance == nil {
		c.MinBalance = new(big.Int).Set(DefaultMinBalance)
	}
	if c.FallbackMaxFeePerGas == nil {
		c.FallbackMaxFeePerGas = new(big.Int).Set(DefaultFallbackMaxFeePerGas)
	}
	if c.FallbackMaxPriorityFeePerGas == nil {
		c.FallbackMaxPriorityFeePerGas = new(big.Int).Set(DefaultFallbackMaxPriorityFeePerGas)
	}
	if c.VerificationGasLimit == nil {
		c.VerificationGasLimit = big.NewInt(DefaultVerificationGasLimit)
	}
	if c.CallGasLimit == nil {
		c.CallGasLimit = big.NewInt(DefaultCallGasLimit)
	}
	if c.PreVerificationGas == nil {
		c.PreVerificationGas = big.NewInt(DefaultPreVerificationGas)
	}
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = DefaultReceiptTimeout
	}
	return c
}

// Check validates the configuration after defaults are applied.
func (c Config) Check() error {
	var errs []error
	for _, a := range []struct {
		name string
		addr common.Address
	}{
		{"entry point", c.EntryPoint},
		{"token factory", c.TokenFactory},
		{"account factory", c.AccountFactory},
	} {
		if a.addr == (common.Address{}) {
			errs = append(errs, fmt.Errorf("%s address is not set", a.name))
		}
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		errs = append(errs, errors.New("chain id must be positive"))
	}
	if c.MinBalance == nil || c.MinBalance.Sign() < 0 {
		errs = append(errs, errors.New("minimum balance must not be negative"))
	}
	for _, v := range []struct {
		name  string
		value *big.Int
	}{
		{"fallback max fee per gas", c.FallbackMaxFeePerGas},
		{"fallback max priority fee per gas", c.FallbackMaxPriorityFeePerGas},
		{"verification gas limit", c.VerificationGasLimit},
		{"call gas limit", c.CallGasLimit},
		{"pre-verification gas", c.PreVerificationGas},
	} {
		if v.value == nil || v.value.Sign() <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", v.name))
		}
	}
	if c.ReceiptTimeout <= 0 {
		errs = append(errs, errors.New("receipt timeout must be positive"))
	}
	if c.FallbackMaxFeePerGas != nil && c.FallbackMaxPriorityFeePerGas != nil &&
		c.FallbackMaxPriorityFeePerGas.Cmp(c.FallbackMaxFeePerGas) > 0 {
		errs = append(errs, errors.New("fallback priority fee exceeds fallback max fee"))
	}
	return errors.Join(errs...)
}
