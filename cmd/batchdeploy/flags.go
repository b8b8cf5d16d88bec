package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/blndgs/batchdeploy/deployer"
)

const EnvVarPrefix = "BATCHDEPLOY"

const (
	ChainCategory     = "1. CHAIN"
	ContractsCategory = "2. CONTRACTS"
	PolicyCategory    = "3. POLICY"
	MiscCategory      = "4. MISC"
)

func prefixEnvVars(names ...string) []string {
	envs := make([]string, 0, len(names))
	for _, name := range names {
		envs = append(envs, EnvVarPrefix+"_"+name)
	}
	return envs
}

var (
	RPCURLFlag = &cli.StringFlag{
		Name:     "rpc-url",
		Usage:    "Ethereum JSON-RPC endpoint",
		EnvVars:  prefixEnvVars("RPC_URL"),
		Category: ChainCategory,
	}
	PrivateKeyFlag = &cli.StringFlag{
		Name:     "private-key",
		Usage:    "Hex private key of the smart account owner",
		EnvVars:  prefixEnvVars("PRIVATE_KEY"),
		Category: ChainCategory,
	}
	ChainIDFlag = &cli.Uint64Flag{
		Name:     "chain-id",
		Usage:    "Expected chain id of the endpoint",
		EnvVars:  prefixEnvVars("CHAIN_ID"),
		Value:    deployer.DefaultChainID.Uint64(),
		Category: ChainCategory,
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:     "poll-interval",
		Usage:    "Interval between transaction receipt lookups",
		EnvVars:  prefixEnvVars("POLL_INTERVAL"),
		Value:    2 * time.Second,
		Category: ChainCategory,
	}
	ReceiptTimeoutFlag = &cli.DurationFlag{
		Name:     "receipt-timeout",
		Usage:    "Maximum wait for the receipt of a submitted deployment",
		EnvVars:  prefixEnvVars("RECEIPT_TIMEOUT"),
		Value:    deployer.DefaultReceiptTimeout,
		Category: ChainCategory,
	}
	EntryPointFlag = &cli.StringFlag{
		Name:     "entry-point",
		Usage:    "ERC-4337 EntryPoint v0.7 address",
		EnvVars:  prefixEnvVars("ENTRY_POINT"),
		Value:    deployer.DefaultEntryPoint.Hex(),
		Category: ContractsCategory,
	}
	TokenFactoryFlag = &cli.StringFlag{
		Name:     "token-factory",
		Usage:    "BatchTokenFactory address",
		EnvVars:  prefixEnvVars("TOKEN_FACTORY"),
		Value:    deployer.DefaultTokenFactory.Hex(),
		Category: ContractsCategory,
	}
	AccountFactoryFlag = &cli.StringFlag{
		Name:     "account-factory",
		Usage:    "SmartAccountFactory address",
		EnvVars:  prefixEnvVars("ACCOUNT_FACTORY"),
		Value:    deployer.DefaultAccountFactory.Hex(),
		Category: ContractsCategory,
	}
	MinBalanceFlag = &cli.StringFlag{
		Name:     "min-balance",
		Usage:    "Smart account balance in ETH below which deployments are refused",
		EnvVars:  prefixEnvVars("MIN_BALANCE"),
		Value:    "0.01",
		Category: PolicyCategory,
	}
	FallbackMaxFeeFlag = &cli.StringFlag{
		Name:     "fallback-max-fee",
		Usage:    "Max fee per gas in gwei when the network suggests none",
		EnvVars:  prefixEnvVars("FALLBACK_MAX_FEE"),
		Value:    "50",
		Category: PolicyCategory,
	}
	FallbackPriorityFeeFlag = &cli.StringFlag{
		Name:     "fallback-priority-fee",
		Usage:    "Max priority fee per gas in gwei when the network suggests none",
		EnvVars:  prefixEnvVars("FALLBACK_PRIORITY_FEE"),
		Value:    "2",
		Category: PolicyCategory,
	}
	YesFlag = &cli.BoolFlag{
		Name:     "yes",
		Aliases:  []string{"y"},
		Usage:    "Sign without asking for approval",
		EnvVars:  prefixEnvVars("YES"),
		Category: MiscCategory,
	}
	VerbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		EnvVars:  prefixEnvVars("VERBOSITY"),
		Value:    3,
		Category: MiscCategory,
	}

	TokenFlag = &cli.StringSliceFlag{
		Name:     "token",
		Aliases:  []string{"t"},
		Usage:    "Token to deploy as name:SYMBOL:supply (repeatable)",
		Required: true,
	}
	HTTPAddrFlag = &cli.StringFlag{
		Name:    "http.addr",
		Usage:   "Listen address of the HTTP API",
		EnvVars: prefixEnvVars("HTTP_ADDR"),
		Value:   ":8080",
	}
)

var Flags = []cli.Flag{
	RPCURLFlag,
	PrivateKeyFlag,
	ChainIDFlag,
	PollIntervalFlag,
	ReceiptTimeoutFlag,
	EntryPointFlag,
	TokenFactoryFlag,
	AccountFactoryFlag,
	MinBalanceFlag,
	FallbackMaxFeeFlag,
	FallbackPriorityFeeFlag,
	YesFlag,
	VerbosityFlag,
}
