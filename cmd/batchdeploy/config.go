package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/blndgs/batchdeploy/deployer"
	"github.com/blndgs/batchdeploy/wallet"
)

const gweiDecimals = 9

// loadEnv reads BATCHDEPLOY_ENV_FILE, or .env, into the process environment
// without overriding variables that are already set.
func loadEnv() error {
	path := os.Getenv(EnvVarPrefix + "_ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func parseAddress(flag *cli.StringFlag, c *cli.Context) (common.Address, error) {
	value := c.String(flag.Name)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", flag.Name, value)
	}
	return common.HexToAddress(value), nil
}

// parseUnits scales a decimal amount by 10^decimals.
func parseUnits(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", value)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return scaled.BigInt(), nil
}

func newDeployerConfig(c *cli.Context) (deployer.Config, error) {
	var (
		cfg deployer.Config
		err error
	)
	if cfg.EntryPoint, err = parseAddress(EntryPointFlag, c); err != nil {
		return cfg, err
	}
	if cfg.TokenFactory, err = parseAddress(TokenFactoryFlag, c); err != nil {
		return cfg, err
	}
	if cfg.AccountFactory, err = parseAddress(AccountFactoryFlag, c); err != nil {
		return cfg, err
	}
	cfg.ChainID = new(big.Int).SetUint64(c.Uint64(ChainIDFlag.Name))
	cfg.ReceiptTimeout = c.Duration(ReceiptTimeoutFlag.Name)

	if cfg.MinBalance, err = parseUnits(c.String(MinBalanceFlag.Name), 18); err != nil {
		return cfg, fmt.Errorf("--%s: %w", MinBalanceFlag.Name, err)
	}
	if cfg.FallbackMaxFeePerGas, err = parseUnits(c.String(FallbackMaxFeeFlag.Name), gweiDecimals); err != nil {
		return cfg, fmt.Errorf("--%s: %w", FallbackMaxFeeFlag.Name, err)
	}
	if cfg.FallbackMaxPriorityFeePerGas, err = parseUnits(c.String(FallbackPriorityFeeFlag.Name), gweiDecimals); err != nil {
		return cfg, fmt.Errorf("--%s: %w", FallbackPriorityFeeFlag.Name, err)
	}

	cfg = cfg.WithDefaults()
	return cfg, cfg.Check()
}

// promptApprover asks on out and reads the answer from in.
func promptApprover(in io.Reader, out io.Writer) wallet.Approver {
	var mu sync.Mutex
	reader := bufio.NewReader(in)

	return func(_ context.Context, req wallet.Request) (bool, error) {
		mu.Lock()
		defer mu.Unlock()

		fmt.Fprint(out, wallet.Describe(req))
		fmt.Fprint(out, "Approve? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
			return false, fmt.Errorf("failed to read approval: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
