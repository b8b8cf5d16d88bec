package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/goccy/go-json"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/blndgs/batchdeploy/api"
	"github.com/blndgs/batchdeploy/chain"
	"github.com/blndgs/batchdeploy/deployer"
	"github.com/blndgs/batchdeploy/wallet"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx context.Context, args []string) error {
	if err := loadEnv(); err != nil {
		return err
	}

	app := cli.NewApp()
	app.Name = "batchdeploy"
	app.Usage = "deploy batches of ERC-20 tokens through an ERC-4337 smart account"
	app.Version = Version
	if GitCommit != "" {
		app.Version += "-" + GitCommit
	}
	app.Flags = Flags
	app.Before = setupLogging
	app.Commands = []*cli.Command{
		{
			Name:   "account",
			Usage:  "Show the smart account of the owner key",
			Action: accountAction,
		},
		{
			Name:   "create-account",
			Usage:  "Deploy the smart account of the owner key",
			Action: createAccountAction,
		},
		{
			Name:   "deploy",
			Usage:  "Deploy tokens in one UserOperation",
			Flags:  []cli.Flag{TokenFlag},
			Action: deployAction,
		},
		{
			Name:   "inspect",
			Usage:  "Print the hash and gas bounds of a UserOperation in JSON form",
			Flags:  []cli.Flag{OperationFileFlag},
			Action: inspectAction,
		},
		{
			Name:   "serve",
			Usage:  "Serve the HTTP API",
			Flags:  []cli.Flag{HTTPAddrFlag},
			Action: serveAction,
		},
	}
	return app.RunContext(ctx, args)
}

func setupLogging(c *cli.Context) error {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	level := log.FromLegacyLevel(c.Int(VerbosityFlag.Name))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, useColor)))
	return nil
}

// newDeployer wires the wallet, the chain client and the deployer from flags.
func newDeployer(c *cli.Context) (*deployer.Deployer, func(), error) {
	cfg, err := newDeployerConfig(c)
	if err != nil {
		return nil, nil, err
	}

	key := c.String(PrivateKeyFlag.Name)
	if key == "" {
		return nil, nil, fmt.Errorf("--%s is required", PrivateKeyFlag.Name)
	}
	approve := promptApprover(os.Stdin, os.Stderr)
	if c.Bool(YesFlag.Name) {
		approve = wallet.AutoApprove
	}
	signer, err := wallet.FromHex(key, approve)
	if err != nil {
		return nil, nil, err
	}

	rpcURL := c.String(RPCURLFlag.Name)
	if rpcURL == "" {
		return nil, nil, fmt.Errorf("--%s is required", RPCURLFlag.Name)
	}
	logger := log.Root()
	client, err := chain.Dial(c.Context, chain.Config{
		RPCURL:       rpcURL,
		ChainID:      cfg.ChainID,
		PollInterval: c.Duration(PollIntervalFlag.Name),
	}, signer, logger)
	if err != nil {
		return nil, nil, err
	}

	d, err := deployer.New(cfg, client, signer, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return d, client.Close, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func accountAction(c *cli.Context) error {
	d, closeFn, err := newDeployer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	info, err := d.ResolveAccount(c.Context)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func createAccountAction(c *cli.Context) error {
	d, closeFn, err := newDeployer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	info, err := d.ResolveAccount(c.Context)
	if err != nil {
		return err
	}
	if info.Deployed {
		log.Info("Smart account already deployed", "account", info.Address)
		return printJSON(info)
	}

	info, err = d.CreateAccount(c.Context)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func deployAction(c *cli.Context) error {
	var specs []deployer.TokenSpec
	for _, value := range c.StringSlice(TokenFlag.Name) {
		spec, err := deployer.ParseTokenSpec(value)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}

	d, closeFn, err := newDeployer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, spec := range specs {
		if _, err := d.AddToken(spec); err != nil {
			return fmt.Errorf("token %s: %w", spec.Symbol, err)
		}
	}

	info, err := d.ResolveAccount(c.Context)
	if err != nil {
		return err
	}
	if !info.Deployed {
		return fmt.Errorf("smart account %s is not deployed yet, run create-account first", info.Address)
	}

	st, err := d.Deploy(c.Context)
	if perr := printJSON(st); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

func serveAction(c *cli.Context) error {
	d, closeFn, err := newDeployer(c)
	if err != nil {
		return err
	}
	defer closeFn()

	if info, err := d.ResolveAccount(c.Context); err != nil {
		log.Warn("Could not resolve smart account", "err", err)
	} else if !info.Deployed {
		log.Warn("Smart account is not deployed yet", "account", info.Address)
	}

	srv, err := api.NewServer(d, log.Root())
	if err != nil {
		return err
	}
	return srv.Run(c.Context, c.String(HTTPAddrFlag.Name))
}
