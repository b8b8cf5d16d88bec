package main

import (
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/blndgs/batchdeploy"
)

var OperationFileFlag = &cli.StringFlag{
	Name:    "file",
	Aliases: []string{"f"},
	Usage:   "UserOperation JSON file, - for stdin",
	Value:   "-",
}

// operationSummary is what inspect prints for a UserOperation.
type operationSummary struct {
	UserOpHash      common.Hash     `json:"userOpHash"`
	Sender          common.Address  `json:"sender"`
	Nonce           string          `json:"nonce"`
	Factory         *common.Address `json:"factory,omitempty"`
	Paymaster       *common.Address `json:"paymaster,omitempty"`
	Signed          bool            `json:"signed"`
	MaxGasAvailable string          `json:"maxGasAvailable"`
	MaxPrefund      string          `json:"maxPrefund"`
}

func summarizeOperation(data []byte, entryPoint common.Address, chainID *big.Int) (operationSummary, error) {
	var op batchdeploy.UserOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return operationSummary{}, fmt.Errorf("invalid UserOperation: %w", err)
	}
	hash, err := op.GetUserOpHash(entryPoint, chainID)
	if err != nil {
		return operationSummary{}, err
	}

	s := operationSummary{
		UserOpHash:      hash,
		Sender:          op.Sender,
		Nonce:           op.Nonce.String(),
		Signed:          op.HasSignature(),
		MaxGasAvailable: op.GetMaxGasAvailable().String(),
		MaxPrefund:      batchdeploy.FromBaseUnits(op.GetMaxPrefund()),
	}
	if factory := op.GetFactory(); factory != (common.Address{}) {
		s.Factory = &factory
	}
	if paymaster := op.GetPaymaster(); paymaster != (common.Address{}) {
		s.Paymaster = &paymaster
	}
	return s, nil
}

func inspectAction(c *cli.Context) error {
	entryPoint, err := parseAddress(EntryPointFlag, c)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path := c.String(OperationFileFlag.Name); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	s, err := summarizeOperation(data, entryPoint, new(big.Int).SetUint64(c.Uint64(ChainIDFlag.Name)))
	if err != nil {
		return err
	}
	return printJSON(s)
}
