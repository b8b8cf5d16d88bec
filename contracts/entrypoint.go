package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// UserOperationEvent is emitted by the EntryPoint once per executed operation.
// Success is false when the account's inner call reverted even though the
// handleOps transaction itself was included successfully.
type UserOperationEvent struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
}

// FindUserOperationEvent returns the UserOperationEvent for userOpHash emitted
// by entryPoint, or nil if logs do not contain one.
func FindUserOperationEvent(logs []*types.Log, entryPoint common.Address, userOpHash common.Hash) (*UserOperationEvent, error) {
	event := EntryPoint.Events["UserOperationEvent"]
	for _, l := range logs {
		if l.Address != entryPoint || len(l.Topics) != 4 || l.Topics[0] != event.ID || l.Topics[1] != userOpHash {
			continue
		}
		out := new(UserOperationEvent)
		if err := EntryPoint.UnpackIntoInterface(out, event.Name, l.Data); err != nil {
			return nil, fmt.Errorf("failed to decode UserOperationEvent: %w", err)
		}
		if err := abi.ParseTopics(out, indexedArgs(event.Inputs), l.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to decode UserOperationEvent topics: %w", err)
		}
		return out, nil
	}
	return nil, nil
}

// FindRevertReason returns the decoded revert reason the EntryPoint logged for
// userOpHash, or "" if there is none.
func FindRevertReason(logs []*types.Log, entryPoint common.Address, userOpHash common.Hash) string {
	event := EntryPoint.Events["UserOperationRevertReason"]
	for _, l := range logs {
		if l.Address != entryPoint || len(l.Topics) < 2 || l.Topics[0] != event.ID || l.Topics[1] != userOpHash {
			continue
		}
		out, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(out) != 2 {
			return ""
		}
		if raw, ok := out[1].([]byte); ok {
			return DecodeRevert(raw)
		}
	}
	return ""
}

// DecodeRevert renders revert data returned by the EntryPoint or an account.
// It understands Error(string), Panic(uint256), FailedOp and
// FailedOpWithRevert, and falls back to the hex encoding.
func DecodeRevert(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	for _, name := range []string{"FailedOp", "FailedOpWithRevert"} {
		e := EntryPoint.Errors[name]
		if len(data) < 4 || !bytes.Equal(data[:4], e.ID[:4]) {
			continue
		}
		out, err := e.Inputs.Unpack(data[4:])
		if err != nil || len(out) < 2 {
			break
		}
		if reason, ok := out[1].(string); ok {
			return fmt.Sprintf("%s(%v, %q)", name, out[0], reason)
		}
	}
	return fmt.Sprintf("%#x", data)
}

func indexedArgs(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
