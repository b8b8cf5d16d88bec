package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type eventError string

func (e eventError) Error() string {
	return string(e)
}

const (
	// ErrNotTokenDeployed reports a log emitted by some other event. Callers
	// scanning a receipt skip such logs.
	ErrNotTokenDeployed eventError = "log is not a TokenDeployed event"
	// ErrMalformedEvent reports a log carrying the TokenDeployed id that does
	// not decode against the event's shape.
	ErrMalformedEvent eventError = "malformed TokenDeployed event"
)

// TokenDeployed is the decoded BatchTokenFactory.TokenDeployed event.
type TokenDeployed struct {
	Token         common.Address
	Owner         common.Address
	Name          string
	Symbol        string
	InitialSupply *big.Int
}

// TokenDeployedID is topic0 of TokenDeployed logs.
func TokenDeployedID() common.Hash {
	return BatchTokenFactory.Events["TokenDeployed"].ID
}

// DecodeTokenDeployed decodes a receipt log into a TokenDeployed event.
//
// Returns:
//   - *TokenDeployed: The decoded event.
//   - error: ErrNotTokenDeployed when topic0 belongs to another event, or an
//     error wrapping ErrMalformedEvent when the log matches the event id but
//     its topics or data do not decode.
func DecodeTokenDeployed(l *types.Log) (*TokenDeployed, error) {
	event := BatchTokenFactory.Events["TokenDeployed"]
	if l == nil || len(l.Topics) == 0 || l.Topics[0] != event.ID {
		return nil, ErrNotTokenDeployed
	}

	indexed := indexedArgs(event.Inputs)
	if len(l.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("%w: want %d topics, got %d", ErrMalformedEvent, len(indexed)+1, len(l.Topics))
	}

	out := new(TokenDeployed)
	if err := BatchTokenFactory.UnpackIntoInterface(out, event.Name, l.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := abi.ParseTopics(out, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return out, nil
}
