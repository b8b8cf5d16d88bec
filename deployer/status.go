package deployer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blndgs/batchdeploy"
	"github.com/blndgs/batchdeploy/chain"
	"github.com/blndgs/batchdeploy/codec"
)

type State string

const (
	Idle       State = "Idle"
	Preparing  State = "Preparing"
	Submitting State = "Submitting"
	Success    State = "Success"
	Failed     State = "Failed"
)

// DeploymentRecord is one token created by a successful deployment. Supply is
// in human units.
type DeploymentRecord struct {
	Name   string         `json:"name"`
	Symbol string         `json:"symbol"`
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"owner"`
	Supply string         `json:"supply"`
}

// Status is a snapshot of the deployer. UserOperation is the signed operation
// from Submitting on. TxHash and Records are set in Success, Failure in
// Failed.
type Status struct {
	State         State                      `json:"state"`
	Account       common.Address             `json:"account"`
	UserOpHash    common.Hash                `json:"userOpHash,omitempty"`
	UserOperation *batchdeploy.UserOperation `json:"userOperation,omitempty"`
	TxHash        common.Hash                `json:"txHash,omitempty"`
	Records       []DeploymentRecord         `json:"records,omitempty"`
	Failure       *Failure                   `json:"failure,omitempty"`
}

type Kind string

const (
	ValidationError    Kind = "ValidationError"
	InsufficientFunds  Kind = "InsufficientFunds"
	EncodingError      Kind = "EncodingError"
	SigningRejected    Kind = "SigningRejected"
	SubmissionReverted Kind = "SubmissionReverted"
	NetworkError       Kind = "NetworkError"
)

const fundingHint = "the operation was rejected without a decodable reason; make sure the smart account holds enough ETH for gas and the contract addresses match the network"

// Failure is the terminal reason of a failed attempt.
type Failure struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Account common.Address `json:"account,omitempty"`
	// Shortfall is set for InsufficientFunds: the wei missing to reach the
	// minimum balance.
	Shortfall *big.Int `json:"shortfall,omitempty"`
	Err       error    `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Err.Error() != f.Message {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsKind reports whether err is a Failure of kind k.
func IsKind(err error, k Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == k
}

func validationFailure(format string, args ...interface{}) *Failure {
	return &Failure{Kind: ValidationError, Message: fmt.Sprintf(format, args...)}
}

// classify maps an error from steps 4 to 9 of a deployment onto a Failure.
func classify(step string, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	switch {
	case errors.Is(err, codec.ErrEncoding):
		return &Failure{Kind: EncodingError, Message: step, Err: err}
	case errors.Is(err, batchdeploy.ErrSigningRejected):
		return &Failure{Kind: SigningRejected, Message: "signature request was declined", Err: err}
	case errors.Is(err, batchdeploy.ErrSignerUnavailable):
		return &Failure{Kind: ValidationError, Message: "no signing capability configured", Err: err}
	case errors.Is(err, chain.ErrInsufficientFunds):
		return &Failure{Kind: InsufficientFunds, Message: "wallet cannot pay for the transaction", Err: err}
	case errors.Is(err, chain.ErrReverted):
		return &Failure{Kind: SubmissionReverted, Message: fundingHint, Err: err}
	}
	return &Failure{Kind: NetworkError, Message: step, Err: err}
}
