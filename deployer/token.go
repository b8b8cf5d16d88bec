package deployer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/blndgs/batchdeploy"
	"github.com/blndgs/batchdeploy/contracts"
)

// TokenSpec is one token waiting to be deployed. InitialSupply is in human
// units and is scaled by 10^18 when the batch call is built.
type TokenSpec struct {
	ID            string `json:"id"`
	Name          string `json:"name" binding:"required,max=64"`
	Symbol        string `json:"symbol" binding:"required,token_symbol"`
	InitialSupply string `json:"initialSupply" binding:"required,token_amount"`
}

const maxSymbolLength = 11

// Custom validation for token symbols: 1 to 11 ASCII letters or digits.
func validTokenSymbol(fl validator.FieldLevel) bool {
	symbol := fl.Field().String()
	if len(symbol) == 0 || len(symbol) > maxSymbolLength {
		return false
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Custom validation for supplies: a positive decimal that scales to uint256.
func validTokenAmount(fl validator.FieldLevel) bool {
	_, err := batchdeploy.ToBaseUnits(fl.Field().String())
	return err == nil
}

var (
	validatorOnce sync.Once
	validatorErr  error
)

// NewValidator registers the token_symbol and token_amount tags on the gin
// binding validator. Safe to call more than once.
func NewValidator() error {
	validatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("token_symbol", validTokenSymbol); err != nil {
			validatorErr = fmt.Errorf("failed to register validator for token_symbol: %w", err)
			return
		}
		if err := v.RegisterValidation("token_amount", validTokenAmount); err != nil {
			validatorErr = fmt.Errorf("failed to register validator for token_amount: %w", err)
		}
	})
	return validatorErr
}

// Normalize trims the fields and upper-cases the symbol.
func (s TokenSpec) Normalize() TokenSpec {
	s.Name = strings.TrimSpace(s.Name)
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.InitialSupply = strings.TrimSpace(s.InitialSupply)
	return s
}

// Validate runs the binding rules against s.
func (s TokenSpec) Validate() error {
	if err := NewValidator(); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(&s)
}

// ParseTokenSpec parses the "name:SYMBOL:supply" command line form.
func ParseTokenSpec(value string) (TokenSpec, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return TokenSpec{}, fmt.Errorf("token %q must have the form name:SYMBOL:supply", value)
	}
	return TokenSpec{Name: parts[0], Symbol: parts[1], InitialSupply: parts[2]}.Normalize(), nil
}

func (s TokenSpec) params() (contracts.TokenParams, error) {
	supply, err := batchdeploy.ToBaseUnits(s.InitialSupply)
	if err != nil {
		return contracts.TokenParams{}, fmt.Errorf("token %s: %w", s.Symbol, err)
	}
	return contracts.TokenParams{Name: s.Name, Symbol: s.Symbol, InitialSupply: supply}, nil
}

func newTokenID() string {
	return uuid.NewString()
}
