package validation

import (
	"fmt"
	"strings"

	"github.com/pharos-autotask/pharos-autotask/pkg/config"
)

// RequiredTokens are the symbols the liquidity and swap operations use.
var RequiredTokens = []string{"WPHRS", "USDC", "USDT"}

// ContractsValidator checks token and contract addresses.
type ContractsValidator struct {
	BaseValidator
}

func NewContractsValidator() *ContractsValidator {
	return &ContractsValidator{}
}

func (v *ContractsValidator) Validate(cfg *config.Schema) ValidationErrors {
	var errors ValidationErrors
	c := cfg.Contracts

	seen := make(map[string]bool)
	for i, token := range c.Tokens {
		field := fmt.Sprintf("contracts.tokens[%d]", i)
		symbol := strings.ToUpper(token.Symbol)
		if symbol == "" {
			errors = append(errors, ValidationError{Field: field + ".symbol", Message: "cannot be empty"})
		} else if seen[symbol] {
			errors = append(errors, ValidationError{Field: field + ".symbol", Message: fmt.Sprintf("duplicate token %s", symbol)})
		}
		seen[symbol] = true
		errors = append(errors, v.ValidateAddress(field+".address", token.Address)...)
		if token.Decimals < 0 || token.Decimals > 36 {
			errors = append(errors, ValidationError{Field: field + ".decimals", Message: "must be between 0 and 36"})
		}
	}
	for _, symbol := range RequiredTokens {
		if !seen[symbol] {
			errors = append(errors, ValidationError{
				Field:   "contracts.tokens",
				Message: fmt.Sprintf("token %s is required", symbol),
			})
		}
	}

	errors = append(errors, v.ValidateAddress("contracts.wrappedNative", c.WrappedNative)...)
	errors = append(errors, v.ValidateAddress("contracts.router", c.Router)...)
	errors = append(errors, v.ValidateAddress("contracts.positionManager", c.PositionManager)...)

	return errors
}
