package validation

import (
	"github.com/pharos-autotask/pharos-autotask/pkg/config"
)

// NetworkValidator checks the chain and task API endpoints.
type NetworkValidator struct {
	BaseValidator
}

func NewNetworkValidator() *NetworkValidator {
	return &NetworkValidator{}
}

func (v *NetworkValidator) Validate(cfg *config.Schema) ValidationErrors {
	var errors ValidationErrors

	if cfg.Network.ChainID <= 0 {
		errors = append(errors, ValidationError{
			Field:   "network.chainId",
			Message: "must be positive",
		})
	}
	errors = append(errors, v.ValidateURL("network.rpcUrl", cfg.Network.RPCURL)...)
	if cfg.Network.RPCTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.rpcTimeout",
			Message: "cannot be negative",
		})
	}

	errors = append(errors, v.ValidateURL("api.baseUrl", cfg.API.BaseURL)...)
	if cfg.API.InviteCode == "" {
		errors = append(errors, ValidationError{
			Field:   "api.inviteCode",
			Message: "cannot be empty",
		})
	}
	if cfg.API.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "api.requestsPerSecond",
			Message: "cannot be negative",
		})
	}
	if cfg.API.VerifyTaskID <= 0 {
		errors = append(errors, ValidationError{
			Field:   "api.verifyTaskId",
			Message: "must be positive",
		})
	}

	return errors
}
