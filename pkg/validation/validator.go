package validation

import (
	"fmt"
	"strings"

	"github.com/pharos-autotask/pharos-autotask/pkg/config"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// ValidationError represents a validation error with a specific field and message
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var errMsgs []string
	for _, err := range e {
		errMsgs = append(errMsgs, err.Error())
	}
	return strings.Join(errMsgs, "; ")
}

// SectionValidator validates one section of the configuration.
type SectionValidator interface {
	Validate(cfg *config.Schema) ValidationErrors
}

// ConfigValidator handles validation of the entire configuration
type ConfigValidator struct {
	validators []SectionValidator
}

func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		validators: []SectionValidator{
			NewNetworkValidator(),
			NewContractsValidator(),
			NewTimingValidator(),
		},
	}
}

// ValidateConfig validates the entire configuration schema
func (v *ConfigValidator) ValidateConfig(cfg *config.Schema) error {
	var allErrors ValidationErrors

	if errs := v.validateGlobal(&cfg.Global); len(errs) > 0 {
		allErrors = append(allErrors, errs...)
	}
	for _, sv := range v.validators {
		allErrors = append(allErrors, sv.Validate(cfg)...)
	}

	if len(allErrors) > 0 {
		return allErrors
	}
	return nil
}

func (v *ConfigValidator) validateGlobal(global *config.Global) ValidationErrors {
	var errors ValidationErrors
	logger.Debugf("validating global config: %+v", *global)

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(global.LogLevel)] {
		errors = append(errors, ValidationError{
			Field:   "global.logLevel",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	return errors
}
