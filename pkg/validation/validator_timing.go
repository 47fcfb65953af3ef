package validation

import (
	"fmt"
	"strconv"

	"github.com/pharos-autotask/pharos-autotask/pkg/config"
)

// TimingValidator checks retry, delay and amount settings.
type TimingValidator struct{}

func NewTimingValidator() *TimingValidator {
	return &TimingValidator{}
}

func (v *TimingValidator) Validate(cfg *config.Schema) ValidationErrors {
	var errors ValidationErrors
	t := cfg.Timing

	if t.MaxRetries < 1 {
		errors = append(errors, ValidationError{Field: "timing.maxRetries", Message: "must be at least 1"})
	}
	if t.RetryDelay <= 0 {
		errors = append(errors, ValidationError{Field: "timing.retryDelay", Message: "must be positive"})
	}
	if t.FreezeTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "timing.freezeTimeout", Message: "must be positive"})
	}
	if t.ShutdownGrace <= 0 {
		errors = append(errors, ValidationError{Field: "timing.shutdownGrace", Message: "must be positive"})
	}
	if t.LoaderWindow < 0 || t.CyclePause < 0 || t.Heartbeat < 0 {
		errors = append(errors, ValidationError{Field: "timing", Message: "durations cannot be negative"})
	}

	windows := []struct {
		field string
		w     config.Window
	}{
		{"timing.delays.settle", t.Delays.Settle},
		{"timing.delays.verify", t.Delays.Verify},
		{"timing.delays.liquidity", t.Delays.Liquidity},
		{"timing.delays.wrapSwap", t.Delays.WrapSwap},
		{"timing.delays.randomSwap", t.Delays.RandomSwap},
	}
	for _, w := range windows {
		if w.w.Min < 0 || w.w.Max < w.w.Min {
			errors = append(errors, ValidationError{
				Field:   w.field,
				Message: fmt.Sprintf("invalid range [%v, %v)", w.w.Min, w.w.Max),
			})
		}
	}

	a := cfg.Amounts
	for field, s := range map[string]string{
		"amounts.transfer":         a.Transfer,
		"amounts.liquidityWrapped": a.LiquidityWrapped,
		"amounts.liquidityStable":  a.LiquidityStable,
	} {
		if f, err := strconv.ParseFloat(s, 64); err != nil || f <= 0 {
			errors = append(errors, ValidationError{Field: field, Message: "must be a positive decimal"})
		}
	}
	for field, r := range map[string]config.Range{"amounts.wrap": a.Wrap, "amounts.swap": a.Swap} {
		if r.Min <= 0 || r.Max <= r.Min {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid range [%v, %v)", r.Min, r.Max),
			})
		}
	}

	return errors
}
