package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultDelay      = 5 * time.Second
)

var (
	// ErrExhausted wraps the last cause once every attempt failed on a
	// transient error.
	ErrExhausted = errors.New("retries exhausted")
	// ErrHalted is returned when shutdown stopped the loop between attempts.
	ErrHalted = errors.New("shutting down")
)

// Halter reports the process-wide shutdown flag.
type Halter interface {
	ShuttingDown() bool
	Done() <-chan struct{}
}

// Policy bounds the retry loop. MaxRetries is the total number of attempts.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Delay: DefaultDelay}
}

type Status int

const (
	Success Status = iota
	Failure
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Outcome is the result of one retried operation.
type Outcome[T any] struct {
	Status   Status
	Value    T
	Err      error
	Attempts int
}

func (o Outcome[T]) OK() bool {
	return o.Status == Success
}

// Error returns nil on success and a descriptive error otherwise.
func (o Outcome[T]) Error() error {
	switch o.Status {
	case Success:
		return nil
	case Exhausted:
		return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, o.Attempts, o.Err)
	default:
		return o.Err
	}
}

// Executor runs operations under a Policy.
type Executor struct {
	Policy Policy
	Halt   Halter
}

func NewExecutor(policy Policy, halt Halter) *Executor {
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = DefaultMaxRetries
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	return &Executor{Policy: policy, Halt: halt}
}

func (e *Executor) halted() bool {
	return e != nil && e.Halt != nil && e.Halt.ShuttingDown()
}

// wait sleeps between attempts. It returns an error when shutdown or ctx
// interrupts the wait.
func (e *Executor) wait(ctx context.Context) error {
	if e.Policy.Delay <= 0 {
		return ctx.Err()
	}
	var halt <-chan struct{}
	if e.Halt != nil {
		halt = e.Halt.Done()
	}
	t := time.NewTimer(e.Policy.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-halt:
		return ErrHalted
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Only errors classified as retryable by apperr
// (host resolution failures) are retried.
func Do[T any](ctx context.Context, e *Executor, name string, fn func(ctx context.Context) (T, error)) Outcome[T] {
	var out Outcome[T]
	if e == nil {
		e = NewExecutor(DefaultPolicy(), nil)
	}
	maxAttempts := e.Policy.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRetries
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if e.halted() {
			out.Status = Failure
			out.Err = ErrHalted
			return out
		}
		if err := ctx.Err(); err != nil {
			out.Status = Failure
			out.Err = apperr.Timeout(name, err)
			return out
		}

		out.Attempts = attempt
		value, err := fn(ctx)
		if err == nil {
			out.Status = Success
			out.Value = value
			out.Err = nil
			return out
		}
		out.Err = err

		if !apperr.IsRetryable(err) {
			out.Status = Failure
			return out
		}

		if attempt == maxAttempts {
			break
		}
		logger.Warnf("%s failed, attempt %d/%d. Waiting %v...", name, attempt, maxAttempts, e.Policy.Delay)
		if werr := e.wait(ctx); werr != nil {
			out.Status = Failure
			if errors.Is(werr, ErrHalted) {
				out.Err = ErrHalted
			} else {
				out.Err = apperr.Timeout(name, werr)
			}
			return out
		}
	}

	out.Status = Exhausted
	logger.Errorf("%s failed after %d attempts: %v", name, maxAttempts, out.Err)
	return out
}
