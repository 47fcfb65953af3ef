package guard

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// DefaultTimeout is the freeze ceiling for a single pipeline step.
const DefaultTimeout = time.Hour

// Halter reports the process-wide shutdown flag.
type Halter interface {
	ShuttingDown() bool
}

// Guard abandons pipeline steps that run longer than Timeout so one hung
// account cannot stall the whole cycle.
type Guard struct {
	Timeout time.Duration
	Halt    Halter
}

func New(timeout time.Duration, halt Halter) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{Timeout: timeout, Halt: halt}
}

type result[T any] struct {
	value T
	err   error
}

// Run races fn against the freeze timer. When fn settles first its value and
// error are returned unchanged. When the timer fires first, the context
// handed to fn is cancelled and Run returns the zero value with frozen set;
// anything fn produces afterwards is discarded. A panic in fn is returned as
// an error.
func Run[T any](ctx context.Context, g *Guard, label string, fn func(ctx context.Context) (T, error)) (value T, frozen bool, err error) {
	if g != nil && g.Halt != nil && g.Halt.ShuttingDown() {
		return value, false, nil
	}
	timeout := DefaultTimeout
	if g != nil && g.Timeout > 0 {
		timeout = g.Timeout
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("%s panicked: %v\n%s", label, r, debug.Stack())
				done <- result[T]{err: fmt.Errorf("%s panicked: %v", label, r)}
			}
		}()
		v, e := fn(opCtx)
		done <- result[T]{value: v, err: e}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, false, r.err
	case <-timer.C:
		logger.Warnf("%s detected freeze for more than %v, continuing to next process...", label, timeout)
		return value, true, nil
	}
}
