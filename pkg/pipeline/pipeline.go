package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/egress"
	"github.com/pharos-autotask/pharos-autotask/pkg/guard"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/shutdown"
	"github.com/pharos-autotask/pharos-autotask/pkg/tasks"
)

// VerifyIterations is the fixed length of the verification sub-loop.
const VerifyIterations = 5

const (
	StepAuthenticate = "authenticate"
	StepCheckIn      = "check-in"
	StepFaucet       = "faucet"
	StepVerify       = "verify"
	StepLiquidity    = "liquidity"
	StepWrapSwap     = "wrap-swap"
	StepRandomSwap   = "random-swap"
)

// StepNames returns the order in which a pipeline attempts its steps.
func StepNames() []string {
	names := []string{StepAuthenticate, StepCheckIn, StepFaucet}
	for i := 0; i < VerifyIterations; i++ {
		names = append(names, StepVerify)
	}
	return append(names, StepLiquidity, StepWrapSwap, StepRandomSwap)
}

// Status is the recorded outcome of a single step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusFrozen  Status = "frozen"
	StatusSkipped Status = "skipped"
)

// Recorder observes step outcomes.
type Recorder interface {
	ObserveStep(step string, status Status, elapsed time.Duration)
}

// Delays are the randomized pauses after steps.
type Delays struct {
	Verify     tasks.Window
	Liquidity  tasks.Window
	WrapSwap   tasks.Window
	RandomSwap tasks.Window
}

func DefaultDelays() Delays {
	return Delays{
		Verify:     tasks.Window{Min: time.Second, Max: 3 * time.Second},
		Liquidity:  tasks.Window{Min: 20 * time.Second, Max: 35 * time.Second},
		WrapSwap:   tasks.Window{Min: 5 * time.Second, Max: 20 * time.Second},
		RandomSwap: tasks.Window{Min: 10 * time.Second, Max: 30 * time.Second},
	}
}

// Pipeline runs the ordered steps of one account. Step failures are logged
// and recorded; they never stop the remaining steps.
type Pipeline struct {
	Catalog  *tasks.Catalog
	Guard    *guard.Guard
	Halt     retry.Halter
	Factory  Factory
	Selector egress.Selector
	Proxies  []string
	Delays   Delays
	Recorder Recorder

	Sleep   func(ctx context.Context, d time.Duration) bool
	Float64 func() float64
}

func (p *Pipeline) halted() bool {
	return p.Halt != nil && p.Halt.ShuttingDown()
}

func (p *Pipeline) sleep(ctx context.Context, w tasks.Window) bool {
	rnd := p.Float64
	if rnd == nil {
		rnd = rand.Float64
	}
	d := w.Pick(rnd)
	logger.DebugContext(ctx, fmt.Sprintf("Waiting %.2f seconds...", d.Seconds()))
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	var halt <-chan struct{}
	if p.Halt != nil {
		halt = p.Halt.Done()
	}
	return shutdown.SleepContext(ctx, halt, d)
}

func (p *Pipeline) record(step string, status Status, elapsed time.Duration) {
	if p.Recorder != nil {
		p.Recorder.ObserveStep(step, status, elapsed)
	}
}

// step runs fn under the freeze guard and records its outcome.
func (p *Pipeline) step(ctx context.Context, step, label string, fn func(ctx context.Context) error) Status {
	if p.halted() {
		p.record(step, StatusSkipped, 0)
		return StatusSkipped
	}
	start := time.Now()
	_, frozen, err := guard.Run(ctx, p.Guard, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	elapsed := time.Since(start)

	status := StatusSuccess
	switch {
	case frozen:
		status = StatusFrozen
	case err != nil:
		status = StatusFailure
		logFailure(ctx, step, label, err)
	}
	p.record(step, status, elapsed)
	return status
}

// logFailure reports a failed step at the severity of its error kind.
// Rejections by the remote side are warnings; everything else is an error.
func logFailure(ctx context.Context, step, label string, err error) {
	msg := fmt.Sprintf("%s failed: %v", label, err)
	switch apperr.SeverityOf(err) {
	case apperr.SeverityWarning:
		logger.WarnContext(ctx, msg, "step", step)
	default:
		logger.ErrorContext(ctx, msg, "step", step)
	}
}

// Process runs every step for acct. It returns once all steps ran or
// shutdown was observed.
func (p *Pipeline) Process(ctx context.Context, acct *accounts.Account) {
	if p.halted() {
		return
	}
	proxy := p.Selector.Select(p.Proxies)
	ctx = logger.WithAttrs(ctx, "account", acct.Short(), "egress", egress.Label(proxy))
	logger.InfoContext(ctx, fmt.Sprintf("Using wallet: %s", acct.Address.Hex()))

	run, release, err := p.Factory.NewRun(ctx, acct, proxy)
	if err != nil {
		logger.ErrorContext(ctx, fmt.Sprintf("Failed to prepare wallet: %v", err))
		for _, name := range StepNames() {
			p.record(name, StatusSkipped, 0)
		}
		return
	}
	defer release()

	c := p.Catalog
	p.step(ctx, StepAuthenticate, "authenticate", func(ctx context.Context) error {
		_, err := c.Authenticate(ctx, run)
		return err
	})
	p.step(ctx, StepCheckIn, "checkInFunction", func(ctx context.Context) error {
		return c.CheckIn(ctx, run)
	})
	p.step(ctx, StepFaucet, "faucetFunction", func(ctx context.Context) error {
		return c.ClaimFaucet(ctx, run)
	})

	for i := 0; i < VerifyIterations; i++ {
		if p.halted() {
			p.record(StepVerify, StatusSkipped, 0)
			continue
		}
		logger.InfoContext(ctx, fmt.Sprintf("Starting process %d", i+1))
		i := i
		p.step(ctx, StepVerify, "verifyFunction", func(ctx context.Context) error {
			_, err := c.VerifyTransfer(ctx, run, i)
			return err
		})
		p.sleep(ctx, p.Delays.Verify)
	}

	tail := []struct {
		step  string
		label string
		delay tasks.Window
		fn    func(ctx context.Context) error
	}{
		{StepLiquidity, "performV3Pool", p.Delays.Liquidity, func(ctx context.Context) error {
			_, err := c.AddLiquidity(ctx, run)
			return err
		}},
		{StepWrapSwap, "performSwap", p.Delays.WrapSwap, func(ctx context.Context) error {
			_, err := c.WrapSwap(ctx, run, 0)
			return err
		}},
		{StepRandomSwap, "performRandomSwap", p.Delays.RandomSwap, func(ctx context.Context) error {
			_, err := c.RandomSwap(ctx, run, 0)
			return err
		}},
	}
	for _, t := range tail {
		if p.step(ctx, t.step, t.label, t.fn) == StatusSkipped {
			continue
		}
		p.sleep(ctx, t.delay)
	}
}
