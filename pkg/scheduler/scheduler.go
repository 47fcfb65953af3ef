package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pharos-autotask/pharos-autotask/pkg/accounts"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
	"github.com/pharos-autotask/pharos-autotask/pkg/retry"
	"github.com/pharos-autotask/pharos-autotask/pkg/shutdown"
)

const (
	DefaultLoaderWindow = 180 * time.Second
	DefaultPause        = 60 * time.Second
	DefaultHeartbeat    = 5 * time.Minute
	// DefaultLoaderTick is the interval of the countdown log lines.
	DefaultLoaderTick = 30 * time.Second
)

// Processor runs the pipeline of one account.
type Processor interface {
	Process(ctx context.Context, acct *accounts.Account)
}

// CycleObserver is told when a full pass over the accounts completes.
type CycleObserver interface {
	ObserveCycle()
}

// Status is a point-in-time view of the driver.
type Status struct {
	Running       bool      `json:"running"`
	Cycle         int       `json:"cycle"`
	CycleID       string    `json:"cycleId,omitempty"`
	Account       string    `json:"account,omitempty"`
	Accounts      int       `json:"accounts"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	NextHeartbeat time.Time `json:"nextHeartbeat,omitempty"`
}

// CycleDriver walks every account in input order, forever, until shutdown.
type CycleDriver struct {
	Accounts  []*accounts.Account
	Processor Processor
	Halt      retry.Halter
	Observer  CycleObserver

	LoaderWindow time.Duration
	LoaderTick   time.Duration
	Pause        time.Duration
	Heartbeat    time.Duration

	// Sleep defaults to a shutdown-aware sleep on Halt.
	Sleep func(ctx context.Context, d time.Duration) bool

	cron        *cron.Cron
	heartbeatID cron.EntryID

	mutex  sync.RWMutex
	status Status
}

func NewCycleDriver(accts []*accounts.Account, processor Processor, halt retry.Halter) *CycleDriver {
	return &CycleDriver{
		Accounts:     accts,
		Processor:    processor,
		Halt:         halt,
		LoaderWindow: DefaultLoaderWindow,
		LoaderTick:   DefaultLoaderTick,
		Pause:        DefaultPause,
		Heartbeat:    DefaultHeartbeat,
		cron:         newCron(),
	}
}

func newCron() *cron.Cron {
	cronLogger := cron.PrintfLogger(logger.GetLogger())
	return cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger)))
}

func (d *CycleDriver) halted() bool {
	return d.Halt != nil && d.Halt.ShuttingDown()
}

func (d *CycleDriver) sleep(ctx context.Context, dur time.Duration) bool {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	var halt <-chan struct{}
	if d.Halt != nil {
		halt = d.Halt.Done()
	}
	return shutdown.SleepContext(ctx, halt, dur)
}

// Status returns a snapshot for the status endpoint.
func (d *CycleDriver) Status() Status {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	s := d.status
	s.Accounts = len(d.Accounts)
	if d.cron != nil && d.heartbeatID != 0 {
		s.NextHeartbeat = d.cron.Entry(d.heartbeatID).Next
	}
	return s
}

func (d *CycleDriver) update(fn func(s *Status)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	fn(&d.status)
}

func (d *CycleDriver) startHeartbeat() error {
	if d.Heartbeat <= 0 {
		return nil
	}
	if d.cron == nil {
		d.cron = newCron()
	}
	id, err := d.cron.AddFunc(fmt.Sprintf("@every %s", d.Heartbeat), d.healthCheck)
	if err != nil {
		return fmt.Errorf("failed to add heartbeat job: %w", err)
	}
	d.mutex.Lock()
	d.heartbeatID = id
	d.mutex.Unlock()
	d.cron.Start()
	return nil
}

func (d *CycleDriver) stopHeartbeat() {
	if d.cron == nil || d.heartbeatID == 0 {
		return
	}
	<-d.cron.Stop().Done()
}

func (d *CycleDriver) healthCheck() {
	s := d.Status()
	logger.Infof("Health check: Script is running (cycle %d, account %s)", s.Cycle, s.Account)
}

// Run drives cycles until shutdown or ctx is done. It only returns an error
// when the heartbeat cannot be scheduled.
func (d *CycleDriver) Run(ctx context.Context) error {
	if err := d.startHeartbeat(); err != nil {
		return err
	}
	defer d.stopHeartbeat()

	d.update(func(s *Status) {
		s.Running = true
		s.StartedAt = time.Now()
	})
	defer d.update(func(s *Status) {
		s.Running = false
		s.Account = ""
	})

	logger.Infof("Starting cycle driver for %d wallets", len(d.Accounts))
	for !d.halted() && ctx.Err() == nil {
		d.RunCycle(ctx)
		if d.halted() || ctx.Err() != nil {
			break
		}
		logger.Infof("All actions completed for all wallets!")
		if d.Observer != nil {
			d.Observer.ObserveCycle()
		}
		if !d.loader(ctx) {
			break
		}
		logger.Infof("Waiting for next cycle...")
		if !d.sleep(ctx, d.Pause) {
			break
		}
	}
	logger.Infof("Cycle driver stopped")
	return nil
}

// RunCycle processes every account once, in order. Accounts not yet started
// when shutdown is observed are skipped.
func (d *CycleDriver) RunCycle(ctx context.Context) {
	id := uuid.NewString()
	d.update(func(s *Status) {
		s.Cycle++
		s.CycleID = id
	})
	ctx = logger.WithAttrs(ctx, "cycle_id", id)
	logger.InfoContext(ctx, fmt.Sprintf("Starting cycle with %d wallets", len(d.Accounts)))

	for _, acct := range d.Accounts {
		if d.halted() || ctx.Err() != nil {
			return
		}
		d.update(func(s *Status) { s.Account = acct.Short() })
		d.supervise(ctx, acct)
	}
	d.update(func(s *Status) { s.Account = "" })
}

// supervise isolates a panicking pipeline from the rest of the cycle.
func (d *CycleDriver) supervise(ctx context.Context, acct *accounts.Account) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, fmt.Sprintf("Unhandled error while processing wallet: %v", r),
				"account", acct.Short(), "stack", string(debug.Stack()))
		}
	}()
	d.Processor.Process(ctx, acct)
}

// loader logs a countdown across the loader window. It returns false when
// interrupted.
func (d *CycleDriver) loader(ctx context.Context) bool {
	remaining := d.LoaderWindow
	tick := d.LoaderTick
	if tick <= 0 {
		tick = DefaultLoaderTick
	}
	for remaining > 0 {
		logger.Infof("Next cycle in %v...", remaining)
		step := tick
		if remaining < step {
			step = remaining
		}
		if !d.sleep(ctx, step) {
			return false
		}
		remaining -= step
	}
	return true
}
