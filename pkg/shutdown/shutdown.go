package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// DefaultGrace is how long in-flight work gets to flush after an interrupt
// before the process is terminated.
const DefaultGrace = 5 * time.Second

// Coordinator owns the process-wide shutdown flag. It is set once and never
// reset; loops consult it before starting new work.
type Coordinator struct {
	Grace time.Duration
	// Exit terminates the process once Grace has elapsed. Nil disables the
	// forced exit, which is what tests want.
	Exit func(code int)

	flag   atomic.Bool
	once   sync.Once
	done   chan struct{}
	timer  *time.Timer
	timerM sync.Mutex
}

func NewCoordinator(grace time.Duration) *Coordinator {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Coordinator{
		Grace: grace,
		Exit:  os.Exit,
		done:  make(chan struct{}),
	}
}

// Trigger sets the flag. Only the first call has any effect.
func (c *Coordinator) Trigger(reason string) {
	c.once.Do(func() {
		c.flag.Store(true)
		close(c.done)
		logger.Warnf("Shutting down gracefully (%s), forcing exit in %v...", reason, c.Grace)
		if c.Exit == nil {
			return
		}
		c.timerM.Lock()
		c.timer = time.AfterFunc(c.Grace, func() {
			logger.Infof("Grace period elapsed, exiting")
			logger.Sync()
			c.Exit(0)
		})
		c.timerM.Unlock()
	})
}

func (c *Coordinator) ShuttingDown() bool {
	return c.flag.Load()
}

// Done is closed when the flag is set.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Sleep suspends for d unless shutdown is triggered first. It reports
// whether the full duration elapsed.
func (c *Coordinator) Sleep(d time.Duration) bool {
	return c.SleepContext(context.Background(), d)
}

// SleepContext is Sleep that also gives up when ctx is done.
func (c *Coordinator) SleepContext(ctx context.Context, d time.Duration) bool {
	if c.ShuttingDown() {
		return false
	}
	return SleepContext(ctx, c.done, d)
}

// SleepContext waits for d, ctx or halt, whichever comes first, and reports
// whether d elapsed. A nil halt channel never fires.
func SleepContext(ctx context.Context, halt <-chan struct{}, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-halt:
		return false
	}
}

// Watch triggers the coordinator on the first of the given signals, or when
// ctx is cancelled. It returns a function that stops watching.
func (c *Coordinator) Watch(ctx context.Context, signals ...os.Signal) func() {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			c.Trigger(sig.String())
		case <-ctx.Done():
			c.Trigger(ctx.Err().Error())
		case <-stop:
		}
	}()
	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(ch)
			close(stop)
		})
	}
}

// CancelExit stops a pending forced exit. main calls it after a clean stop so
// the process can return on its own.
func (c *Coordinator) CancelExit() {
	c.timerM.Lock()
	defer c.timerM.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}
