// Package timer implements the acceptance-timeout coordinator: the
// in-process map of job id → scheduled auto-reject check.
package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/observability/metrics"
	"github.com/fleetline/dispatch/internal/observability/statsd"
)

// fireTimeout bounds how long a fired timer's evaluation may run.
const fireTimeout = 30 * time.Second

// ErrFireFuncRequired indicates a coordinator cannot be constructed without a fire callback.
var ErrFireFuncRequired = errors.New("fire callback is required")

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for the coordinator so tests can drive firing
// deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewRealClock returns a Clock backed by the runtime timers.
func NewRealClock() Clock { return realClock{} }

// FireFunc is invoked when a timer for a job fires. The callback must
// re-validate the persisted job state; the handle only says when and for
// whom this particular timer was armed. Errors are logged, never retried.
type FireFunc func(ctx context.Context, handle core.TimerHandle) error

// Options groups dependencies for the Coordinator.
type Options struct {
	Fire    FireFunc     // Required: invoked when a timer fires
	Clock   Clock        // Optional: defaults to the runtime clock
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink
}

// Coordinator owns the per-job acceptance timers. Invariants:
//   - at most one live timer per job id;
//   - arming supersedes any existing timer for the same id (last-arm-wins);
//   - cancel is idempotent;
//   - handles are process-local and not persisted. Deadlines live on the job
//     record; a restart recovers them through the acceptance engine's sweep.
type Coordinator struct {
	fire    FireFunc
	clock   Clock
	logger  *slog.Logger
	metrics statsd.Sink

	mu     sync.Mutex
	timers map[string]*armedTimer
	closed bool
}

type armedTimer struct {
	timer  Timer
	handle core.TimerHandle
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Fire == nil {
		return nil, ErrFireFuncRequired
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "acceptance_timers")
	}
	return &Coordinator{
		fire:    opts.Fire,
		clock:   clock,
		logger:  logger,
		metrics: opts.Metrics,
		timers:  make(map[string]*armedTimer),
	}, nil
}

var _ core.AcceptanceTimers = (*Coordinator)(nil)

// Arm schedules the auto-reject check for a job, superseding any timer
// already armed for the same id.
func (c *Coordinator) Arm(handle core.TimerHandle) {
	delay := handle.Deadline.Sub(c.clock.Now())
	if delay < 0 {
		delay = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if prior, ok := c.timers[handle.JobID]; ok {
		prior.timer.Stop()
		metrics.EmitTimerOutcome(c.metrics, metrics.TimerSuperseded, "rearmed")
	}

	entry := &armedTimer{handle: handle}
	entry.timer = c.clock.AfterFunc(delay, func() {
		c.onFire(entry)
	})
	c.timers[handle.JobID] = entry

	if c.logger != nil {
		c.logger.Debug("acceptance timer armed",
			"job_id", handle.JobID,
			"actor_id", handle.ActorID,
			"deadline", handle.Deadline,
		)
	}
}

// Cancel clears any scheduled timer for the job id. Safe to call when no
// timer exists.
func (c *Coordinator) Cancel(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.timers[jobID]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(c.timers, jobID)

	if c.logger != nil {
		c.logger.Debug("acceptance timer canceled", "job_id", jobID)
	}
}

// StopAll cancels every outstanding timer and rejects further arming.
// Called during graceful shutdown.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, entry := range c.timers {
		entry.timer.Stop()
		delete(c.timers, id)
	}
}

// onFire runs on the timer goroutine. A callback may still run after its
// entry was superseded or canceled (Stop racing the firing), so the map is
// consulted first: only the currently registered entry may proceed.
func (c *Coordinator) onFire(entry *armedTimer) {
	c.mu.Lock()
	current, ok := c.timers[entry.handle.JobID]
	if !ok || current != entry {
		c.mu.Unlock()
		metrics.EmitTimerOutcome(c.metrics, metrics.TimerStale, "superseded_callback")
		if c.logger != nil {
			c.logger.Debug("ignoring stale timer callback", "job_id", entry.handle.JobID)
		}
		return
	}
	delete(c.timers, entry.handle.JobID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	// A missed auto-rejection is a degraded-service event, not a crash:
	// errors are logged and the timer is not retried. The callback records
	// its own fired/stale outcome; only a failed evaluation is counted here.
	if err := c.fire(ctx, entry.handle); err != nil {
		metrics.EmitTimerOutcome(c.metrics, metrics.TimerFired, "error")
		if c.logger != nil {
			c.logger.Error("acceptance timer evaluation failed",
				"job_id", entry.handle.JobID,
				"error", err,
			)
		}
	}
}
