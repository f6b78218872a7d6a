package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/blessbot/internal/metrics"
)

// DefaultInterval is the delay between two polling cycles.
const DefaultInterval = 60 * time.Second

// Cycle is one unit of polling work.
type Cycle interface {
	RunCycle(ctx context.Context) error
}

// CycleFunc adapts a function to Cycle.
type CycleFunc func(ctx context.Context) error

func (f CycleFunc) RunCycle(ctx context.Context) error { return f(ctx) }

// Poller runs a cycle immediately and then on a fixed delay. A failing or
// panicking cycle is logged and the loop carries on.
type Poller struct {
	cycle    Cycle
	interval time.Duration
	logger   *slog.Logger
	lastOK   atomic.Int64 // unix nanos of the last successful cycle
}

// NewPoller creates a new Poller worker.
func NewPoller(cycle Cycle, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		cycle:    cycle,
		interval: interval,
		logger:   slog.Default().With("component", "poller"),
	}
}

// Start runs the polling loop until ctx is cancelled. The delay is measured
// from the end of one cycle to the start of the next.
func (p *Poller) Start(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		p.run(ctx)
		timer.Reset(p.interval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// LastSuccess returns when a cycle last completed without error, or the zero
// time when none has.
func (p *Poller) LastSuccess() time.Time {
	n := p.lastOK.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Interval returns the delay between cycles.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

func (p *Poller) run(ctx context.Context) {
	cycleID := uuid.NewString()
	log := p.logger.With("cycle_id", cycleID)
	start := time.Now()

	err := p.safeRun(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.CyclesTotal.WithLabelValues("error").Inc()
		log.Error("Polling cycle failed", "error", err, "duration", time.Since(start))
		return
	}
	p.lastOK.Store(time.Now().UnixNano())
	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	log.Debug("Polling cycle finished", "duration", time.Since(start))
}

func (p *Poller) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return p.cycle.RunCycle(ctx)
}
