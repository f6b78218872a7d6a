package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/storage"
)

// Pinger checks a connection, e.g. the database.
type Pinger interface {
	Health(ctx context.Context) error
}

// HeadFetcher reports the chain head.
type HeadFetcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Heartbeat reports the polling loop's progress.
type Heartbeat interface {
	LastSuccess() time.Time
	Interval() time.Duration
}

// Monitor aggregates health status from the bot's dependencies. Any of them
// may be nil and is then skipped.
type Monitor struct {
	db         Pinger
	chain      HeadFetcher
	journal    storage.TransferJournal
	heartbeat  Heartbeat
	now        func() time.Time
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(db Pinger, chain HeadFetcher, journal storage.TransferJournal, heartbeat Heartbeat) *Monitor {
	return &Monitor{
		db:        db,
		chain:     chain,
		journal:   journal,
		heartbeat: heartbeat,
		now:       time.Now,
	}
}

// CheckHealth checks every component. Results are cached for 10s.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastCheck) < 10*time.Second && m.lastReport.Components != nil {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}
	add := func(c ComponentHealth) {
		report.Components[c.Name] = c
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	if m.db != nil {
		c := ComponentHealth{Name: "database", Status: StatusHealthy}
		if err := m.db.Health(ctx); err != nil {
			c.Status, c.Detail = StatusCritical, err.Error()
		}
		add(c)
	}

	if m.chain != nil {
		c := ComponentHealth{Name: "chain", Status: StatusHealthy}
		if head, err := m.chain.BlockNumber(ctx); err != nil {
			c.Status, c.Detail = StatusDegraded, err.Error()
		} else {
			c.Detail = fmt.Sprintf("head %d", head)
		}
		add(c)
	}

	// Unsettled transfers need an operator to run reconcile.
	if m.journal != nil {
		c := ComponentHealth{Name: "transfers", Status: StatusHealthy}
		open, err := m.journal.ListByStatus(ctx, domain.OutboundUnconfirmed, domain.OutboundSigned)
		switch {
		case err != nil:
			c.Status, c.Detail = StatusDegraded, err.Error()
		case len(open) > 0:
			c.Status, c.Detail = StatusDegraded, fmt.Sprintf("%d unsettled", len(open))
		}
		add(c)
	}

	if m.heartbeat != nil {
		add(m.checkHeartbeat(now))
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

func (m *Monitor) checkHeartbeat(now time.Time) ComponentHealth {
	c := ComponentHealth{Name: "poller", Status: StatusHealthy}
	last := m.heartbeat.LastSuccess()
	interval := m.heartbeat.Interval()
	if last.IsZero() {
		c.Status, c.Detail = StatusDegraded, "no successful cycle yet"
		return c
	}

	age := now.Sub(last)
	c.Detail = fmt.Sprintf("last success %s ago", age.Truncate(time.Second))
	if age > 10*interval {
		c.Status = StatusCritical
	} else if age > 3*interval {
		c.Status = StatusDegraded
	}
	return c
}

// Ready reports whether the poller has completed a cycle. Without a
// heartbeat the bot counts as ready.
func (m *Monitor) Ready() bool {
	return m.heartbeat == nil || !m.heartbeat.LastSuccess().IsZero()
}
