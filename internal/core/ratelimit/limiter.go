package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// DefaultWindow is the cooldown between two transfers of the same side.
const DefaultWindow = 24 * time.Hour

// History is the part of the ledger the limiter reads.
type History interface {
	LastTransfer(ctx context.Context, handle string, direction domain.Direction) (*time.Time, error)
}

// Limiter enforces one transfer per (handle, direction) per window.
type Limiter struct {
	history History
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the cooldown window.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter over the transfer history.
func New(history History, opts ...Option) *Limiter {
	l := &Limiter{history: history, window: DefaultWindow, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanAct reports whether handle may take part in a transfer on the given side.
// A row exactly one window old still blocks; strictly older rows pass.
func (l *Limiter) CanAct(ctx context.Context, handle string, direction domain.Direction) (bool, error) {
	last, err := l.history.LastTransfer(ctx, domain.NormalizeHandle(handle), direction)
	if err != nil {
		return false, fmt.Errorf("failed to read transfer history: %w", err)
	}
	if last == nil {
		return true, nil
	}
	return last.Before(l.now().Add(-l.window)), nil
}

// Window returns the configured cooldown.
func (l *Limiter) Window() time.Duration {
	return l.window
}
