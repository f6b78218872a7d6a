package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/blessbot/internal/core/domain"
)

type mockHistory struct {
	last map[string]time.Time
	err  error
}

func (m *mockHistory) LastTransfer(ctx context.Context, handle string, direction domain.Direction) (*time.Time, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.last[handle+"/"+string(direction)]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func TestCanAct(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		last      *time.Time
		direction domain.Direction
		want      bool
	}{
		{"no history", nil, domain.DirectionSent, true},
		{"just now", ptr(now), domain.DirectionSent, false},
		{"one hour ago", ptr(now.Add(-time.Hour)), domain.DirectionRecv, false},
		{"exactly one window ago", ptr(now.Add(-DefaultWindow)), domain.DirectionSent, false},
		{"window plus epsilon", ptr(now.Add(-DefaultWindow - time.Millisecond)), domain.DirectionSent, true},
		{"two days ago", ptr(now.Add(-48 * time.Hour)), domain.DirectionRecv, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &mockHistory{last: map[string]time.Time{}}
			if tt.last != nil {
				h.last["alice/"+string(tt.direction)] = *tt.last
			}
			l := New(h, WithClock(func() time.Time { return now }))

			got, err := l.CanAct(context.Background(), "@Alice", tt.direction)
			if err != nil {
				t.Fatalf("CanAct() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanAct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanActDirectionsAreIndependent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := &mockHistory{last: map[string]time.Time{"bob/sent": now}}
	l := New(h, WithClock(func() time.Time { return now }))

	sent, _ := l.CanAct(context.Background(), "bob", domain.DirectionSent)
	recv, _ := l.CanAct(context.Background(), "bob", domain.DirectionRecv)
	if sent || !recv {
		t.Errorf("sent=%v recv=%v, want false/true", sent, recv)
	}
}

func TestCanActPropagatesError(t *testing.T) {
	l := New(&mockHistory{err: errors.New("db down")})
	if _, err := l.CanAct(context.Background(), "bob", domain.DirectionSent); err == nil {
		t.Fatal("expected error")
	}
}

func TestWithWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := &mockHistory{last: map[string]time.Time{"bob/sent": now.Add(-2 * time.Hour)}}
	l := New(h, WithWindow(time.Hour), WithClock(func() time.Time { return now }))

	ok, _ := l.CanAct(context.Background(), "bob", domain.DirectionSent)
	if !ok {
		t.Error("expected a one hour window to have elapsed")
	}
	if l.Window() != time.Hour {
		t.Errorf("Window() = %v", l.Window())
	}
}

func ptr(t time.Time) *time.Time { return &t }
