package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerRunsImmediatelyAndSurvivesFailures(t *testing.T) {
	var calls atomic.Int32
	cycle := CycleFunc(func(ctx context.Context) error {
		n := calls.Add(1)
		switch n {
		case 1:
			return errors.New("source unavailable")
		case 2:
			panic("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(cycle, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("only %d cycles ran", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerFirstCycleIsImmediate(t *testing.T) {
	ran := make(chan struct{}, 1)
	cycle := CycleFunc(func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPoller(cycle, time.Hour).Start(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not run before the first tick")
	}
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(CycleFunc(func(context.Context) error { return nil }), 0)
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}

func TestPollerLastSuccess(t *testing.T) {
	fail := true
	p := NewPoller(CycleFunc(func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}), time.Hour)

	p.run(context.Background())
	if !p.LastSuccess().IsZero() {
		t.Error("failed cycle must not count as success")
	}

	fail = false
	before := time.Now()
	p.run(context.Background())
	if p.LastSuccess().Before(before) {
		t.Errorf("LastSuccess = %v, want after %v", p.LastSuccess(), before)
	}
}

func TestPollerWaitsFullIntervalAfterSlowCycle(t *testing.T) {
	const interval = 40 * time.Millisecond

	var mu sync.Mutex
	var starts, ends []time.Time
	cycle := CycleFunc(func(ctx context.Context) error {
		mu.Lock()
		starts = append(starts, time.Now())
		first := len(starts) == 1
		mu.Unlock()
		if first {
			// Longer than the interval, as when a receipt wait blocks.
			time.Sleep(3 * interval)
		}
		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPoller(cycle, interval).Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(starts)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second cycle never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if gap := starts[1].Sub(ends[0]); gap < interval {
		t.Errorf("next cycle started %v after the slow one ended, want at least %v", gap, interval)
	}
}
