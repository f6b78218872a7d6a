package control

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/blessbot/internal/core/worker"
	"github.com/vietddude/blessbot/internal/health"
	"github.com/vietddude/blessbot/internal/infra/storage/sqldb"
)

func TestBotRunStopsOnCancel(t *testing.T) {
	var cycles, balances atomic.Int32
	poller := worker.NewPoller(worker.CycleFunc(func(context.Context) error {
		cycles.Add(1)
		return nil
	}), 10*time.Millisecond)

	bot := New(Components{
		Poller: poller,
		Health: health.NewServer(health.NewMonitor(nil, nil, nil, poller), 0),
		Balance: func(context.Context) error {
			balances.Add(1)
			return errors.New("rpc down")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for cycles.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d cycles ran", cycles.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	if balances.Load() == 0 {
		t.Error("balance should be read at startup")
	}
}

func TestOpenStoresMemoryAndSQLite(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenStores(ctx, sqldb.Config{})
	if err != nil {
		t.Fatalf("OpenStores(memory) error = %v", err)
	}
	if mem.DB != nil {
		t.Error("memory mode should not open a database")
	}
	if err := mem.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}

	sql, err := OpenStores(ctx, sqldb.Config{Driver: "sqlite", URL: ":memory:"})
	if err != nil {
		t.Fatalf("OpenStores(sqlite) error = %v", err)
	}
	defer sql.Close()

	if err := sql.Cursor.Save(ctx, "mentions", 42); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	c, err := sql.Cursor.Get(ctx, "mentions")
	if err != nil || c == nil || c.LastEventID != 42 {
		t.Errorf("Get() = %+v, %v", c, err)
	}
}
