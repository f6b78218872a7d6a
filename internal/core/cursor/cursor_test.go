package cursor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// =============================================================================
// Mock Repository
// =============================================================================

type mockCursorRepo struct {
	mu      sync.RWMutex
	cursors map[string]*domain.Cursor
	saves   int
	failGet error
}

func newMockCursorRepo() *mockCursorRepo {
	return &mockCursorRepo{
		cursors: make(map[string]*domain.Cursor),
	}
}

func (r *mockCursorRepo) Get(ctx context.Context, name string) (*domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failGet != nil {
		return nil, r.failGet
	}
	cursor, ok := r.cursors[name]
	if !ok {
		return nil, nil
	}
	c := *cursor
	return &c, nil
}

func (r *mockCursorRepo) Save(ctx context.Context, name string, lastEventID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	r.cursors[name] = &domain.Cursor{Name: name, LastEventID: lastEventID, UpdatedAt: time.Now()}
	return nil
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestPositionDefaultsToZero(t *testing.T) {
	m := NewManager(newMockCursorRepo())

	pos, err := m.Position(context.Background())
	if err != nil {
		t.Fatalf("Position() error = %v", err)
	}
	if pos != 0 {
		t.Errorf("Position() = %d, want 0", pos)
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	repo := newMockCursorRepo()
	m := NewManager(repo)
	ctx := context.Background()

	tests := []struct {
		name    string
		advance int64
		want    int64
	}{
		{"first batch", 100, 100},
		{"forward", 150, 150},
		{"same id", 150, 150},
		{"older batch", 120, 150},
		{"forward again", 151, 151},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Advance(ctx, tt.advance); err != nil {
				t.Fatalf("Advance(%d) error = %v", tt.advance, err)
			}
			pos, _ := m.Position(ctx)
			if pos != tt.want {
				t.Errorf("Position() = %d, want %d", pos, tt.want)
			}
		})
	}

	if repo.saves != 3 {
		t.Errorf("saves = %d, want 3", repo.saves)
	}
}

func TestResetMovesBackwards(t *testing.T) {
	m := NewManager(newMockCursorRepo())
	ctx := context.Background()

	_ = m.Advance(ctx, 500)
	if err := m.Reset(ctx, 10); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	pos, _ := m.Position(ctx)
	if pos != 10 {
		t.Errorf("Position() = %d, want 10", pos)
	}

	if err := m.Reset(ctx, -1); !errors.Is(err, ErrNegativeCursor) {
		t.Errorf("Reset(-1) = %v, want ErrNegativeCursor", err)
	}
}

func TestAdvancePropagatesRepoError(t *testing.T) {
	repo := newMockCursorRepo()
	repo.failGet = errors.New("db down")
	m := NewManager(repo)

	if err := m.Advance(context.Background(), 5); err == nil {
		t.Fatal("expected error")
	}
	if repo.saves != 0 {
		t.Errorf("saves = %d, want 0", repo.saves)
	}
}
