package cursor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/storage"
	"github.com/vietddude/blessbot/internal/metrics"
)

// ErrNegativeCursor is returned when resetting to a negative id.
var ErrNegativeCursor = errors.New("cursor must not be negative")

// Manager handles the mention cursor.
type Manager interface {
	// Position returns the last processed mention id, 0 when none.
	Position(ctx context.Context) (int64, error)

	// Advance moves the cursor forward to id. Lower ids are ignored.
	Advance(ctx context.Context, id int64) error

	// Reset moves the cursor to id unconditionally.
	Reset(ctx context.Context, id int64) error

	// Get returns the stored cursor row, or nil when it was never saved.
	Get(ctx context.Context) (*domain.Cursor, error)
}

// DefaultManager implements Manager over a CursorRepository.
type DefaultManager struct {
	repo storage.CursorRepository
	name string
	mu   sync.Mutex
}

// NewManager creates a manager for the mention cursor.
func NewManager(repo storage.CursorRepository) *DefaultManager {
	return &DefaultManager{repo: repo, name: domain.MentionCursor}
}

// Get returns the stored cursor row.
func (m *DefaultManager) Get(ctx context.Context) (*domain.Cursor, error) {
	c, err := m.repo.Get(ctx, m.name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return c, nil
}

// Position returns the last processed mention id.
func (m *DefaultManager) Position(ctx context.Context) (int64, error) {
	c, err := m.Get(ctx)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, nil
	}
	return c.LastEventID, nil
}

// Advance moves the cursor forward after a batch was processed.
func (m *DefaultManager) Advance(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.Position(ctx)
	if err != nil {
		return err
	}
	if id <= current {
		return nil
	}
	if err := m.repo.Save(ctx, m.name, id); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	metrics.MentionCursor.Set(float64(id))
	return nil
}

// Reset moves the cursor to id, forwards or backwards.
func (m *DefaultManager) Reset(ctx context.Context, id int64) error {
	if id < 0 {
		return ErrNegativeCursor
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.Save(ctx, m.name, id); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	metrics.MentionCursor.Set(float64(id))
	return nil
}
