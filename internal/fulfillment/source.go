package fulfillment

import (
	"context"

	"github.com/vietddude/blessbot/internal/core/domain"
)

// MentionSource yields mentions with ids above sinceID in ascending order.
// It returns an empty slice when nothing is new or the session had to be
// re-established.
type MentionSource interface {
	Fetch(ctx context.Context, sinceID int64) ([]domain.Mention, error)
}

// ReplySink posts a reply under a mention. Delivery is best effort.
type ReplySink interface {
	Reply(ctx context.Context, r domain.Reply) error
}
