// Package cursor tracks the resume position of the mention stream.
//
// The cursor is a bookmark holding the highest mention id the bot has
// handled. The poller asks the source only for mentions above it, so a
// restart neither replays old mentions nor skips new ones.
//
// # Key Features
//
// Monotonic - Advance never moves the cursor backwards. A batch that only
// contains older ids leaves it untouched.
//
// Explicit Reset - Reset is the only way to move it back, used by the
// reset-cursor command to replay a range. Replays are safe because every
// mention is gated by its processed marker.
//
// # Quick Start
//
//	manager := cursor.NewManager(cursorRepo)
//
//	since, _ := manager.Position(ctx)
//	// fetch and process mentions with id > since
//	_ = manager.Advance(ctx, highestID)
package cursor
