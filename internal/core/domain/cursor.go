package domain

import "time"

// MentionCursor is the name of the resume cursor for the mention stream.
const MentionCursor = "mentions"

// Cursor is the low-water mark of the mention stream: the highest event id
// handled by a completed batch.
type Cursor struct {
	Name        string
	LastEventID int64
	UpdatedAt   time.Time
}
