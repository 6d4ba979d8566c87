// Package cursor persists per-(chat, topic) scan positions.
//
// Stores apply writes with an optimistic compare-and-set: a write is
// accepted only if the caller's previously observed value still matches
// the stored one, so concurrent runners can never silently overwrite
// each other's progress.
package cursor

import (
	"context"
	"errors"

	"keyword_forwarder/internal/model"
)

// ErrConflict is returned by CompareAndSet when the stored cursor no
// longer matches the caller's observed value.
var ErrConflict = errors.New("cursor modified concurrently")

// Store is the persistence interface for cursors.
type Store interface {
	// Get returns the stored cursor for key and whether one exists.
	Get(ctx context.Context, key model.SourceKey) (model.Cursor, bool, error)

	// CompareAndSet replaces the cursor for key with the monotonic
	// merge of the stored value and next, but only if the stored value
	// still equals old. Returns ErrConflict otherwise. Writes are
	// atomic and survive a crash mid-write.
	CompareAndSet(ctx context.Context, key model.SourceKey, old, next model.Cursor) error
}

// Merge combines two cursors field-wise, keeping the maximum of each.
// A cursor therefore never moves backward through a write.
func Merge(a, b model.Cursor) model.Cursor {
	out := a
	if b.LastMessageID > out.LastMessageID {
		out.LastMessageID = b.LastMessageID
	}
	if b.LastTimestamp != nil && (out.LastTimestamp == nil || b.LastTimestamp.After(*out.LastTimestamp)) {
		ts := *b.LastTimestamp
		out.LastTimestamp = &ts
	}
	return out
}
