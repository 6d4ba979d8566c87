// Package window computes the fetch range for one source run.
package window

import (
	"time"

	"keyword_forwarder/internal/model"
)

// FirstRunLookback bounds the scan of a source that has no cursor yet,
// so a first run never walks the full chat history.
const FirstRunLookback = 24 * time.Hour

// Window is the half-open range (lower bound, now] to scan. Exactly one
// of MinID and Since is set: MinID is an exclusive message-ID bound,
// Since an exclusive timestamp bound. The upper bound is implicit; the
// fetch stream ends at the newest available message.
type Window struct {
	MinID int64
	Since time.Time
}

// Plan derives the window for a source from its stored cursor.
// A recorded message ID wins over a recorded timestamp; with no cursor
// at all the window covers the last FirstRunLookback before now.
func Plan(cursor model.Cursor, now time.Time) Window {
	if cursor.LastMessageID > 0 {
		return Window{MinID: cursor.LastMessageID}
	}
	if cursor.LastTimestamp != nil {
		return Window{Since: *cursor.LastTimestamp}
	}
	return Window{Since: now.Add(-FirstRunLookback)}
}

// Contains reports whether a message at the given position falls inside
// the window.
func (w Window) Contains(id int64, date time.Time) bool {
	if w.MinID > 0 {
		return id > w.MinID
	}
	return date.After(w.Since)
}
