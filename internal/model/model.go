// Package model defines the domain types used across the application.
package model

import "time"

// Source represents one scan target: a chat, optionally narrowed to a forum topic.
type Source struct {
	ChatID   int64
	TopicID  int64 // 0 means the whole chat
	Name     string
	Keywords []string
}

// Key returns the cursor key for this source.
func (s Source) Key() SourceKey {
	return SourceKey{ChatID: s.ChatID, TopicID: s.TopicID}
}

// SourceKey identifies a (chat, topic) pair for cursor storage.
type SourceKey struct {
	ChatID  int64
	TopicID int64
}

// Cursor marks how far a source has been scanned.
// LastMessageID is authoritative when non-zero; LastTimestamp is the
// fallback used before any message ID has been recorded.
type Cursor struct {
	LastMessageID int64
	LastTimestamp *time.Time
}

// IsZero reports whether the cursor carries no position at all.
func (c Cursor) IsZero() bool {
	return c.LastMessageID == 0 && c.LastTimestamp == nil
}

// Equal compares two cursors by value, treating timestamps at the same
// instant as equal regardless of location.
func (c Cursor) Equal(o Cursor) bool {
	if c.LastMessageID != o.LastMessageID {
		return false
	}
	if (c.LastTimestamp == nil) != (o.LastTimestamp == nil) {
		return false
	}
	if c.LastTimestamp != nil && !c.LastTimestamp.Equal(*o.LastTimestamp) {
		return false
	}
	return true
}

// Message is a single chat message as seen by the scanner.
type Message struct {
	ID       int64
	ChatID   int64
	TopicID  int64 // 0 when the message is not part of a forum topic
	Date     time.Time
	Text     string
	HasMedia bool
}

// Copyable reports whether the message has content that can be re-sent
// as a new message when forwarding is disallowed.
func (m Message) Copyable() bool {
	return m.Text != "" || m.HasMedia
}

// MatchResult is the outcome of matching a message against a keyword set.
type MatchResult struct {
	Matched bool
	Keyword string
}

// DeliveryStatus classifies the outcome of one delivery attempt.
type DeliveryStatus string

// Supported delivery statuses.
const (
	DeliveryForwarded DeliveryStatus = "forwarded"
	DeliveryCopied    DeliveryStatus = "copied"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// Delivery is the outcome of delivering one matched message.
// Reason is set for failed and skipped outcomes.
type Delivery struct {
	Status DeliveryStatus
	Reason string
}

// SourceStats collects per-source counters for one run.
type SourceStats struct {
	ChatID  int64
	TopicID int64
	Name    string

	Scanned   int
	Matched   int
	Forwarded int
	Copied    int
	Failed    int
	Skipped   int

	CursorConflict bool
	Fatal          bool
	Errors         []string
}

// Summary aggregates the per-source statistics of one batch run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Sources  []SourceStats
}

// Totals holds counters summed across all sources.
type Totals struct {
	Scanned   int
	Matched   int
	Forwarded int
	Copied    int
	Failed    int
	Skipped   int
	Fatal     int
}

// Totals sums the counters of every source in the summary.
func (s Summary) Totals() Totals {
	var t Totals
	for _, src := range s.Sources {
		t.Scanned += src.Scanned
		t.Matched += src.Matched
		t.Forwarded += src.Forwarded
		t.Copied += src.Copied
		t.Failed += src.Failed
		t.Skipped += src.Skipped
		if src.Fatal {
			t.Fatal++
		}
	}
	return t
}

// AllFailed reports whether every source in the run ended in a fatal error.
func (s Summary) AllFailed() bool {
	if len(s.Sources) == 0 {
		return false
	}
	for _, src := range s.Sources {
		if !src.Fatal {
			return false
		}
	}
	return true
}
