// Package runner drives the scan-match-relay cycle for configured sources.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keyword_forwarder/internal/cursor"
	"keyword_forwarder/internal/matcher"
	"keyword_forwarder/internal/model"
	"keyword_forwarder/internal/window"
)

// MessageSource streams messages of one chat restricted to a window,
// in increasing ID order, invoking fn once per message. The stream is
// finite and restartable per call.
type MessageSource interface {
	Messages(ctx context.Context, chatID, topicID int64, w window.Window, fn func(model.Message) error) error
}

// Sender posts a plain text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Deliverer relays one matched message to the destination.
type Deliverer interface {
	Deliver(ctx context.Context, msg model.Message, destChatID int64) model.Delivery
}

// Runner processes a single source end to end: plan the window from the
// stored cursor, scan, match, deliver, then advance the cursor once.
type Runner struct {
	msgs    MessageSource
	deliver Deliverer
	sender  Sender
	cursors cursor.Store
	dest    int64
	log     *slog.Logger
	now     func() time.Time
}

// NewRunner wires a Runner against its collaborators.
func NewRunner(msgs MessageSource, d Deliverer, sender Sender, cursors cursor.Store, destChatID int64, log *slog.Logger) *Runner {
	return &Runner{
		msgs:    msgs,
		deliver: d,
		sender:  sender,
		cursors: cursors,
		dest:    destChatID,
		log:     log,
		now:     time.Now,
	}
}

// SetNow overrides the clock (useful for testing window planning).
func (r *Runner) SetNow(now func() time.Time) {
	r.now = now
}

// Run scans one source and returns its statistics. Errors never escape:
// an unrecoverable source error is recorded in the stats and leaves the
// cursor untouched, so one broken source cannot stop a batch.
func (r *Runner) Run(ctx context.Context, src model.Source) model.SourceStats {
	stats := model.SourceStats{ChatID: src.ChatID, TopicID: src.TopicID, Name: src.Name}

	key := src.Key()
	old, _, err := r.cursors.Get(ctx, key)
	if err != nil {
		stats.Fatal = true
		stats.Errors = append(stats.Errors, fmt.Sprintf("read cursor: %v", err))
		return stats
	}

	w := window.Plan(old, r.now().UTC())
	keywords := matcher.Keywords(src.Keywords)

	advanced := old
	headerSent := false

	scanErr := r.msgs.Messages(ctx, src.ChatID, src.TopicID, w, func(m model.Message) error {
		// Stop between messages on cancellation; the message in flight
		// is always finished so the cursor stays unambiguous.
		if err := ctx.Err(); err != nil {
			return err
		}
		if src.TopicID != 0 && m.TopicID != src.TopicID {
			// Out-of-topic messages never enter the match stream and
			// never advance the cursor.
			return nil
		}

		stats.Scanned++

		if res := matcher.Match(m.Text, keywords); res.Matched {
			stats.Matched++
			// A delivery in flight runs to completion; cancellation only
			// takes effect at the next between-messages check above.
			sendCtx := context.WithoutCancel(ctx)
			if !headerSent {
				r.sendHeader(sendCtx, src, &stats)
				headerSent = true
			}
			d := r.deliver.Deliver(sendCtx, m, r.dest)
			switch d.Status {
			case model.DeliveryForwarded:
				stats.Forwarded++
			case model.DeliveryCopied:
				stats.Copied++
			case model.DeliverySkipped:
				stats.Skipped++
				r.log.Info("delivery skipped", "chat_id", src.ChatID, "message_id", m.ID, "reason", d.Reason)
			case model.DeliveryFailed:
				// At-most-once policy: the failure is surfaced and the
				// cursor still moves past this message, so a poison
				// message cannot block the source forever.
				stats.Failed++
				stats.Errors = append(stats.Errors, fmt.Sprintf("message_id=%d: %s", m.ID, d.Reason))
				r.log.Error("delivery failed", "chat_id", src.ChatID, "topic_id", src.TopicID, "message_id", m.ID, "reason", d.Reason)
			}
		}

		ts := m.Date.UTC()
		advanced = cursor.Merge(advanced, model.Cursor{LastMessageID: m.ID, LastTimestamp: &ts})
		return nil
	})

	cancelled := scanErr != nil && (errors.Is(scanErr, context.Canceled) || errors.Is(scanErr, context.DeadlineExceeded))
	if scanErr != nil && !cancelled {
		stats.Fatal = true
		stats.Errors = append(stats.Errors, fmt.Sprintf("scan: %v", scanErr))
		return stats
	}

	if advanced.Equal(old) {
		return stats
	}

	// The write must land even when the run was cancelled mid-source:
	// it folds in only fully completed messages.
	writeCtx := context.WithoutCancel(ctx)
	if err := r.cursors.CompareAndSet(writeCtx, key, old, advanced); err != nil {
		if errors.Is(err, cursor.ErrConflict) {
			stats.CursorConflict = true
			r.log.Warn("cursor modified concurrently, not advancing", "chat_id", src.ChatID, "topic_id", src.TopicID)
		} else {
			stats.Errors = append(stats.Errors, fmt.Sprintf("write cursor: %v", err))
			r.log.Error("cursor write failed", "chat_id", src.ChatID, "topic_id", src.TopicID, "error", err)
		}
	}
	return stats
}

func (r *Runner) sendHeader(ctx context.Context, src model.Source, stats *model.SourceStats) {
	title := src.Name
	if title == "" {
		title = fmt.Sprintf("%d", src.ChatID)
	}
	if err := r.sender.Send(ctx, r.dest, fmt.Sprintf("Source chat: %s", title)); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("source header: %v", err))
		r.log.Warn("source header send failed", "chat_id", src.ChatID, "error", err)
	}
}
