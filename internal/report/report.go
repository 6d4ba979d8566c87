// Package report turns run summaries into log lines and notifications.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_forwarder/internal/model"
)

const summaryDurationUnit = 100 * time.Millisecond

// Logger reports summaries through structured logging, one line per
// source plus a totals line.
type Logger struct {
	log *slog.Logger
}

// NewLogger creates a log-based reporter.
func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log}
}

// Report logs the per-source outcomes and the run totals.
func (r *Logger) Report(_ context.Context, summary model.Summary) {
	for _, src := range summary.Sources {
		r.log.Info("source summary",
			"run_id", summary.RunID,
			"chat_id", src.ChatID,
			"topic_id", src.TopicID,
			"scanned", src.Scanned,
			"matched", src.Matched,
			"forwarded", src.Forwarded,
			"copied", src.Copied,
			"failed", src.Failed,
			"skipped", src.Skipped,
			"conflict", src.CursorConflict,
			"fatal", src.Fatal,
			"errors", len(src.Errors),
		)
		for _, e := range src.Errors {
			r.log.Warn("source error", "run_id", summary.RunID, "chat_id", src.ChatID, "topic_id", src.TopicID, "error", e)
		}
	}
	t := summary.Totals()
	r.log.Info("run summary",
		"run_id", summary.RunID,
		"duration", summary.Finished.Sub(summary.Started).Round(summaryDurationUnit).String(),
		"sources", len(summary.Sources),
		"scanned", t.Scanned,
		"matched", t.Matched,
		"forwarded", t.Forwarded,
		"copied", t.Copied,
		"failed", t.Failed,
		"source_failures", t.Fatal,
	)
}

// botAPI is the slice of the Bot API the notifier uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends the run summary to an admin chat through a bot token,
// so operators see outcomes without reading logs.
type Notifier struct {
	api    botAPI
	chatID int64
	log    *slog.Logger
}

// NewNotifier creates a Notifier for the given bot token and admin chat.
func NewNotifier(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Notifier{api: api, chatID: chatID, log: log}, nil
}

// Report sends the formatted summary. Send errors are logged, never
// propagated: reporting must not fail a finished run.
func (n *Notifier) Report(_ context.Context, summary model.Summary) {
	msg := tgbotapi.NewMessage(n.chatID, FormatSummary(summary))
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send summary notification", "error", err)
	}
}

// Reporter is anything that can receive a run summary.
type Reporter interface {
	Report(ctx context.Context, summary model.Summary)
}

// Multi fans a summary out to several reporters.
type Multi []Reporter

// Report invokes every wrapped reporter in order.
func (m Multi) Report(ctx context.Context, summary model.Summary) {
	for _, r := range m {
		r.Report(ctx, summary)
	}
}

// FormatSummary renders a run summary as a plain text message.
func FormatSummary(summary model.Summary) string {
	t := summary.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "Keyword scan finished (%d sources)\n", len(summary.Sources))
	fmt.Fprintf(&b, "scanned %d, matched %d, forwarded %d, copied %d, failed %d\n",
		t.Scanned, t.Matched, t.Forwarded, t.Copied, t.Failed)

	for _, src := range summary.Sources {
		name := src.Name
		if name == "" {
			name = fmt.Sprintf("%d", src.ChatID)
		}
		if src.TopicID != 0 {
			name = fmt.Sprintf("%s (topic %d)", name, src.TopicID)
		}
		switch {
		case src.Fatal:
			fmt.Fprintf(&b, "\n%s: FAILED: %s", name, strings.Join(src.Errors, "; "))
		case src.CursorConflict:
			fmt.Fprintf(&b, "\n%s: cursor conflict, no progress recorded", name)
		default:
			fmt.Fprintf(&b, "\n%s: %d scanned, %d matched, %d delivered", name, src.Scanned, src.Matched, src.Forwarded+src.Copied)
			if src.Failed > 0 {
				fmt.Fprintf(&b, ", %d failed", src.Failed)
			}
		}
	}
	return b.String()
}
