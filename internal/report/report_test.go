package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_forwarder/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockBotAPI struct {
	sent    []tgbotapi.Chattable
	sendErr error
}

func (m *mockBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, m.sendErr
}

func sampleSummary() model.Summary {
	return model.Summary{
		RunID: "test-run",
		Sources: []model.SourceStats{
			{ChatID: 100, Name: "announcements", Scanned: 5, Matched: 2, Forwarded: 1, Copied: 1},
			{ChatID: 200, TopicID: 7, Scanned: 3, Matched: 1, Failed: 1, Errors: []string{"message_id=9: boom"}},
			{ChatID: 300, Fatal: true, Errors: []string{"scan: CHANNEL_PRIVATE"}},
			{ChatID: 400, CursorConflict: true},
		},
	}
}

func TestFormatSummary(t *testing.T) {
	got := FormatSummary(sampleSummary())

	for _, want := range []string{
		"Keyword scan finished (4 sources)",
		"scanned 8, matched 3, forwarded 1, copied 1, failed 1",
		"announcements: 5 scanned, 2 matched, 2 delivered",
		"200 (topic 7): 3 scanned, 1 matched, 0 delivered, 1 failed",
		"300: FAILED: scan: CHANNEL_PRIVATE",
		"400: cursor conflict, no progress recorded",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestNotifierSendsSummary(t *testing.T) {
	api := &mockBotAPI{}
	n := &Notifier{api: api, chatID: 42, log: testLogger()}

	n.Report(context.Background(), sampleSummary())

	if len(api.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(api.sent))
	}
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", api.sent[0])
	}
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d, want 42", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "Keyword scan finished") {
		t.Errorf("unexpected text: %q", msg.Text)
	}
}

func TestNotifierSwallowsSendError(t *testing.T) {
	api := &mockBotAPI{sendErr: errors.New("telegram down")}
	n := &Notifier{api: api, chatID: 42, log: testLogger()}

	// Must not panic or propagate.
	n.Report(context.Background(), sampleSummary())
}

func TestMultiFansOut(t *testing.T) {
	apiA := &mockBotAPI{}
	apiB := &mockBotAPI{}
	m := Multi{
		&Notifier{api: apiA, chatID: 1, log: testLogger()},
		&Notifier{api: apiB, chatID: 2, log: testLogger()},
	}

	m.Report(context.Background(), sampleSummary())

	if len(apiA.sent) != 1 || len(apiB.sent) != 1 {
		t.Errorf("fan-out calls = %d/%d, want 1/1", len(apiA.sent), len(apiB.sent))
	}
}
