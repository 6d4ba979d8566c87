package cursor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"keyword_forwarder/internal/config"
	"keyword_forwarder/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newYAMLFixture(t *testing.T) (*YAMLStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `destination_chat_id: 99
sources:
  - chat_id: 100
    keywords: [alpha]
  - chat_id: 200
    topic_id: 7
    keywords: [beta]
    cursor:
      last_message_id: 42
      last_timestamp: "2025-06-01T10:00:00Z"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewYAMLStore(path, testLogger()), path
}

func TestYAMLStoreGet(t *testing.T) {
	store, _ := newYAMLFixture(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	got, ok, err := store.Get(ctx, model.SourceKey{ChatID: 200, TopicID: 7})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cursor to exist")
	}
	want := model.Cursor{LastMessageID: 42, LastTimestamp: &ts}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cursor mismatch (-want +got):\n%s", diff)
	}

	_, ok, err = store.Get(ctx, model.SourceKey{ChatID: 100})
	if err != nil {
		t.Fatalf("Get without cursor: %v", err)
	}
	if ok {
		t.Error("expected no cursor for source without one")
	}

	_, ok, err = store.Get(ctx, model.SourceKey{ChatID: 12345})
	if err != nil {
		t.Fatalf("Get for unknown source: %v", err)
	}
	if ok {
		t.Error("expected no cursor for unknown source")
	}
}

func TestYAMLStoreCompareAndSet(t *testing.T) {
	store, path := newYAMLFixture(t)
	ctx := context.Background()
	key := model.SourceKey{ChatID: 100}

	next := model.Cursor{LastMessageID: 10}
	if err := store.CompareAndSet(ctx, key, model.Cursor{}, next); err != nil {
		t.Fatalf("CompareAndSet: %v", err)
	}

	// The write survives a fresh store over the same file.
	fresh := NewYAMLStore(path, testLogger())
	got, ok, err := fresh.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get after write: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(next, got); diff != "" {
		t.Errorf("persisted cursor mismatch (-want +got):\n%s", diff)
	}

	// Untouched sources keep their cursors.
	other, ok, err := fresh.Get(ctx, model.SourceKey{ChatID: 200, TopicID: 7})
	if err != nil || !ok {
		t.Fatalf("Get untouched source: ok=%v err=%v", ok, err)
	}
	if other.LastMessageID != 42 {
		t.Errorf("untouched cursor changed: %+v", other)
	}
}

func TestYAMLStoreCompareAndSetConflict(t *testing.T) {
	store, _ := newYAMLFixture(t)
	ctx := context.Background()
	key := model.SourceKey{ChatID: 200, TopicID: 7}

	// The caller observed no cursor, but the document holds one.
	err := store.CompareAndSet(ctx, key, model.Cursor{}, model.Cursor{LastMessageID: 50})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The failed write must not have changed the document.
	got, _, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastMessageID != 42 {
		t.Errorf("cursor changed after conflict: %+v", got)
	}
}

func TestYAMLStoreMonotonicMerge(t *testing.T) {
	store, _ := newYAMLFixture(t)
	ctx := context.Background()
	key := model.SourceKey{ChatID: 200, TopicID: 7}
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	old := model.Cursor{LastMessageID: 42, LastTimestamp: &ts}

	// A stale write with a lower ID must not move the cursor backward.
	if err := store.CompareAndSet(ctx, key, old, model.Cursor{LastMessageID: 30}); err != nil {
		t.Fatalf("CompareAndSet: %v", err)
	}
	got, _, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(old, got); diff != "" {
		t.Errorf("cursor moved backward (-want +got):\n%s", diff)
	}
}

func TestYAMLStoreUnknownSource(t *testing.T) {
	store, _ := newYAMLFixture(t)
	err := store.CompareAndSet(context.Background(), model.SourceKey{ChatID: 12345}, model.Cursor{}, model.Cursor{LastMessageID: 1})
	if err == nil || !strings.Contains(err.Error(), "no source") {
		t.Fatalf("expected unknown-source error, got %v", err)
	}
}

func TestYAMLStoreLeavesNoTempFiles(t *testing.T) {
	store, path := newYAMLFixture(t)
	ctx := context.Background()

	if err := store.CompareAndSet(ctx, model.SourceKey{ChatID: 100}, model.Cursor{}, model.Cursor{LastMessageID: 5}); err != nil {
		t.Fatalf("CompareAndSet: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != filepath.Base(path) {
			t.Errorf("unexpected leftover file %q", e.Name())
		}
	}
}

func TestYAMLStorePreservesDocumentFields(t *testing.T) {
	store, path := newYAMLFixture(t)
	ctx := context.Background()

	if err := store.CompareAndSet(ctx, model.SourceKey{ChatID: 100}, model.Cursor{}, model.Cursor{LastMessageID: 5}); err != nil {
		t.Fatalf("CompareAndSet: %v", err)
	}

	doc, err := config.ReadDocument(path)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if doc.DestinationChatID != 99 {
		t.Errorf("destination changed: %d", doc.DestinationChatID)
	}
	if len(doc.Sources) != 2 {
		t.Fatalf("source count changed: %d", len(doc.Sources))
	}
	if diff := cmp.Diff([]string{"beta"}, doc.Sources[1].Keywords); diff != "" {
		t.Errorf("keywords of untouched source changed (-want +got):\n%s", diff)
	}
}
