package cursor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"keyword_forwarder/internal/config"
	"keyword_forwarder/internal/model"
)

// YAMLStore keeps cursors inside the scan config document itself, next
// to the source definitions, which is the default layout: one file
// holds the destination, the sources, and how far each has been read.
//
// Every operation re-reads the document, so external edits between runs
// are picked up, and the compare-and-set check runs against what is on
// disk, not a cached copy. A process-wide mutex serializes writers; the
// rename performed by config.WriteDocument keeps each write atomic.
type YAMLStore struct {
	path string
	log  *slog.Logger

	mu sync.Mutex
}

// NewYAMLStore creates a store over the config document at path.
func NewYAMLStore(path string, log *slog.Logger) *YAMLStore {
	return &YAMLStore{path: path, log: log}
}

// Get reads the current cursor of key from the document.
func (s *YAMLStore) Get(ctx context.Context, key model.SourceKey) (model.Cursor, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := config.ReadDocument(s.path)
	if err != nil {
		return model.Cursor{}, false, err
	}
	sd := findSource(doc, key)
	if sd == nil || sd.Cursor == nil {
		return model.Cursor{}, false, nil
	}
	c := config.ParseCursor(sd.Cursor, s.log)
	return c, !c.IsZero(), nil
}

// CompareAndSet writes the merged cursor back into the document if the
// stored value still matches old.
func (s *YAMLStore) CompareAndSet(ctx context.Context, key model.SourceKey, old, next model.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := config.ReadDocument(s.path)
	if err != nil {
		return err
	}
	sd := findSource(doc, key)
	if sd == nil {
		return fmt.Errorf("no source for chat_id=%d topic_id=%d in %s", key.ChatID, key.TopicID, s.path)
	}

	current := config.ParseCursor(sd.Cursor, s.log)
	if !current.Equal(old) {
		return ErrConflict
	}

	merged := Merge(current, next)
	if merged.Equal(current) {
		return nil
	}
	sd.Cursor = config.FormatCursor(merged)
	return config.WriteDocument(s.path, doc)
}

func findSource(doc *config.Document, key model.SourceKey) *config.SourceDoc {
	for i := range doc.Sources {
		if doc.Sources[i].ChatID == key.ChatID && doc.Sources[i].TopicID == key.TopicID {
			return &doc.Sources[i]
		}
	}
	return nil
}
