// Package config handles the YAML scan configuration and environment settings.
//
// The YAML document is the single source of truth for the destination chat,
// the scan sources, and their stored cursors; the cursor store writes
// advanced cursors back into the same document.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"keyword_forwarder/internal/matcher"
	"keyword_forwarder/internal/model"
)

// DefaultFileName is the config file looked up in the home directory
// when no -config flag is given.
const DefaultFileName = ".keyword-forwarder.yaml"

// Backend names for the cursor store.
const (
	BackendConfig = "config"
	BackendSQLite = "sqlite"
)

// Document is the on-disk layout of the config file.
type Document struct {
	DestinationChatID int64           `yaml:"destination_chat_id"`
	CleanDestination  bool            `yaml:"clean_destination,omitempty"`
	CursorStore       *CursorStoreDoc `yaml:"cursor_store,omitempty"`
	Sources           []SourceDoc     `yaml:"sources"`
}

// CursorStoreDoc selects where cursors are persisted.
type CursorStoreDoc struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// SourceDoc is one scan target in the config file.
type SourceDoc struct {
	ChatID   int64      `yaml:"chat_id"`
	ChatName string     `yaml:"chat_name,omitempty"`
	TopicID  int64      `yaml:"topic_id,omitempty"`
	Keywords []string   `yaml:"keywords"`
	Cursor   *CursorDoc `yaml:"cursor,omitempty"`
}

// CursorDoc is the persisted cursor of one source.
type CursorDoc struct {
	LastMessageID int64  `yaml:"last_message_id,omitempty"`
	LastTimestamp string `yaml:"last_timestamp,omitempty"`
}

// Config is the validated runtime view of a Document.
type Config struct {
	Path              string
	DestinationChatID int64
	CleanDestination  bool
	CursorBackend     string
	CursorPath        string
	Sources           []model.Source
}

// ResolvePath expands the config path, falling back to the default
// location in the user's home directory.
func ResolvePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Load reads, parses, and validates the config file at path.
// Any error here is fatal: the run must not start on a broken config.
func Load(path string, log *slog.Logger) (*Config, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	warnOnPermissions(path, log)
	return parse(doc, path, log)
}

// ReadDocument reads and unmarshals the raw config document.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("config %s is empty", path)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &doc, nil
}

// WriteDocument atomically replaces the config file with the given
// document: write to a temp file in the same directory, fsync, rename.
// A crash mid-write leaves the previous file intact.
func WriteDocument(path string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func parse(doc *Document, path string, log *slog.Logger) (*Config, error) {
	if doc.DestinationChatID == 0 {
		return nil, errors.New("config requires destination_chat_id")
	}
	if len(doc.Sources) == 0 {
		return nil, errors.New("config requires a non-empty sources list")
	}

	backend := BackendConfig
	cursorPath := ""
	if doc.CursorStore != nil {
		switch doc.CursorStore.Backend {
		case "", BackendConfig:
		case BackendSQLite:
			backend = BackendSQLite
			cursorPath = doc.CursorStore.Path
			if cursorPath == "" {
				return nil, errors.New("cursor_store backend sqlite requires path")
			}
		default:
			return nil, fmt.Errorf("unknown cursor_store backend %q", doc.CursorStore.Backend)
		}
	}

	seen := make(map[model.SourceKey]struct{}, len(doc.Sources))
	sources := make([]model.Source, 0, len(doc.Sources))
	for i, sd := range doc.Sources {
		if sd.ChatID == 0 {
			return nil, fmt.Errorf("source[%d] requires chat_id", i)
		}
		keywords := matcher.Keywords(sd.Keywords)
		if len(keywords) == 0 {
			return nil, fmt.Errorf("source[%d] requires at least one non-empty keyword", i)
		}
		src := model.Source{
			ChatID:   sd.ChatID,
			TopicID:  sd.TopicID,
			Name:     sd.ChatName,
			Keywords: keywords,
		}
		if _, dup := seen[src.Key()]; dup {
			return nil, fmt.Errorf("duplicate source for chat_id=%d topic_id=%d", sd.ChatID, sd.TopicID)
		}
		seen[src.Key()] = struct{}{}
		sources = append(sources, src)
	}

	return &Config{
		Path:              path,
		DestinationChatID: doc.DestinationChatID,
		CleanDestination:  doc.CleanDestination,
		CursorBackend:     backend,
		CursorPath:        cursorPath,
		Sources:           sources,
	}, nil
}

// ParseCursor converts a document cursor to its domain form. Invalid
// values are dropped with a warning rather than failing the run, so a
// hand-edited cursor cannot brick the scanner.
func ParseCursor(cd *CursorDoc, log *slog.Logger) model.Cursor {
	if cd == nil {
		return model.Cursor{}
	}
	c := model.Cursor{}
	if cd.LastMessageID > 0 {
		c.LastMessageID = cd.LastMessageID
	} else if cd.LastMessageID < 0 && log != nil {
		log.Warn("ignoring negative last_message_id in cursor", "value", cd.LastMessageID)
	}
	if cd.LastTimestamp != "" {
		ts, err := time.Parse(time.RFC3339, cd.LastTimestamp)
		if err != nil {
			if log != nil {
				log.Warn("ignoring invalid last_timestamp in cursor", "value", cd.LastTimestamp)
			}
		} else {
			utc := ts.UTC()
			c.LastTimestamp = &utc
		}
	}
	return c
}

// FormatCursor converts a domain cursor to its document form, or nil
// when the cursor is empty.
func FormatCursor(c model.Cursor) *CursorDoc {
	if c.IsZero() {
		return nil
	}
	cd := &CursorDoc{LastMessageID: c.LastMessageID}
	if c.LastTimestamp != nil {
		cd.LastTimestamp = c.LastTimestamp.UTC().Format(time.RFC3339)
	}
	return cd
}

// warnOnPermissions flags config files readable by group or others;
// the file holds chat identifiers and scan targets.
func warnOnPermissions(path string, log *slog.Logger) {
	if runtime.GOOS == "windows" || log == nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		log.Warn("config file permissions are broad, consider chmod 600", "path", path)
	}
}
