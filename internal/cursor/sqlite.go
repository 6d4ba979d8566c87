package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"keyword_forwarder/internal/model"
	"keyword_forwarder/migrations"
)

const timeLayout = time.RFC3339

// SQLiteStore implements Store backed by a SQLite database, for setups
// that prefer keeping cursors out of the config document.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at dsn and runs pending migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored cursor for key.
func (s *SQLiteStore) Get(ctx context.Context, key model.SourceKey) (model.Cursor, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_message_id, last_timestamp FROM cursors WHERE chat_id = ? AND topic_id = ?`,
		key.ChatID, key.TopicID,
	)
	c, err := scanCursor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cursor{}, false, nil
	}
	if err != nil {
		return model.Cursor{}, false, fmt.Errorf("query cursor: %w", err)
	}
	return c, true, nil
}

// CompareAndSet stores the merged cursor for key inside a transaction,
// re-checking the current row against old before writing.
func (s *SQLiteStore) CompareAndSet(ctx context.Context, key model.SourceKey, old, next model.Cursor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT last_message_id, last_timestamp FROM cursors WHERE chat_id = ? AND topic_id = ?`,
		key.ChatID, key.TopicID,
	)
	current, err := scanCursor(row)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
		current = model.Cursor{}
	} else if err != nil {
		return fmt.Errorf("query cursor: %w", err)
	}

	if !current.Equal(old) {
		return ErrConflict
	}

	merged := Merge(current, next)
	if merged.Equal(current) {
		return tx.Commit()
	}

	var ts sql.NullString
	if merged.LastTimestamp != nil {
		ts = sql.NullString{String: merged.LastTimestamp.UTC().Format(timeLayout), Valid: true}
	}
	now := time.Now().UTC().Format(timeLayout)

	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE cursors SET last_message_id = ?, last_timestamp = ?, updated_at = ?
			 WHERE chat_id = ? AND topic_id = ?`,
			merged.LastMessageID, ts, now, key.ChatID, key.TopicID,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cursors (chat_id, topic_id, last_message_id, last_timestamp, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			key.ChatID, key.TopicID, merged.LastMessageID, ts, now,
		)
	}
	if err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return tx.Commit()
}

func scanCursor(row *sql.Row) (model.Cursor, error) {
	var (
		lastID int64
		ts     sql.NullString
	)
	if err := row.Scan(&lastID, &ts); err != nil {
		return model.Cursor{}, err
	}
	c := model.Cursor{LastMessageID: lastID}
	if ts.Valid && ts.String != "" {
		parsed, err := time.Parse(timeLayout, ts.String)
		if err == nil {
			utc := parsed.UTC()
			c.LastTimestamp = &utc
		}
	}
	return c, nil
}
