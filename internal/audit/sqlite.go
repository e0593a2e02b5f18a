package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifest (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	timestamp  TEXT NOT NULL,
	mode       TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	status     TEXT NOT NULL
)`

// SQLiteRecorder keeps the manifest as the single row of a SQLite table.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path. Use ":memory:" in tests.
func OpenSQLite(path string) (*SQLiteRecorder, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// :memory: is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest table: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO manifest (id, timestamp, mode, input_hash, status)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			mode = excluded.mode,
			input_hash = excluded.input_hash,
			status = excluded.status`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), string(e.Mode), e.InputHash, string(e.Status),
	)
	if err != nil {
		return fmt.Errorf("upserting manifest: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Last(ctx context.Context) (Entry, error) {
	var (
		e      Entry
		ts     string
		mode   string
		status string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT timestamp, mode, input_hash, status FROM manifest WHERE id = 1`,
	).Scan(&ts, &mode, &e.InputHash, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNoEntry
	}
	if err != nil {
		return Entry{}, fmt.Errorf("querying manifest: %w", err)
	}

	e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing manifest timestamp: %w", err)
	}
	e.Mode = Mode(mode)
	e.Status = Status(status)
	return e, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
