package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"aca-sandbox/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS manifest (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	timestamp  TIMESTAMPTZ NOT NULL,
	mode       TEXT NOT NULL,
	input_hash TEXT NOT NULL,
	status     TEXT NOT NULL
)`

// DB wraps a PostgreSQL connection pool holding the manifest row.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Migrate creates the manifest table if it does not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating manifest table: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// SaveManifest replaces the manifest row.
func (db *DB) SaveManifest(ctx context.Context, e audit.Entry) error {
	query := `
		INSERT INTO manifest (id, timestamp, mode, input_hash, status)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			mode = EXCLUDED.mode,
			input_hash = EXCLUDED.input_hash,
			status = EXCLUDED.status`

	_, err := db.pool.Exec(ctx, query, e.Timestamp, string(e.Mode), e.InputHash, string(e.Status))
	if err != nil {
		return fmt.Errorf("upserting manifest: %w", err)
	}
	return nil
}

// LastManifest reads the manifest row.
func (db *DB) LastManifest(ctx context.Context) (audit.Entry, error) {
	var (
		e            audit.Entry
		mode, status string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT timestamp, mode, input_hash, status FROM manifest WHERE id = 1`,
	).Scan(&e.Timestamp, &mode, &e.InputHash, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.Entry{}, audit.ErrNoEntry
	}
	if err != nil {
		return audit.Entry{}, fmt.Errorf("querying manifest: %w", err)
	}
	e.Mode = audit.Mode(mode)
	e.Status = audit.Status(status)
	return e, nil
}
