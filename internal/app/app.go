// Package app assembles the tool service from configuration. The HTTP
// server, the CLI and the MCP server all start from Build.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"aca-sandbox/internal/audit"
	"aca-sandbox/internal/config"
	"aca-sandbox/internal/lesson"
	"aca-sandbox/internal/monitor"
	"aca-sandbox/internal/sandbox"
	"aca-sandbox/internal/storage"
	"aca-sandbox/internal/toolkit"
)

// flushTimeout bounds how long Close waits for queued manifest writes.
const flushTimeout = 5 * time.Second

// App holds the assembled components.
type App struct {
	Config   *config.Config
	Service  *toolkit.Service
	Backend  sandbox.Backend
	Recorder audit.Recorder
	Lessons  *lesson.Catalog
	Metrics  *monitor.Metrics
	// DB is set only for the postgres manifest sink.
	DB *storage.DB

	closers []func()
}

// Option adjusts the executor before it is built.
type Option = sandbox.Option

// Build wires everything cfg describes. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Metrics: monitor.NewMetrics()}

	lessons, err := lesson.Builtin()
	if err != nil {
		return nil, err
	}
	a.Lessons = lessons

	execOpts := []sandbox.Option{sandbox.WithMetrics(a.Metrics)}
	if cfg.Tracing.Enabled {
		execOpts = append(execOpts, sandbox.WithTracer(monitor.NewTracer()))
	}
	backend, err := sandbox.NewBackend(cfg, append(execOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	a.Backend = backend
	a.closers = append(a.closers, func() {
		if err := backend.Close(); err != nil {
			log.Error().Err(err).Msg("backend close error")
		}
	})

	if err := a.openRecorder(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Service = toolkit.New(backend, a.Recorder, toolkit.SettingsFromConfig(cfg.Sandbox), toolkit.WithMetrics(a.Metrics))
	return a, nil
}

func (a *App) openRecorder(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Audit.Sink {
	case "", "file":
		a.Recorder = audit.NewFileRecorder(cfg.Sandbox.Dir)
	case "memory":
		a.Recorder = audit.NewMemoryRecorder()
	case "sqlite":
		rec, err := audit.OpenSQLite(cfg.Audit.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite manifest: %w", err)
		}
		a.Recorder = rec
		a.closers = append(a.closers, func() { rec.Close() })
	case "postgres":
		db, err := storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
		writer := storage.NewAuditWriter(db, cfg.Audit.BufferSize)
		writer.Start()
		a.DB = db
		a.Recorder = writer
		// Flush before the pool goes away.
		a.closers = append(a.closers, func() {
			writer.Flush(flushTimeout)
			db.Close()
		})
	default:
		return fmt.Errorf("unknown audit sink %q", cfg.Audit.Sink)
	}
	log.Debug().Str("sink", cfg.Audit.Sink).Msg("manifest recorder ready")
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
