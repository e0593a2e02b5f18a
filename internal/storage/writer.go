package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"aca-sandbox/internal/audit"
)

// ManifestStore is the synchronous backend an AuditWriter drains into.
// *DB implements it.
type ManifestStore interface {
	SaveManifest(ctx context.Context, e audit.Entry) error
	LastManifest(ctx context.Context) (audit.Entry, error)
}

// AuditWriter buffers manifest writes and applies them on a background
// goroutine with retries. It implements audit.Recorder; Record never blocks
// on the database.
type AuditWriter struct {
	store ManifestStore
	ch    chan audit.Entry
	wg    sync.WaitGroup
	done  chan struct{}
	// retryBase is the first backoff step.
	retryBase time.Duration

	mu      sync.Mutex
	pending *audit.Entry
}

func NewAuditWriter(store ManifestStore, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &AuditWriter{
		store:     store,
		ch:        make(chan audit.Entry, bufferSize),
		done:      make(chan struct{}),
		retryBase: 100 * time.Millisecond,
	}
}

func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// Record queues e. When the buffer is full the oldest queued entry is
// dropped instead, so the store always ends up with the latest entry.
func (w *AuditWriter) Record(_ context.Context, e audit.Entry) error {
	w.mu.Lock()
	w.pending = &e
	w.mu.Unlock()

	for {
		select {
		case w.ch <- e:
			return nil
		default:
		}
		select {
		case old := <-w.ch:
			log.Warn().Str("mode", string(old.Mode)).Msg("audit buffer full, dropping oldest manifest entry")
		default:
		}
	}
}

// Last returns the most recently queued entry, falling back to the store
// when nothing was recorded by this process.
func (w *AuditWriter) Last(ctx context.Context) (audit.Entry, error) {
	w.mu.Lock()
	pending := w.pending
	w.mu.Unlock()
	if pending != nil {
		return *pending, nil
	}
	return w.store.LastManifest(ctx)
}

func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("audit writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("audit writer flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case e := <-w.ch:
			w.writeWithRetry(e)
		case <-w.done:
			for {
				select {
				case e := <-w.ch:
					w.writeWithRetry(e)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(e audit.Entry) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.store.SaveManifest(ctx, e)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * w.retryBase
			log.Warn().
				Err(err).
				Str("mode", string(e.Mode)).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("manifest write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("mode", string(e.Mode)).
				Msg("manifest write failed permanently after retries")
		}
	}
}

var _ ManifestStore = (*DB)(nil)
