package sandbox

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"aca-sandbox/internal/capture"
	"aca-sandbox/internal/monitor"
	"aca-sandbox/internal/policy"
	"aca-sandbox/internal/runtime"
)

// NoOutput is reported for a successful run that printed nothing.
const NoOutput = "(no output)"

// NoCode is reported for blank source, which is never run.
const NoCode = "No code to run."

type ExecutionRequest struct {
	Source               string `json:"source"`
	Language             string `json:"language"`
	Capabilities         string `json:"capabilities"`
	ConfirmationRequired bool   `json:"confirmation_required"`
	// Confirmed records a confirmation the caller already obtained.
	Confirmed bool `json:"confirmed"`
}

type ExecutionResult struct {
	ID        string        `json:"id"`
	Language  string        `json:"language"`
	Succeeded bool          `json:"succeeded"`
	Output    string        `json:"output"`
	Category  Category      `json:"category"`
	Detail    string        `json:"detail,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Warning   string        `json:"warning,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
	Denied    bool          `json:"denied,omitempty"`
	CodeHash  string        `json:"code_hash"`
}

// ElapsedMillis returns the run time in whole milliseconds.
func (r *ExecutionResult) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// Text is the single block shown to a learner: captured output on success,
// otherwise any partial output followed by the diagnostic.
func (r *ExecutionResult) Text() string {
	var b strings.Builder
	if r.Succeeded {
		b.WriteString(r.Output)
	} else {
		if r.Output != "" && r.Output != NoOutput {
			b.WriteString(r.Output)
			if !strings.HasSuffix(r.Output, "\n") {
				b.WriteString("\n")
			}
		}
		b.WriteString(r.Detail)
	}
	if r.Warning != "" {
		b.WriteString("\nWarning: ")
		b.WriteString(r.Warning)
	}
	return b.String()
}

// Confirmer is the interactive gate consulted when a request requires
// confirmation and has none.
type Confirmer interface {
	Confirm(ctx context.Context, req ExecutionRequest) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req ExecutionRequest) bool

func (f ConfirmFunc) Confirm(ctx context.Context, req ExecutionRequest) bool { return f(ctx, req) }

// Executor runs snippets in-process under a capability set. Executions are
// serialized: the output stream can only be captured by one run at a time.
type Executor struct {
	runtimes  *runtime.Registry
	limits    Limits
	stream    *capture.Stream
	confirmer Confirmer
	metrics   *monitor.Metrics
	tracer    *monitor.Tracer

	sem    chan struct{} // Single execution slot
	active atomic.Int64
	mu     sync.Mutex // Protects shutdown state
	closed bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithStream sets the output stream snippets print through.
func WithStream(s *capture.Stream) Option {
	return func(e *Executor) { e.stream = s }
}

// WithConfirmer sets the interactive confirmation gate.
func WithConfirmer(c Confirmer) Option {
	return func(e *Executor) { e.confirmer = c }
}

// WithMetrics enables Prometheus recording.
func WithMetrics(m *monitor.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer enables spans around each execution.
func WithTracer(t *monitor.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an executor over all registered runtimes.
func NewExecutor(limits Limits, opts ...Option) (*Executor, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		runtimes: runtime.NewRegistry(),
		limits:   limits,
		stream:   capture.Stdout,
		sem:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Runtimes exposes the executor's runtime registry.
func (e *Executor) Runtimes() *runtime.Registry {
	return e.runtimes
}

// Execute runs a snippet and reports the outcome. Snippet failures of every
// kind are reported in the result; the error is only for the executor
// itself being unavailable (closed, or ctx ended while waiting for the slot).
func (e *Executor) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	return e.execute(ctx, req, nil)
}

// ExecuteStreaming is Execute with output also copied to live as it is
// printed.
func (e *Executor) ExecuteStreaming(ctx context.Context, req ExecutionRequest, live io.Writer) (*ExecutionResult, error) {
	return e.execute(ctx, req, live)
}

func (e *Executor) execute(ctx context.Context, req ExecutionRequest, live io.Writer) (*ExecutionResult, error) {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(req.Source)))
	if req.Language == "" {
		req.Language = "python"
	}

	logger := log.With().
		Str("exec_id", execID).
		Str("language", req.Language).
		Str("code_hash", codeHash[:16]).
		Logger()

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, &ExecutionError{ExecID: execID, Op: "execute", Err: ErrClosed}
	}

	result := &ExecutionResult{
		ID:       execID,
		Language: req.Language,
		CodeHash: codeHash,
	}

	if strings.TrimSpace(req.Source) == "" {
		result.Succeeded = true
		result.Skipped = true
		result.Category = CategoryNone
		result.Output = NoCode
		logger.Debug().Msg("blank source skipped")
		return result, nil
	}

	logger.Info().Msg("execution requested")

	if err := e.validateRequest(req); err != nil {
		return e.reject(result, err, logger), nil
	}

	if req.ConfirmationRequired && !req.Confirmed {
		if e.confirmer == nil || !e.confirmer.Confirm(ctx, req) {
			return e.reject(result, ErrDenied, logger), nil
		}
	}

	rt, err := e.runtimes.Get(req.Language)
	if err != nil {
		err = fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLang, req.Language, strings.Join(e.runtimes.Languages(), ", "))
		return e.reject(result, err, logger), nil
	}
	caps, err := policy.Lookup(req.Capabilities)
	if err != nil {
		return e.reject(result, err, logger), nil
	}

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.StartSpan(ctx, "execute",
			monitor.AttrExecID.String(execID),
			monitor.AttrLanguage.String(req.Language),
			monitor.AttrCapabilities.String(caps.Name),
			monitor.AttrCodeHash.String(codeHash[:16]),
		)
		defer span.End()
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: fmt.Errorf("%w: %w", ErrSlotUnavailable, ctx.Err())}
	}

	e.active.Add(1)
	defer e.active.Add(-1)
	if e.metrics != nil {
		e.metrics.ActiveExecutions.Inc()
		defer e.metrics.ActiveExecutions.Dec()
		e.metrics.CodeSizeBytes.Observe(float64(len(req.Source)))
	}

	start := time.Now()
	output, runErr := e.run(rt, caps, req.Source, live)
	result.Elapsed = time.Since(start)
	result.Output = truncateOutput(output, e.limits.MaxOutputBytes)

	if runErr != nil {
		result.Category, result.Detail = Classify(runErr)
		logger.Info().
			Str("category", string(result.Category)).
			Err(runErr).
			Dur("elapsed", result.Elapsed).
			Msg("execution failed")
	} else {
		result.Succeeded = true
		result.Category = CategoryNone
		if result.Output == "" {
			result.Output = NoOutput
		}
		logger.Info().
			Dur("elapsed", result.Elapsed).
			Int("output_bytes", len(output)).
			Msg("execution completed")
	}

	if result.Elapsed > e.limits.SlowThreshold {
		result.Warning = fmt.Sprintf("execution took %s, over the %s limit", result.Elapsed.Round(time.Millisecond), e.limits.SlowThreshold)
		logger.Warn().Dur("elapsed", result.Elapsed).Msg("slow execution")
		if e.metrics != nil {
			e.metrics.RecordSlow(req.Language)
		}
	}

	if e.metrics != nil {
		e.metrics.RecordExecution(req.Language, string(result.Category), result.Elapsed.Seconds())
		e.metrics.OutputSizeBytes.Observe(float64(len(output)))
	}
	if span != nil {
		span.SetAttributes(
			monitor.AttrCategory.String(string(result.Category)),
			monitor.AttrDurationMS.Int64(result.ElapsedMillis()),
		)
	}

	return result, nil
}

// run holds the output capture for exactly the duration of the runtime
// call. The deferred release also covers a panic escaping the interpreter.
func (e *Executor) run(rt runtime.Runtime, caps *policy.Set, source string, live io.Writer) (output string, err error) {
	var c *capture.Capture
	if live != nil {
		c = e.stream.Acquire(live)
	} else {
		c = e.stream.Acquire()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &runtime.Error{Phase: runtime.PhaseRun, Kind: "InternalError", Msg: fmt.Sprint(r)}
		}
		output = c.Release()
	}()

	err = rt.Run(source, caps, e.stream)
	return output, err
}

// reject finishes a result for a request that never reached a runtime.
func (e *Executor) reject(result *ExecutionResult, err error, logger zerolog.Logger) *ExecutionResult {
	result.Category, result.Detail = Classify(err)
	result.Denied = IsDenied(err)
	logger.Info().Str("category", string(result.Category)).Err(err).Msg("execution rejected")
	if e.metrics != nil {
		e.metrics.RecordExecution(result.Language, string(result.Category), 0)
	}
	return result
}

func (e *Executor) validateRequest(req ExecutionRequest) error {
	if len(req.Source) > e.limits.MaxSourceBytes {
		return fmt.Errorf("%w: source is %d bytes (max %d)", ErrInvalidRequest, len(req.Source), e.limits.MaxSourceBytes)
	}
	return nil
}

// ActiveCount returns the number of executions currently running.
func (e *Executor) ActiveCount() int64 {
	return e.active.Load()
}

// Close stops the executor from accepting new work.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
