// Package toolkit is the single entry point every front end (HTTP, CLI,
// MCP) goes through. Each tool returns learner-facing text, never an error
// for a problem with the learner's input, and records the audit manifest.
package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"aca-sandbox/internal/analysis"
	"aca-sandbox/internal/audit"
	"aca-sandbox/internal/config"
	"aca-sandbox/internal/lint"
	"aca-sandbox/internal/monitor"
	"aca-sandbox/internal/policy"
	"aca-sandbox/internal/runtime"
	"aca-sandbox/internal/sandbox"
	"aca-sandbox/internal/suggest"
)

// Settings are the defaults applied to incoming requests.
type Settings struct {
	Dir                 string
	ReadLines           int
	Language            string
	Capabilities        string
	RequireConfirmation bool
}

// SettingsFromConfig takes the defaults from the sandbox config section.
func SettingsFromConfig(cfg config.SandboxConfig) Settings {
	return Settings{
		Dir:                 cfg.Dir,
		ReadLines:           cfg.ReadLines,
		Language:            cfg.DefaultLanguage,
		Capabilities:        cfg.DefaultCapabilities,
		RequireConfirmation: cfg.RequireConfirmation,
	}
}

// Service wires the executor, the static tools and the audit recorder.
type Service struct {
	backend  sandbox.Backend
	recorder audit.Recorder
	runtimes *runtime.Registry
	linter   *lint.Linter
	settings Settings
	metrics  *monitor.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics enables per-tool counters.
func WithMetrics(m *monitor.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service. recorder may be nil, in which case nothing is
// recorded.
func New(backend sandbox.Backend, recorder audit.Recorder, settings Settings, opts ...Option) *Service {
	if settings.Language == "" {
		settings.Language = "python"
	}
	if settings.Capabilities == "" {
		settings.Capabilities = policy.Default
	}
	if settings.ReadLines < 1 {
		settings.ReadLines = DefaultReadLines
	}
	s := &Service{
		backend:  backend,
		recorder: recorder,
		runtimes: runtime.NewRegistry(),
		linter:   lint.New(),
		settings: settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Languages lists the languages snippets may be written in.
func (s *Service) Languages() []string {
	return s.runtimes.Languages()
}

// Settings returns the service defaults.
func (s *Service) Settings() Settings {
	return s.settings
}

// Run executes a snippet. The error is reserved for the executor itself
// being unavailable; everything the snippet does wrong is in the result.
func (s *Service) Run(ctx context.Context, req sandbox.ExecutionRequest) (*sandbox.ExecutionResult, error) {
	return s.RunStreaming(ctx, req, nil)
}

// RunStreaming is Run with output copied to live while the snippet prints.
func (s *Service) RunStreaming(ctx context.Context, req sandbox.ExecutionRequest, live io.Writer) (*sandbox.ExecutionResult, error) {
	req = s.withDefaults(req)

	var (
		res *sandbox.ExecutionResult
		err error
	)
	if live != nil {
		res, err = s.backend.ExecuteStreaming(ctx, req, live)
	} else {
		res, err = s.backend.Execute(ctx, req)
	}
	if err != nil {
		s.record(ctx, audit.ModeExecute, req.Source, audit.StatusFailed)
		return nil, err
	}

	s.record(ctx, audit.ModeExecute, req.Source, runStatus(res))
	return res, nil
}

func (s *Service) withDefaults(req sandbox.ExecutionRequest) sandbox.ExecutionRequest {
	if req.Language == "" {
		req.Language = s.settings.Language
	}
	if req.Capabilities == "" {
		req.Capabilities = s.settings.Capabilities
	}
	if s.settings.RequireConfirmation {
		req.ConfirmationRequired = true
	}
	return req
}

func runStatus(res *sandbox.ExecutionResult) audit.Status {
	switch {
	case res.Skipped:
		return audit.StatusSkipped
	case res.Denied:
		return audit.StatusDenied
	case res.Succeeded:
		return audit.StatusOK
	default:
		return audit.StatusFailed
	}
}

// Explain describes code without running it.
func (s *Service) Explain(ctx context.Context, language, code string) string {
	language = s.language(language)
	out := analysis.Explain(language, code)
	s.record(ctx, audit.ModeExplain, code, audit.StatusOK)
	return out
}

// Lint returns the findings and their text rendering. Findings are not a
// failure of the tool.
func (s *Service) Lint(ctx context.Context, language, code string) ([]lint.Finding, string) {
	language = s.language(language)
	if _, err := s.runtimes.Get(language); err != nil {
		s.record(ctx, audit.ModeLint, code, audit.StatusFailed)
		return nil, errorText(err)
	}

	findings := s.linter.Lint(language, code)
	if s.metrics != nil {
		for _, f := range findings {
			s.metrics.RecordLintFinding(f.Rule)
		}
	}
	s.record(ctx, audit.ModeLint, code, audit.StatusOK)
	return findings, lint.Format(findings)
}

// Analyze returns the structural report, or nil and the parse failure.
func (s *Service) Analyze(ctx context.Context, language, code string) (*analysis.Report, string) {
	rt, err := s.runtimes.Get(s.language(language))
	if err != nil {
		s.record(ctx, audit.ModeAnalyze, code, audit.StatusFailed)
		return nil, errorText(err)
	}

	report, err := analysis.Analyze(rt, code)
	if err != nil {
		s.record(ctx, audit.ModeAnalyze, code, audit.StatusFailed)
		return nil, "Parse failed: " + err.Error()
	}
	s.record(ctx, audit.ModeAnalyze, code, audit.StatusOK)
	return report, report.String()
}

// Suggest returns style suggestions and their bulleted rendering.
func (s *Service) Suggest(ctx context.Context, language, code string) ([]string, string) {
	rt, err := s.runtimes.Get(s.language(language))
	if err != nil {
		s.record(ctx, audit.ModeSuggest, code, audit.StatusFailed)
		return nil, errorText(err)
	}

	suggestions := suggest.Suggest(rt, code)
	s.record(ctx, audit.ModeSuggest, code, audit.StatusOK)
	return suggestions, suggest.Format(suggestions)
}

// LastRun returns the manifest entry of the most recent tool invocation.
func (s *Service) LastRun(ctx context.Context) (audit.Entry, error) {
	if s.recorder == nil {
		return audit.Entry{}, audit.ErrNoEntry
	}
	return s.recorder.Last(ctx)
}

func (s *Service) language(language string) string {
	if language == "" {
		return s.settings.Language
	}
	return language
}

// record writes the manifest. A failing recorder is logged and otherwise
// ignored: the tool result has already been produced.
func (s *Service) record(ctx context.Context, mode audit.Mode, input string, status audit.Status) {
	if s.metrics != nil {
		s.metrics.RecordTool(string(mode), string(status))
	}
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, audit.NewEntry(mode, input, status)); err != nil {
		log.Warn().Err(err).Str("mode", string(mode)).Msg("manifest write failed")
		if s.metrics != nil {
			s.metrics.RecordManifestError(string(mode))
		}
	}
}

func errorText(err error) string {
	var rtErr *runtime.Error
	if errors.As(err, &rtErr) {
		return rtErr.Diagnostic()
	}
	return fmt.Sprintf("Error: %v", err)
}
