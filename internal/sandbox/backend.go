package sandbox

import (
	"context"
	"io"

	"aca-sandbox/internal/config"
)

// Backend is the execution surface the tool service depends on.
type Backend interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
	ExecuteStreaming(ctx context.Context, req ExecutionRequest, live io.Writer) (*ExecutionResult, error)
	Close() error
}

// LimitsFromConfig converts the sandbox section of the config.
func LimitsFromConfig(cfg config.SandboxConfig) Limits {
	return Limits{
		SlowThreshold:  cfg.SlowThreshold,
		MaxSourceBytes: cfg.MaxSourceBytes,
		MaxOutputBytes: cfg.MaxOutputBytes,
	}
}

// NewBackend builds the in-process executor from configuration.
func NewBackend(cfg *config.Config, opts ...Option) (Backend, error) {
	e, err := NewExecutor(LimitsFromConfig(cfg.Sandbox), opts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}
