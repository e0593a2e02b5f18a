package sandbox

import (
	"fmt"
	"time"
)

// Limits bounds a single execution. None of them interrupts a running
// snippet: SlowThreshold only produces a warning.
type Limits struct {
	SlowThreshold  time.Duration `json:"slow_threshold"`
	MaxSourceBytes int           `json:"max_source_bytes"`
	MaxOutputBytes int           `json:"max_output_bytes"`
}

func DefaultLimits() Limits {
	return Limits{
		SlowThreshold:  8 * time.Second,
		MaxSourceBytes: 1 << 20, // 1MB
		MaxOutputBytes: 1 << 20, // 1MB
	}
}

func (l Limits) Validate() error {
	if l.SlowThreshold <= 0 || l.SlowThreshold > 10*time.Minute {
		return fmt.Errorf("%w: slow_threshold must be in (0, 10m], got %s", ErrInvalidRequest, l.SlowThreshold)
	}
	if l.MaxSourceBytes < 1 || l.MaxSourceBytes > 16<<20 {
		return fmt.Errorf("%w: max_source_bytes must be 1-16MB, got %d", ErrInvalidRequest, l.MaxSourceBytes)
	}
	if l.MaxOutputBytes < 1 || l.MaxOutputBytes > 16<<20 {
		return fmt.Errorf("%w: max_output_bytes must be 1-16MB, got %d", ErrInvalidRequest, l.MaxOutputBytes)
	}
	return nil
}

func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n... [output truncated]"
}
