package sandbox

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.SlowThreshold != 8*time.Second {
		t.Errorf("SlowThreshold = %s, want 8s", l.SlowThreshold)
	}
	if l.MaxSourceBytes != 1<<20 {
		t.Errorf("MaxSourceBytes = %d, want %d", l.MaxSourceBytes, 1<<20)
	}
	if err := l.Validate(); err != nil {
		t.Errorf("DefaultLimits().Validate() = %v, want nil", err)
	}
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
	}{
		{"zero threshold", Limits{SlowThreshold: 0, MaxSourceBytes: 100, MaxOutputBytes: 100}},
		{"huge threshold", Limits{SlowThreshold: time.Hour, MaxSourceBytes: 100, MaxOutputBytes: 100}},
		{"no source", Limits{SlowThreshold: time.Second, MaxSourceBytes: 0, MaxOutputBytes: 100}},
		{"source over", Limits{SlowThreshold: time.Second, MaxSourceBytes: 17 << 20, MaxOutputBytes: 100}},
		{"no output", Limits{SlowThreshold: time.Second, MaxSourceBytes: 100, MaxOutputBytes: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestTruncateOutput(t *testing.T) {
	if got := truncateOutput("short", 10); got != "short" {
		t.Errorf("truncateOutput(short) = %q", got)
	}
	got := truncateOutput(strings.Repeat("x", 20), 10)
	if !strings.HasPrefix(got, strings.Repeat("x", 10)) || !strings.HasSuffix(got, "[output truncated]") {
		t.Errorf("truncateOutput(long) = %q", got)
	}
}
