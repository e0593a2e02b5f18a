package api

import (
	"time"

	"aca-sandbox/internal/analysis"
	"aca-sandbox/internal/lint"
)

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Code         string `json:"code"`
	Language     string `json:"language,omitempty"`     // python (default) or go
	Capabilities string `json:"capabilities,omitempty"` // capability set name, default basic
	Confirmed    bool   `json:"confirmed,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// ExecuteResponse reports a run. Output holds the captured text on success
// and partial output plus the diagnostic on failure.
type ExecuteResponse struct {
	ID        string   `json:"id,omitempty"`
	Success   bool     `json:"success"`
	Output    string   `json:"output"`
	Category  string   `json:"category,omitempty"`
	ElapsedMS int64    `json:"elapsed_ms"`
	Elapsed   Duration `json:"elapsed"`
	Warning   string   `json:"warning,omitempty"`
}

// CodeRequest is the body of the static tools.
type CodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

// ReadRequest is the body of POST /read.
type ReadRequest struct {
	Path  string `json:"path"`
	Lines int    `json:"lines,omitempty"`
}

// TextResponse carries the learner-facing text of a tool.
type TextResponse struct {
	Output string `json:"output"`
}

type LintResponse struct {
	Output   string         `json:"output"`
	Findings []lint.Finding `json:"findings"`
}

type AnalyzeResponse struct {
	Output string           `json:"output"`
	Report *analysis.Report `json:"report,omitempty"`
}

type SuggestResponse struct {
	Output      string   `json:"output"`
	Suggestions []string `json:"suggestions"`
}

// LessonSummary lists a lesson without its source.
type LessonSummary struct {
	Name     string `json:"name"`
	Track    string `json:"track"`
	Language string `json:"language"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string   `json:"status"`
	Database  bool     `json:"database"`
	Languages []string `json:"languages"`
	Uptime    string   `json:"uptime"`
}
