package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aca-sandbox/internal/audit"
	"aca-sandbox/internal/capture"
	"aca-sandbox/internal/config"
	"aca-sandbox/internal/lesson"
	"aca-sandbox/internal/monitor"
	"aca-sandbox/internal/sandbox"
	"aca-sandbox/internal/toolkit"
)

// newTestServer wires the real executor behind the full middleware chain.
func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sandbox.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	exec, err := sandbox.NewExecutor(sandbox.LimitsFromConfig(cfg.Sandbox), sandbox.WithStream(capture.NewStream(io.Discard)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { exec.Close() })

	lessons, err := lesson.Builtin()
	if err != nil {
		t.Fatal(err)
	}
	metrics := monitor.NewMetrics()
	svc := toolkit.New(exec, audit.NewFileRecorder(cfg.Sandbox.Dir), toolkit.SettingsFromConfig(cfg.Sandbox), toolkit.WithMetrics(metrics))
	return NewServer(cfg, svc, lessons, nil, metrics).Handler()
}

func TestServer_EndToEnd(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"execute", http.MethodPost, "/execute", `{"code":"print(6*7)"}`, http.StatusOK, `"output":"42\n"`},
		{"execute policy violation", http.MethodPost, "/execute", `{"code":"open('x')"}`, http.StatusOK, `"category":"policy_violation"`},
		{"execute go", http.MethodPost, "/execute", `{"code":"package main\nimport \"fmt\"\nfunc main() { fmt.Print(1) }","language":"go"}`, http.StatusOK, `"success":true`},
		{"manifest", http.MethodGet, "/manifest", "", http.StatusOK, `"mode":"execute"`},
		{"lint", http.MethodPost, "/lint", `{"code":"x = 1"}`, http.StatusOK, `"output":"No issues found! Code looks clean."`},
		{"health", http.MethodGet, "/health", "", http.StatusOK, `"languages":["go","python"]`},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK, "sandbox_executions_total"},
		{"wrong method", http.MethodGet, "/execute", "", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body lacks %q:\n%s", tt.wantBody, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestServer_AuthSkipsHealth(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Security.AllowedKeys = []string{"secret"}
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health: got status %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lint", strings.NewReader(`{"code":"x"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("lint without key: got status %d, want 401", rec.Code)
	}
}

func TestServer_Confirmation(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Sandbox.RequireConfirmation = true
	})

	for _, tt := range []struct {
		body        string
		wantSuccess bool
	}{
		{`{"code":"print(1)"}`, false},
		{`{"code":"print(1)","confirmed":true}`, true},
	} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(tt.body)))
		var got ExecuteResponse
		json.NewDecoder(rec.Body).Decode(&got)
		if got.Success != tt.wantSuccess {
			t.Errorf("%s: success = %v, want %v (%s)", tt.body, got.Success, tt.wantSuccess, got.Output)
		}
	}
}

func TestServer_RateLimitOnlyGuardsExecution(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Security.RateLimitRPS = 0.001
		c.Security.RateLimitBurst = 1
	})

	send := func(path, body string) int {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return rec.Code
	}

	if got := send("/execute", `{"code":"print(1)"}`); got != http.StatusOK {
		t.Fatalf("first execute: got status %d, want 200", got)
	}
	if got := send("/execute", `{"code":"print(2)"}`); got != http.StatusTooManyRequests {
		t.Errorf("second execute: got status %d, want 429", got)
	}
	if got := send("/execute/stream", `{"code":"print(3)"}`); got != http.StatusTooManyRequests {
		t.Errorf("stream shares the execute budget: got status %d, want 429", got)
	}
	for i := 0; i < 3; i++ {
		if got := send("/lint", `{"code":"x = 1"}`); got != http.StatusOK {
			t.Errorf("lint %d: got status %d, want 200", i, got)
		}
	}
}

func TestServer_RequestMetricsByTool(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/lint", "/lint", "/analyze"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"code":"x = 1"}`)))
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`sandbox_api_requests_total{code="200",tool="lint"} 2`,
		`sandbox_api_requests_total{code="200",tool="analyze"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics lack %q", want)
		}
	}
}
