package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"aca-sandbox/internal/capture"
	"aca-sandbox/internal/monitor"
)

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, *bytes.Buffer) {
	t.Helper()
	var real bytes.Buffer
	opts = append([]Option{WithStream(capture.NewStream(&real))}, opts...)
	e, err := NewExecutor(DefaultLimits(), opts...)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e, &real
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name       string
		req        ExecutionRequest
		wantOK     bool
		wantCat    Category
		wantOutput string
		wantDetail string
	}{
		{
			name:       "hello world",
			req:        ExecutionRequest{Source: "print('Hello, world!')"},
			wantOK:     true,
			wantCat:    CategoryNone,
			wantOutput: "Hello, world!\n",
		},
		{
			name:       "no output",
			req:        ExecutionRequest{Source: "x = 2 + 2"},
			wantOK:     true,
			wantCat:    CategoryNone,
			wantOutput: NoOutput,
		},
		{
			name:       "runtime error",
			req:        ExecutionRequest{Source: "x = 1/0"},
			wantCat:    CategoryRuntime,
			wantDetail: "division by zero",
		},
		{
			name:       "syntax error",
			req:        ExecutionRequest{Source: "def f(:"},
			wantCat:    CategorySyntax,
			wantDetail: "line 1",
		},
		{
			name:       "forbidden builtin",
			req:        ExecutionRequest{Source: "open('x')"},
			wantCat:    CategoryPolicyViolation,
			wantDetail: `"open"`,
		},
		{
			name:       "unknown capability set",
			req:        ExecutionRequest{Source: "print(1)", Capabilities: "root"},
			wantCat:    CategoryPolicyViolation,
			wantDetail: "unknown capability set",
		},
		{
			name:       "unsupported language",
			req:        ExecutionRequest{Source: "echo hi", Language: "bash"},
			wantCat:    CategoryPolicyViolation,
			wantDetail: "unsupported language",
		},
		{
			name:       "go snippet",
			req:        ExecutionRequest{Source: "import \"fmt\"\n\nfunc main() { fmt.Print(\"go\") }", Language: "go"},
			wantOK:     true,
			wantCat:    CategoryNone,
			wantOutput: "go",
		},
		{
			name:       "go forbidden import",
			req:        ExecutionRequest{Source: "import \"os\"\n\nfunc main() { os.Exit(0) }", Language: "go"},
			wantCat:    CategoryPolicyViolation,
			wantDetail: `import "os"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestExecutor(t)
			res, err := e.Execute(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if res.Succeeded != tt.wantOK {
				t.Errorf("Succeeded = %v, want %v (detail: %s)", res.Succeeded, tt.wantOK, res.Detail)
			}
			if res.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", res.Category, tt.wantCat)
			}
			if (res.Category == CategoryNone) != res.Succeeded {
				t.Errorf("Category %q inconsistent with Succeeded=%v", res.Category, res.Succeeded)
			}
			if tt.wantOutput != "" && res.Output != tt.wantOutput {
				t.Errorf("Output = %q, want %q", res.Output, tt.wantOutput)
			}
			if tt.wantDetail != "" && !strings.Contains(res.Detail, tt.wantDetail) {
				t.Errorf("Detail = %q, want it to contain %q", res.Detail, tt.wantDetail)
			}
			if res.ID == "" || len(res.CodeHash) != 64 {
				t.Errorf("missing ID or CodeHash: %+v", res)
			}
		})
	}
}

func TestExecute_BlankSource(t *testing.T) {
	e, _ := newTestExecutor(t)
	for _, src := range []string{"", "   ", "\n\t\n"} {
		res, err := e.Execute(context.Background(), ExecutionRequest{Source: src, Capabilities: "no-such-set"})
		if err != nil {
			t.Fatalf("Execute(%q) error: %v", src, err)
		}
		if !res.Succeeded || !res.Skipped || res.Output != NoCode {
			t.Errorf("Execute(%q) = %+v, want skipped success", src, res)
		}
	}
}

func TestExecute_Confirmation(t *testing.T) {
	req := ExecutionRequest{Source: "print('hi')", ConfirmationRequired: true}

	t.Run("no confirmer denies", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		res, err := e.Execute(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if res.Succeeded || res.Category != CategoryPolicyViolation || res.Detail != "execution denied" || !res.Denied {
			t.Errorf("got %+v, want denied policy violation", res)
		}
		if res.Output != "" {
			t.Errorf("denied request produced output %q", res.Output)
		}
	})

	t.Run("declined", func(t *testing.T) {
		asked := 0
		e, _ := newTestExecutor(t, WithConfirmer(ConfirmFunc(func(context.Context, ExecutionRequest) bool {
			asked++
			return false
		})))
		res, _ := e.Execute(context.Background(), req)
		if asked != 1 || res.Category != CategoryPolicyViolation {
			t.Errorf("asked=%d category=%q, want 1 and policy_violation", asked, res.Category)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		e, _ := newTestExecutor(t, WithConfirmer(ConfirmFunc(func(context.Context, ExecutionRequest) bool {
			return true
		})))
		res, _ := e.Execute(context.Background(), req)
		if !res.Succeeded || res.Output != "hi\n" {
			t.Errorf("got %+v, want success", res)
		}
	})

	t.Run("already confirmed", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		confirmed := req
		confirmed.Confirmed = true
		res, _ := e.Execute(context.Background(), confirmed)
		if !res.Succeeded {
			t.Errorf("got %+v, want success", res)
		}
	})
}

func TestExecute_CaptureNeverLeaks(t *testing.T) {
	e, real := newTestExecutor(t)

	for _, src := range []string{"print('a')", "print('b')\nx = 1/0", "def f(:"} {
		if _, err := e.Execute(context.Background(), ExecutionRequest{Source: src}); err != nil {
			t.Fatal(err)
		}
	}
	if real.Len() != 0 {
		t.Fatalf("captured text leaked to the real stream: %q", real.String())
	}

	fmt.Fprint(e.stream, "after")
	if real.String() != "after" {
		t.Errorf("stream not restored, real target got %q", real.String())
	}
}

func TestExecute_PartialOutputOnFailure(t *testing.T) {
	e, _ := newTestExecutor(t)
	res, err := e.Execute(context.Background(), ExecutionRequest{Source: "print('before')\nx = 1/0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "before\n" {
		t.Errorf("Output = %q, want partial output", res.Output)
	}
	text := res.Text()
	if !strings.HasPrefix(text, "before\n") || !strings.Contains(text, "line 2") {
		t.Errorf("Text() = %q", text)
	}
}

func TestExecute_SlowWarning(t *testing.T) {
	limits := DefaultLimits()
	limits.SlowThreshold = time.Nanosecond
	e, err := NewExecutor(limits, WithStream(capture.NewStream(&bytes.Buffer{})))
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Execute(context.Background(), ExecutionRequest{Source: "total = 0\nfor i in range(1000):\n    total += i\nprint(total)"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Succeeded {
		t.Fatalf("slow run should still succeed: %+v", res)
	}
	if res.Warning == "" {
		t.Error("expected advisory warning")
	}
	if res.Output != "499500\n" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestExecute_SourceTooLarge(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxSourceBytes = 10
	e, err := NewExecutor(limits, WithStream(capture.NewStream(&bytes.Buffer{})))
	if err != nil {
		t.Fatal(err)
	}
	res, _ := e.Execute(context.Background(), ExecutionRequest{Source: "print('this is too long')"})
	if res.Category != CategoryPolicyViolation || !strings.Contains(res.Detail, "max 10") {
		t.Errorf("got %+v, want size policy violation", res)
	}
}

func TestExecute_OutputTruncated(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOutputBytes = 8
	e, err := NewExecutor(limits, WithStream(capture.NewStream(&bytes.Buffer{})))
	if err != nil {
		t.Fatal(err)
	}
	res, _ := e.Execute(context.Background(), ExecutionRequest{Source: "print('x' * 100)"})
	if !strings.HasSuffix(res.Output, "[output truncated]") {
		t.Errorf("Output = %q, want truncation marker", res.Output)
	}
}

func TestExecute_Streaming(t *testing.T) {
	e, _ := newTestExecutor(t)
	var live bytes.Buffer
	res, err := e.ExecuteStreaming(context.Background(), ExecutionRequest{Source: "print(1)\nprint(2)"}, &live)
	if err != nil {
		t.Fatal(err)
	}
	if live.String() != "1\n2\n" || res.Output != "1\n2\n" {
		t.Errorf("live=%q output=%q", live.String(), res.Output)
	}
}

func TestExecute_Serialized(t *testing.T) {
	e, real := newTestExecutor(t, WithMetrics(monitor.NewMetrics()))

	var wg sync.WaitGroup
	results := make([]*ExecutionResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := fmt.Sprintf("for j in range(50):\n    print(%d)", i)
			res, err := e.Execute(context.Background(), ExecutionRequest{Source: src})
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res == nil {
			continue
		}
		want := strings.Repeat(fmt.Sprintf("%d\n", i), 50)
		if res.Output != want {
			t.Errorf("run %d output mixed with another run", i)
		}
	}
	if real.Len() != 0 {
		t.Errorf("output leaked: %q", real.String())
	}
	if e.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after all runs", e.ActiveCount())
	}
}

func TestExecute_SlotUnavailable(t *testing.T) {
	e, _ := newTestExecutor(t)
	e.sem <- struct{}{} // hold the slot
	defer func() { <-e.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, ExecutionRequest{Source: "print(1)"})
	if !IsSlotUnavailable(err) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Op != "acquire_slot" {
		t.Errorf("expected acquire_slot ExecutionError, got %v", err)
	}
}

func TestExecute_Closed(t *testing.T) {
	e, _ := newTestExecutor(t)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(context.Background(), ExecutionRequest{Source: "print(1)"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
