package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"aca-sandbox/internal/runtime"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantCat Category
		wantMsg string
	}{
		{"nil", nil, CategoryNone, ""},
		{"parse", &runtime.Error{Phase: runtime.PhaseParse, Kind: "SyntaxError", Msg: "got '(', want ')'"}, CategorySyntax, "SyntaxError"},
		{"policy", &runtime.Error{Phase: runtime.PhasePolicy, Kind: "PolicyError", Msg: "name \"open\""}, CategoryPolicyViolation, "PolicyError"},
		{"run", &runtime.Error{Phase: runtime.PhaseRun, Kind: "RuntimeError", Msg: "boom"}, CategoryRuntime, "RuntimeError: boom"},
		{"wrapped runtime error", fmt.Errorf("ctx: %w", &runtime.Error{Phase: runtime.PhaseParse, Kind: "SyntaxError", Msg: "x"}), CategorySyntax, "SyntaxError"},
		{"denied", ErrDenied, CategoryPolicyViolation, "execution denied"},
		{"unknown capabilities", fmt.Errorf("%w: %q", ErrUnknownCapabilities, "x"), CategoryPolicyViolation, "unknown capability set"},
		{"anything else", errors.New("interpreter exploded"), CategoryRuntime, "interpreter exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, msg := Classify(tt.err)
			if cat != tt.wantCat {
				t.Errorf("category = %q, want %q", cat, tt.wantCat)
			}
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("message = %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestClassify_KeepsLocation(t *testing.T) {
	err := &runtime.Error{
		Phase:  runtime.PhaseRun,
		Kind:   "RuntimeError",
		Msg:    "floating-point division by zero",
		Pos:    runtime.Position{Line: 3, Col: 6},
		Source: "x = 1/0",
	}
	_, msg := Classify(err)
	if !strings.Contains(msg, `File "<snippet>", line 3`) {
		t.Errorf("message lacks location:\n%s", msg)
	}
	if len(strings.Split(msg, "\n")) < 2 {
		t.Errorf("message should be multi-line:\n%s", msg)
	}
}

func TestExecutionError(t *testing.T) {
	err := &ExecutionError{ExecID: "abc", Op: "acquire_slot", Err: ErrSlotUnavailable}
	if err.Error() != "execution abc: acquire_slot: execution slot unavailable" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !IsSlotUnavailable(err) {
		t.Error("IsSlotUnavailable should see through ExecutionError")
	}
	if IsDenied(err) {
		t.Error("IsDenied should be false")
	}
}
