package runtime

import (
	"fmt"
	"strings"
)

// Phase is the stage at which a snippet failed.
type Phase int

const (
	// PhaseParse means the source never parsed or compiled.
	PhaseParse Phase = iota
	// PhasePolicy means the source referred to something outside its
	// capability set.
	PhasePolicy
	// PhaseRun means the snippet started and failed while running.
	PhaseRun
)

func (p Phase) String() string {
	switch p {
	case PhaseParse:
		return "parse"
	case PhasePolicy:
		return "policy"
	case PhaseRun:
		return "run"
	default:
		return "unknown"
	}
}

// Position is a 1-based location in a snippet. Zero means unknown.
type Position struct {
	Line int
	Col  int
}

// Error is the single failure type runtimes return.
type Error struct {
	Phase Phase
	Kind  string // e.g. "SyntaxError", "PolicyError", "RuntimeError"
	Msg   string
	Pos   Position
	// Source is the text of the offending line, if known.
	Source string
	// Trace is the interpreter's own call stack, if it produced one.
	Trace string
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", e.Kind, e.Msg, e.Pos.Line)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Diagnostic renders the multi-line, traceback-style message shown to
// learners:
//
//	  File "<snippet>", line 1
//	    x = 1/0
//	         ^
//	RuntimeError: floating-point division by zero
func (e *Error) Diagnostic() string {
	var b strings.Builder
	if e.Trace != "" {
		b.WriteString(strings.TrimRight(e.Trace, "\n"))
		b.WriteString("\n")
	}
	if e.Pos.Line > 0 {
		fmt.Fprintf(&b, "  File %q, line %d\n", snippetName, e.Pos.Line)
		if src := strings.TrimRight(e.Source, " \t\r"); src != "" {
			trimmed := strings.TrimLeft(src, " \t")
			fmt.Fprintf(&b, "    %s\n", trimmed)
			if col := e.Pos.Col - (len(src) - len(trimmed)); e.Pos.Col > 0 && col > 0 && col <= len(trimmed)+1 {
				fmt.Fprintf(&b, "    %s^\n", strings.Repeat(" ", col-1))
			}
		}
	}
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Msg)
	return b.String()
}

const snippetName = "<snippet>"

// sourceLine returns the 1-based line n of code, or "".
func sourceLine(code string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(code, "\n")
	if n > len(lines) {
		return ""
	}
	return lines[n-1]
}

func newError(code string, phase Phase, kind, msg string, pos Position) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Msg:    msg,
		Pos:    pos,
		Source: sourceLine(code, pos.Line),
	}
}
