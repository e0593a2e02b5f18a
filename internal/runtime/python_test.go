package runtime

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"aca-sandbox/internal/policy"
)

func TestPythonRuntime_Run(t *testing.T) {
	tests := []struct {
		name string
		code string
		caps string
		want string
	}{
		{"hello", "print('Hello, world!')", "basic", "Hello, world!\n"},
		{"loop at top level", "for i in range(3):\n    print(i)", "basic", "0\n1\n2\n"},
		{"sum builtin", "print(sum([1, 2, 3]))", "basic", "6\n"},
		{"while and reassignment", "n = 0\nwhile n < 2:\n    n += 1\nprint(n)", "basic", "2\n"},
		{"recursion", "def fact(n):\n    return 1 if n <= 1 else n * fact(n - 1)\nprint(fact(5))", "basic", "120\n"},
		{"extended module", "print(math.sqrt(16))", "extended", "4.0\n"},
		{"no output", "x = 1", "basic", ""},
		{"import line inside a string", "s = '''\nimport os\n'''\nprint(s)\n", "basic", "\nimport os\n\n"},
		{"annotations dropped", "def add(a: int, b: int = 2) -> int:\n    return a + b\nprint(add(1))\n", "basic", "3\n"},
		{"lambda default keeps its colon", "def f(n: int, g=lambda x: x * 2) -> int:\n    return g(n)\nprint(f(3))\n", "basic", "6\n"},
		{"def header inside a string untouched", "doc = '''\ndef f(a: int) -> int:\n'''\nprint(len(doc))\n", "basic", "23\n"},
		{"boolean and none constants", "done = False\nif not done:\n    print(True, None)", "basic", "True None\n"},
	}

	p := &PythonRuntime{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps, err := policy.Lookup(tt.caps)
			if err != nil {
				t.Fatal(err)
			}
			var out bytes.Buffer
			if err := p.Run(tt.code, caps, &out); err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestPythonRuntime_Failures(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantPhase Phase
		wantKind  string
		wantMsg   string
		wantLine  int
	}{
		{"syntax error", "def f(:", PhaseParse, "SyntaxError", "", 1},
		{"division by zero", "x = 1/0", PhaseRun, "RuntimeError", "division by zero", 1},
		{"undefined builtin", "open('x')", PhasePolicy, "PolicyError", `"open"`, 1},
		{"universe name outside set", "print(hasattr(1, 'x'))", PhasePolicy, "PolicyError", `"hasattr"`, 1},
		{"python import", "x = 1\nimport os\nos.system('ls')", PhasePolicy, "PolicyError", `"os"`, 2},
		{"import after a string mentioning one", "s = '''\nimport json\n'''\nimport os", PhasePolicy, "PolicyError", `"os"`, 4},
		{"break outside loop", "break\n", PhaseParse, "SyntaxError", "break not in a loop", 1},
		{"structural error before policy", "import os\nbreak", PhaseParse, "SyntaxError", "break", 2},
		{"from import", "from subprocess import run", PhasePolicy, "PolicyError", `"subprocess"`, 1},
		{"module outside basic", "print(math.pi)", PhasePolicy, "PolicyError", `"math"`, 1},
		{"error inside function", "def f():\n    return [][1]\n\nf()", PhaseRun, "RuntimeError", "out of range", 2},
		{"builtin misuse", "print(len(5))", PhaseRun, "RuntimeError", "len", 1},
	}

	p := &PythonRuntime{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := p.Run(tt.code, basicSet(t), &out)
			var rtErr *Error
			if !errors.As(err, &rtErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if rtErr.Phase != tt.wantPhase {
				t.Errorf("Phase = %s, want %s", rtErr.Phase, tt.wantPhase)
			}
			if rtErr.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", rtErr.Kind, tt.wantKind)
			}
			if !strings.Contains(rtErr.Msg, tt.wantMsg) {
				t.Errorf("Msg = %q, want it to contain %q", rtErr.Msg, tt.wantMsg)
			}
			if rtErr.Pos.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", rtErr.Pos.Line, tt.wantLine)
			}
		})
	}
}

func TestPythonRuntime_PolicyBeforeExecution(t *testing.T) {
	p := &PythonRuntime{}
	var out bytes.Buffer
	err := p.Run("print('side effect')\nopen('x')", basicSet(t), &out)
	if err == nil {
		t.Fatal("expected policy error")
	}
	if out.Len() != 0 {
		t.Errorf("nothing should run before the policy check, got %q", out.String())
	}
}

func TestPythonRuntime_Parse(t *testing.T) {
	code := `import json

def greet(name):
    """Say hello."""
    if name:
        print("hi " + name)
    elif name == "":
        print("hi")

def add(a, b):
    return a + b

for i in range(3):
    while False:
        pass
x = add(1, 2)
`
	o, err := (&PythonRuntime{}).Parse(code)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(o.Functions) != 2 {
		t.Fatalf("Functions = %d, want 2", len(o.Functions))
	}
	if o.Functions[0].Name != "greet" || !o.Functions[0].Documented {
		t.Errorf("greet = %+v, want documented", o.Functions[0])
	}
	if o.Functions[1].Documented || o.Functions[1].Line != 10 {
		t.Errorf("add = %+v, want undocumented at line 10", o.Functions[1])
	}
	if o.Loops != 2 {
		t.Errorf("Loops = %d, want 2", o.Loops)
	}
	if o.Branches != 2 {
		t.Errorf("Branches = %d, want 2", o.Branches)
	}
	if o.Imports != 1 {
		t.Errorf("Imports = %d, want 1", o.Imports)
	}
	if strings.Join(o.ShortNames, ",") != "a,b,x" {
		t.Errorf("ShortNames = %v, want [a b x]", o.ShortNames)
	}
}

func TestPythonRuntime_ParseFailure(t *testing.T) {
	_, err := (&PythonRuntime{}).Parse("def f(:")
	var rtErr *Error
	if !errors.As(err, &rtErr) || rtErr.Phase != PhaseParse {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestErrorDiagnostic(t *testing.T) {
	e := &Error{
		Phase:  PhaseRun,
		Kind:   "RuntimeError",
		Msg:    "floating-point division by zero",
		Pos:    Position{Line: 1, Col: 6},
		Source: "x = 1/0",
	}
	want := "  File \"<snippet>\", line 1\n" +
		"    x = 1/0\n" +
		"         ^\n" +
		"RuntimeError: floating-point division by zero"
	if got := e.Diagnostic(); got != want {
		t.Errorf("Diagnostic() =\n%s\nwant\n%s", got, want)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if got := strings.Join(r.Languages(), ","); got != "go,python" {
		t.Errorf("Languages() = %q, want %q", got, "go,python")
	}
	if _, err := r.Get("cobol"); err == nil {
		t.Error("expected error for unsupported language")
	}
	rt, ok := r.ForFile("lesson.py")
	if !ok || rt.Name() != "python" {
		t.Errorf("ForFile(lesson.py) = %v, %v", rt, ok)
	}
	if _, ok := r.ForFile("notes.txt"); ok {
		t.Error("ForFile(notes.txt) should not match")
	}
}
