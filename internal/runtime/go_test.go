package runtime

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"aca-sandbox/internal/policy"
)

func basicSet(t *testing.T) *policy.Set {
	t.Helper()
	s, err := policy.Lookup("basic")
	if err != nil {
		t.Fatalf("lookup basic: %v", err)
	}
	return s
}

func TestGoRuntime_Name(t *testing.T) {
	g := &GoRuntime{}
	if g.Name() != "go" {
		t.Errorf("Name() = %q, want %q", g.Name(), "go")
	}
	if g.FileExtension() != ".go" {
		t.Errorf("FileExtension() = %q, want %q", g.FileExtension(), ".go")
	}
}

func TestGoRuntime_Run(t *testing.T) {
	g := &GoRuntime{}
	var out bytes.Buffer
	code := `package main

import "fmt"

func main() {
	fmt.Println("hi from go")
}
`
	if err := g.Run(code, basicSet(t), &out); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.String() != "hi from go\n" {
		t.Errorf("output = %q, want %q", out.String(), "hi from go\n")
	}
}

func TestGoRuntime_Failures(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantPhase Phase
		wantMsg   string
		wantLine  int
	}{
		{
			name:      "syntax error",
			code:      "package main\n\nfunc main() {\n\tx :=\n}\n",
			wantPhase: PhaseParse,
			wantLine:  5,
		},
		{
			name:      "forbidden import",
			code:      "package main\n\nimport \"os\"\n\nfunc main() { os.Exit(1) }\n",
			wantPhase: PhasePolicy,
			wantMsg:   `import "os"`,
			wantLine:  3,
		},
		{
			name:      "forbidden import without package clause",
			code:      "import \"net/http\"\n\nfunc main() {}\n",
			wantPhase: PhasePolicy,
			wantMsg:   `import "net/http"`,
			wantLine:  1,
		},
		{
			name:      "panic",
			code:      "package main\n\nfunc main() {\n\tpanic(\"boom\")\n}\n",
			wantPhase: PhaseRun,
			wantMsg:   "boom",
		},
	}

	g := &GoRuntime{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := g.Run(tt.code, basicSet(t), &out)
			var rtErr *Error
			if !errors.As(err, &rtErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if rtErr.Phase != tt.wantPhase {
				t.Errorf("Phase = %s, want %s", rtErr.Phase, tt.wantPhase)
			}
			if tt.wantMsg != "" && !strings.Contains(rtErr.Msg, tt.wantMsg) {
				t.Errorf("Msg = %q, want it to contain %q", rtErr.Msg, tt.wantMsg)
			}
			if tt.wantLine != 0 && rtErr.Pos.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", rtErr.Pos.Line, tt.wantLine)
			}
		})
	}
}

func TestGoRuntime_Parse(t *testing.T) {
	code := `package main

import "fmt"

// Sum adds the values.
func Sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func main() {
	n := Sum([]int{1, 2})
	if n > 2 {
		fmt.Println(n)
	}
	switch {
	case n < 0:
	}
}
`
	o, err := (&GoRuntime{}).Parse(code)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(o.Functions) != 2 {
		t.Fatalf("Functions = %d, want 2", len(o.Functions))
	}
	if !o.Functions[0].Documented || o.Functions[1].Documented {
		t.Errorf("Documented = %v/%v, want true/false", o.Functions[0].Documented, o.Functions[1].Documented)
	}
	if o.Functions[0].Line != 6 {
		t.Errorf("Sum line = %d, want 6", o.Functions[0].Line)
	}
	if o.Loops != 1 || o.Branches != 2 || o.Imports != 1 {
		t.Errorf("Loops=%d Branches=%d Imports=%d, want 1/2/1", o.Loops, o.Branches, o.Imports)
	}
	if strings.Join(o.ShortNames, ",") != "n" {
		t.Errorf("ShortNames = %v, want [n]", o.ShortNames)
	}
}
