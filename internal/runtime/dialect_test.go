package runtime

import (
	"strings"
	"testing"
)

func TestStripAnnotations(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   string
		wantOK bool
	}{
		{"plain", "def f(a, b):", "def f(a, b):", false},
		{"params and return", "def f(a: int, b: str) -> bool:", "def f(a     , b     )        :", true},
		{"default kept", "def f(a: int = 3):", "def f(a      = 3):", true},
		{"nested brackets", "def f(m: dict[str, int]) -> list[int]:", "def f(m                )             :", true},
		{"lambda default", "def f(g=lambda x: x):", "def f(g=lambda x: x):", false},
		{"string default", "def f(sep: str = ': '):", "def f(sep      = ': '):", true},
		{"star args", "def f(*args: int, **kw: str):", "def f(*args     , **kw     ):", true},
		{"indented method", "    def area(self) -> float:", "    def area(self)         :", true},
		{"header continues", "def f(a: int,", "def f(a: int,", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := defHeadRe.FindStringIndex(tt.line)
			if loc == nil {
				t.Fatalf("%q not recognized as a def header", tt.line)
			}
			got, ok := stripAnnotations(tt.line, loc[1])
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("stripAnnotations(%q) = %q, %v; want %q, %v", tt.line, got, ok, tt.want, tt.wantOK)
			}
			if len(got) != len(tt.line) {
				t.Errorf("columns shifted: %d -> %d", len(tt.line), len(got))
			}
		})
	}
}

func TestParse_ImportsOnlyOutsideStrings(t *testing.T) {
	code := strings.Join([]string{
		`import json`,
		`notes = """`,
		`import os`,
		`from sys import argv`,
		`"""`,
		`def f():`,
		`    import math`,
		`    return 1`,
	}, "\n")

	_, src, err := (&PythonRuntime{}).parse(code)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var modules []string
	for _, imp := range src.imports {
		modules = append(modules, imp.module)
	}
	if strings.Join(modules, ",") != "json,math" {
		t.Errorf("imports = %v, want [json math]", modules)
	}
	if !strings.Contains(src.text, "import os\nfrom sys import argv") {
		t.Errorf("string contents were rewritten:\n%s", src.text)
	}
}
