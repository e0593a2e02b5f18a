// Package analysis produces structural reports on snippets without running
// them. Analyze goes through the same parser the executor uses, so a
// snippet the executor rejects as a syntax error never gets counts here.
package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"aca-sandbox/internal/runtime"
)

// Report holds the structural counts of a parseable snippet.
type Report struct {
	Lines     int `json:"lines"`
	Functions int `json:"functions"`
	Loops     int `json:"loops"`
	Branches  int `json:"branches"`
	Imports   int `json:"imports"`
}

func (r *Report) String() string {
	return fmt.Sprintf("Lines: %d, Functions: %d, Loops: %d, If statements: %d",
		r.Lines, r.Functions, r.Loops, r.Branches)
}

// Analyze parses code with rt and counts its constructs. A parse failure is
// returned as the runtime's *runtime.Error.
func Analyze(rt runtime.Runtime, code string) (*Report, error) {
	o, err := rt.Parse(code)
	if err != nil {
		return nil, err
	}
	return &Report{
		Lines:     LineCount(code),
		Functions: len(o.Functions),
		Loops:     o.Loops,
		Branches:  o.Branches,
		Imports:   o.Imports,
	}, nil
}

// LineCount counts lines the way an editor shows them: a trailing newline
// does not start a new line.
func LineCount(code string) int {
	if code == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(code, "\n"), "\n") + 1
}

// patterns are the text-level cues Explain looks for. They work on any
// input, including source that does not parse.
type patterns struct {
	function *regexp.Regexp
	class    *regexp.Regexp
	imports  *regexp.Regexp
}

var explainPatterns = map[string]patterns{
	"python": {
		function: regexp.MustCompile(`(?m)^\s*def\s+(\w+)`),
		class:    regexp.MustCompile(`(?m)^\s*class\s+(\w+)`),
		imports:  regexp.MustCompile(`(?m)^\s*(?:import\s|from\s+\S+\s+import\s|load\()`),
	},
	"go": {
		function: regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?(\w+)`),
		class:    regexp.MustCompile(`(?m)^type\s+(\w+)\s+(?:struct|interface)\b`),
		imports:  regexp.MustCompile(`(?m)^import\b`),
	},
}

// previewLines is how many leading lines Explain quotes.
const previewLines = 5

// Explain summarizes code for a learner: its size, the names it defines,
// whether it imports anything, and its first few lines.
func Explain(language, code string) string {
	p, ok := explainPatterns[language]
	if !ok {
		p = explainPatterns["python"]
	}

	trimmed := strings.TrimSpace(code)
	lines := strings.Split(trimmed, "\n")
	if trimmed == "" {
		lines = nil
	}

	out := []string{fmt.Sprintf("Code Analysis: %d line(s)", len(lines))}
	if names := submatches(p.function, code); len(names) > 0 {
		out = append(out, "  Functions: "+strings.Join(names, ", "))
	}
	if names := submatches(p.class, code); len(names) > 0 {
		label := "Classes"
		if language == "go" {
			label = "Types"
		}
		out = append(out, fmt.Sprintf("  %s: %s", label, strings.Join(names, ", ")))
	}
	if p.imports.MatchString(code) {
		out = append(out, "  Imports: Yes")
	}

	out = append(out, "", "First lines:")
	for i, line := range lines {
		if i == previewLines {
			break
		}
		out = append(out, fmt.Sprintf("  %d. %s", i+1, strings.TrimSpace(line)))
	}
	return strings.Join(out, "\n")
}

func submatches(re *regexp.Regexp, code string) []string {
	var names []string
	for _, m := range re.FindAllStringSubmatch(code, -1) {
		names = append(names, m[1])
	}
	return names
}
