package runtime

import (
	"regexp"
	"strings"

	"go.starlark.net/syntax"
)

// The interpreter speaks a Python dialect without import statements or
// annotations. Learners write both, so before parsing each candidate line
// is rewritten in place: an import becomes "pass", and annotations on a
// one-line def header are blanked out. Rewrites keep every line and column
// where it was, so positions in diagnostics refer to the submitted text.

type rewriteKind int

const (
	rewriteImport rewriteKind = iota
	rewriteDef
)

type rewrite struct {
	kind rewriteKind
	line int // 1-based
	text string
	imp  pythonImport
}

type pythonImport struct {
	line, col int
	module    string
}

var (
	importRe  = regexp.MustCompile(`^(\s*)(?:import\s+([\w.]+)|from\s+([\w.]+)\s+import\b).*$`)
	defHeadRe = regexp.MustCompile(`^\s*def\s+\w+\s*\(`)
)

// dialectRewrites finds the lines that look like imports or annotated def
// headers. Some may sit inside multi-line strings; confirmRewrites sorts
// that out once the file has parsed.
func dialectRewrites(lines []string) []rewrite {
	var out []rewrite
	for i, line := range lines {
		if m := importRe.FindStringSubmatch(line); m != nil {
			module := m[2]
			if module == "" {
				module = m[3]
			}
			out = append(out, rewrite{
				kind: rewriteImport,
				line: i + 1,
				text: m[1] + "pass",
				imp:  pythonImport{line: i + 1, col: len(m[1]) + 1, module: module},
			})
			continue
		}
		if loc := defHeadRe.FindStringIndex(line); loc != nil {
			if text, ok := stripAnnotations(line, loc[1]); ok {
				out = append(out, rewrite{kind: rewriteDef, line: i + 1, text: text})
			}
		}
	}
	return out
}

func applyRewrites(lines []string, rewrites []rewrite) string {
	if len(rewrites) == 0 {
		return strings.Join(lines, "\n")
	}
	out := append([]string(nil), lines...)
	for _, rw := range rewrites {
		out[rw.line-1] = rw.text
	}
	return strings.Join(out, "\n")
}

// confirmRewrites keeps the rewrites that landed on a statement of the
// expected kind: a pass statement for an import, a def for a header.
func confirmRewrites(f *syntax.File, rewrites []rewrite) []rewrite {
	passes := map[int32]bool{}
	defs := map[int32]bool{}
	syntax.Walk(f, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.BranchStmt:
			if n.Token == syntax.PASS {
				passes[n.TokenPos.Line] = true
			}
		case *syntax.DefStmt:
			defs[n.Def.Line] = true
		}
		return true
	})

	var kept []rewrite
	for _, rw := range rewrites {
		line := int32(rw.line)
		if (rw.kind == rewriteImport && passes[line]) || (rw.kind == rewriteDef && defs[line]) {
			kept = append(kept, rw)
		}
	}
	return kept
}

// stripAnnotations blanks parameter and return annotations in a def header
// whose parameter list opens just before open. It reports false when the
// header has no annotations or does not close on this line.
func stripAnnotations(line string, open int) (string, bool) {
	b := []byte(line)
	closeParen := matchParen(b, open)
	if closeParen < 0 {
		return line, false
	}
	changed := false

	// Parameters: blank from a top-level ':' up to the '=' or ',' after it.
	// Colons in a default value (a lambda) are left alone.
	depth := 0
	inDefault := false
	var quote byte
	for i := open; i < closeParen; i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && c == ',':
			inDefault = false
		case depth == 0 && c == '=':
			inDefault = true
		case depth == 0 && c == ':' && !inDefault:
			end := annotationEnd(b, i+1, closeParen)
			blank(b, i, end)
			changed = true
			i = end - 1
		}
	}

	// Return annotation: "-> T" up to the header's colon.
	rest := closeParen + 1
	for rest < len(b) && (b[rest] == ' ' || b[rest] == '\t') {
		rest++
	}
	if rest+1 < len(b) && b[rest] == '-' && b[rest+1] == '>' {
		colon := annotationEnd(b, rest+2, len(b))
		if colon >= len(b) || b[colon] != ':' {
			return line, false
		}
		blank(b, rest, colon)
		changed = true
	}
	return string(b), changed
}

// matchParen returns the index of the ')' closing the '(' before from, or
// -1 if the line ends first.
func matchParen(b []byte, from int) int {
	depth := 1
	var quote byte
	for i := from; i < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth == 0 {
				return i
			}
		case c == '#':
			return -1
		}
	}
	return -1
}

// annotationEnd returns the index of the first top-level '=', ',' or ':'
// at or after from, or limit.
func annotationEnd(b []byte, from, limit int) int {
	depth := 0
	var quote byte
	for i := from; i < limit; i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case depth == 0 && (c == '=' || c == ',' || c == ':'):
			return i
		}
	}
	return limit
}

func blank(b []byte, from, to int) {
	for i := from; i < to; i++ {
		b[i] = ' '
	}
}
