// Package lint scans snippet text line by line for style problems. It never
// parses or runs the code, so it reports on anything, including source that
// does not compile.
package lint

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFindings caps a single report.
	MaxFindings = 10
	// MaxLineLength is the longest line, in characters, that passes.
	MaxLineLength = 100

	// Clean is the report for a snippet with no findings.
	Clean = "No issues found! Code looks clean."
)

// Severity levels for findings.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Rule is one line-level check.
type Rule struct {
	Name        string
	Description string
	Severity    Severity
	// Languages limits the rule; empty means every language.
	Languages []string
	// Check reports the finding message for a line, if the line violates
	// the rule.
	Check func(line string) (string, bool)
}

func (r Rule) appliesTo(language string) bool {
	if len(r.Languages) == 0 {
		return true
	}
	for _, l := range r.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// Finding is a single reported issue.
type Finding struct {
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("Line %d: %s", f.Line, f.Message)
}

// Linter applies a fixed rule table.
type Linter struct {
	rules []Rule
}

// New creates a linter with the default rules.
func New() *Linter {
	return &Linter{rules: defaultRules()}
}

// Rules returns the linter's rule table.
func (l *Linter) Rules() []Rule {
	return l.rules
}

// Lint scans code in line order and returns at most MaxFindings findings.
// A line may produce one finding per rule.
func (l *Linter) Lint(language, code string) []Finding {
	var findings []Finding

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		for _, r := range l.rules {
			if !r.appliesTo(language) {
				continue
			}
			msg, ok := r.Check(line)
			if !ok {
				continue
			}
			findings = append(findings, Finding{
				Line:     i + 1,
				Rule:     r.Name,
				Severity: r.Severity.String(),
				Message:  msg,
			})
			if len(findings) == MaxFindings {
				return findings
			}
		}
	}
	return findings
}

// Format renders findings one per line, or Clean when there are none.
func Format(findings []Finding) string {
	if len(findings) == 0 {
		return Clean
	}
	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = f.String()
	}
	return strings.Join(lines, "\n")
}

var (
	bareExceptRe    = regexp.MustCompile(`\bexcept\s*:`)
	discardRecover  = regexp.MustCompile(`^\s*(?:defer\s+)?recover\(\)\s*$|_\s*=\s*recover\(\)`)
	todoRe          = regexp.MustCompile(`TODO|FIXME`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+$`)
	tabIndentRe     = regexp.MustCompile(`^ *\t`)
)

func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "line_too_long",
			Description: fmt.Sprintf("Line longer than %d characters", MaxLineLength),
			Severity:    SeverityMedium,
			Check: func(line string) (string, bool) {
				n := utf8.RuneCountInString(line)
				if n <= MaxLineLength {
					return "", false
				}
				return fmt.Sprintf("Too long (%d chars)", n), true
			},
		},
		{
			Name:        "bare_except",
			Description: "Exception handler that catches everything",
			Severity:    SeverityHigh,
			Languages:   []string{"python"},
			Check:       matchMessage(bareExceptRe, "Bare except clause"),
		},
		{
			Name:        "bare_except",
			Description: "Recovered panic value discarded",
			Severity:    SeverityHigh,
			Languages:   []string{"go"},
			Check:       matchMessage(discardRecover, "Recovered panic discarded"),
		},
		{
			Name:        "todo_marker",
			Description: "Unfinished work marker",
			Severity:    SeverityLow,
			Check: func(line string) (string, bool) {
				if !todoRe.MatchString(line) {
					return "", false
				}
				return strings.TrimSpace(line), true
			},
		},
		{
			Name:        "trailing_whitespace",
			Description: "Whitespace at end of line",
			Severity:    SeverityLow,
			Check: func(line string) (string, bool) {
				if strings.TrimSpace(line) == "" || !trailingSpaceRe.MatchString(line) {
					return "", false
				}
				return "Trailing whitespace", true
			},
		},
		{
			Name:        "tab_indent",
			Description: "Tab used for indentation",
			Severity:    SeverityLow,
			Languages:   []string{"python"},
			Check:       matchMessage(tabIndentRe, "Indented with a tab"),
		},
	}
}

func matchMessage(re *regexp.Regexp, msg string) func(string) (string, bool) {
	return func(line string) (string, bool) {
		return msg, re.MatchString(line)
	}
}
