// Package suggest offers style advice from a flat list of independent
// heuristics. Rules never run the code; those that benefit from structure
// use the parse tree when the snippet parses and fall back to text
// otherwise.
package suggest

import (
	"regexp"
	"strings"
	"unicode"

	"aca-sandbox/internal/runtime"
)

const (
	// MaxSuggestions caps a single report.
	MaxSuggestions = 8

	// WellStructured is the report when no rule fires.
	WellStructured = "Code looks well-structured!"

	// longScriptLines is the size past which a script should be split up.
	longScriptLines = 40
	// printHeavy is the number of print calls that suggests logging.
	printHeavy = 5
)

// Input is what a rule inspects.
type Input struct {
	Code  string
	Lines []string
	// Outline is nil when the snippet does not parse.
	Outline *runtime.Outline
}

// Rule is one heuristic.
type Rule struct {
	Name      string
	Languages []string
	Message   string
	Applies   func(in *Input) bool
}

func (r Rule) appliesTo(language string) bool {
	for _, l := range r.Languages {
		if l == language {
			return true
		}
	}
	return false
}

var (
	magicNumberRe = regexp.MustCompile(`\b[0-9]{2,}\b`)
	pyDefRe       = regexp.MustCompile(`(?m)^\s*def\s`)
	pyShortNameRe = regexp.MustCompile(`(?m)(?:^|[\s,(])[A-Za-z]\s*=[^=]`)
	goShortNameRe = regexp.MustCompile(`\b[A-Za-z]\s*:=`)
	printCallRe   = regexp.MustCompile(`\bprint\(|\bfmt\.Print`)
	goFuncRe      = regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?([A-Z]\w*)`)
)

// Rules is the ordered rule list.
var Rules = []Rule{
	{
		Name:      "type_hints",
		Languages: []string{"python"},
		Message:   "Add type hints to functions",
		Applies: func(in *Input) bool {
			for _, line := range in.Lines {
				if pyDefRe.MatchString(line) && !strings.Contains(line, "->") {
					return true
				}
			}
			return false
		},
	},
	{
		Name:      "docstrings",
		Languages: []string{"python"},
		Message:   "Add docstrings to functions",
		Applies: func(in *Input) bool {
			if in.Outline != nil {
				return anyUndocumented(in.Outline, func(runtime.Function) bool { return true })
			}
			return pyDefRe.MatchString(in.Code) && !strings.Contains(in.Code, `"""`) && !strings.Contains(in.Code, `'''`)
		},
	},
	{
		Name:      "exported_docs",
		Languages: []string{"go"},
		Message:   "Add doc comments to exported functions",
		Applies: func(in *Input) bool {
			if in.Outline != nil {
				return anyUndocumented(in.Outline, func(f runtime.Function) bool { return isExported(f.Name) })
			}
			return goFuncRe.MatchString(in.Code) && !strings.Contains(in.Code, "//")
		},
	},
	{
		Name:      "magic_numbers",
		Languages: []string{"python", "go"},
		Message:   "Replace magic numbers with constants",
		Applies: func(in *Input) bool {
			return magicNumberRe.MatchString(in.Code)
		},
	},
	{
		Name:      "short_names",
		Languages: []string{"python"},
		Message:   "Use descriptive variable names",
		Applies: func(in *Input) bool {
			if in.Outline != nil {
				return len(in.Outline.ShortNames) > 0
			}
			return pyShortNameRe.MatchString(in.Code)
		},
	},
	{
		Name:      "short_names",
		Languages: []string{"go"},
		Message:   "Use descriptive variable names",
		Applies: func(in *Input) bool {
			if in.Outline != nil {
				return len(in.Outline.ShortNames) > 0
			}
			return goShortNameRe.MatchString(in.Code)
		},
	},
	{
		Name:      "print_logging",
		Languages: []string{"python", "go"},
		Message:   "Consider structured logging for larger scripts",
		Applies: func(in *Input) bool {
			return len(printCallRe.FindAllString(in.Code, -1)) > printHeavy &&
				!strings.Contains(in.Code, "logging") && !strings.Contains(in.Code, "log.")
		},
	},
	{
		Name:      "long_script",
		Languages: []string{"python", "go"},
		Message:   "Consider splitting logic into smaller functions",
		Applies: func(in *Input) bool {
			return len(in.Lines) > longScriptLines
		},
	},
}

// Suggest runs every rule for rt's language and returns the messages of
// those that fire, capped at MaxSuggestions.
func Suggest(rt runtime.Runtime, code string) []string {
	in := &Input{
		Code:  code,
		Lines: strings.Split(strings.TrimSuffix(code, "\n"), "\n"),
	}
	if o, err := rt.Parse(code); err == nil {
		in.Outline = o
	}

	var out []string
	for _, r := range Rules {
		if !r.appliesTo(rt.Name()) || !r.Applies(in) {
			continue
		}
		out = append(out, r.Message)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// Format renders suggestions as a bulleted list, or WellStructured.
func Format(suggestions []string) string {
	if len(suggestions) == 0 {
		return WellStructured
	}
	lines := make([]string, len(suggestions))
	for i, s := range suggestions {
		lines[i] = "- " + s
	}
	return strings.Join(lines, "\n")
}

func anyUndocumented(o *runtime.Outline, match func(runtime.Function) bool) bool {
	for _, f := range o.Functions {
		if match(f) && !f.Documented {
			return true
		}
	}
	return false
}

func isExported(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}
