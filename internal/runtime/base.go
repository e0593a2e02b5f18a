package runtime

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"aca-sandbox/internal/policy"
)

// Runtime defines how to parse and run snippets for a specific language.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "python", "go").
	Name() string

	// FileExtension returns the file extension for source files (e.g., ".py").
	FileExtension() string

	// Parse builds the structural outline of code without running it.
	// Failures are *Error values in PhaseParse.
	Parse(code string) (*Outline, error)

	// Check parses code and resolves it against caps without running it.
	Check(code string, caps *policy.Set) error

	// Run checks and then executes code, printing through stdout.
	// Every failure is an *Error.
	Run(code string, caps *policy.Set, stdout io.Writer) error
}

// Outline is the structural summary of a parsed snippet.
type Outline struct {
	Functions []Function
	Loops     int
	Branches  int
	Imports   int

	// ShortNames lists single-character names bound by assignment or
	// declared as parameters, in source order.
	ShortNames []string
}

// Function describes one function definition.
type Function struct {
	Name       string
	Line       int
	Documented bool
	Typed      bool
}

// Registry maps language names to their Runtime implementations.
type Registry struct {
	runtimes map[string]Runtime
}

// NewRegistry creates a registry with all supported runtimes.
func NewRegistry() *Registry {
	r := &Registry{
		runtimes: make(map[string]Runtime),
	}
	r.Register(&PythonRuntime{})
	r.Register(&GoRuntime{})
	return r
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	r.runtimes[rt.Name()] = rt
}

// Get returns the runtime for the given language.
func (r *Registry) Get(language string) (Runtime, error) {
	rt, ok := r.runtimes[language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %q (supported: %s)", language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// ForFile picks a runtime from a file name's extension.
func (r *Registry) ForFile(name string) (Runtime, bool) {
	ext := filepath.Ext(name)
	for _, rt := range r.runtimes {
		if rt.FileExtension() == ext {
			return rt, true
		}
	}
	return nil, false
}

// Languages returns all registered language names in sorted order.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}
