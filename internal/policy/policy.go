// Package policy defines the named capability sets that bound what a snippet
// may reach. Sets are built once at process start and shared read-only.
package policy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Default is the capability set used when a request names none.
const Default = "basic"

// ErrUnknown is returned by Lookup for names outside the catalog.
var ErrUnknown = errors.New("unknown capability set")

var basicBuiltins = []string{
	"print", "len", "range", "min", "max", "sum", "abs",
	"int", "str", "float", "bool", "list", "dict", "tuple", "set",
	"sorted", "enumerate", "zip", "reversed", "any", "all",
}

// constants are always in scope; the dialect has them as universe names,
// not keywords.
var constants = []string{"True", "False", "None"}

var basicGoPackages = []string{
	"fmt", "strings", "strconv", "math", "sort", "unicode/utf8",
}

// Set is a named allow-list of interpreter symbols.
type Set struct {
	Name       string
	Builtins   []string
	Modules    []string
	GoPackages []string

	allowed     map[string]bool
	goAllowed   map[string]bool
	predeclared starlark.StringDict
	goSymbols   interp.Exports
}

var sets = map[string]*Set{
	"basic": newSet("basic", basicBuiltins, nil, basicGoPackages),
	"extended": newSet("extended",
		basicBuiltins,
		[]string{"math", "json", "time"},
		append(append([]string{}, basicGoPackages...), "encoding/json", "regexp", "bytes", "time"),
	),
}

func newSet(name string, builtins, modules, goPackages []string) *Set {
	s := &Set{
		Name:       name,
		Builtins:   builtins,
		Modules:    modules,
		GoPackages: goPackages,
		allowed:    make(map[string]bool, len(constants)+len(builtins)+len(modules)),
		goAllowed:  make(map[string]bool, len(goPackages)),
	}
	for _, c := range constants {
		s.allowed[c] = true
	}
	for _, b := range builtins {
		s.allowed[b] = true
	}
	for _, m := range modules {
		s.allowed[m] = true
	}
	for _, p := range goPackages {
		s.goAllowed[p] = true
	}
	s.predeclared = s.buildPredeclared()
	s.goSymbols = s.buildGoSymbols()
	return s
}

// Lookup returns the named set. An empty name selects Default.
func Lookup(name string) (*Set, error) {
	if name == "" {
		name = Default
	}
	s, ok := sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknown, name, Names())
	}
	return s, nil
}

// Names returns the catalog's set names in sorted order.
func Names() []string {
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Widest returns the set that grants the most Go packages. Every other set's
// packages are a subset of it.
func Widest() *Set {
	var widest *Set
	for _, name := range Names() {
		if s := sets[name]; widest == nil || len(s.GoPackages) > len(widest.GoPackages) {
			widest = s
		}
	}
	return widest
}

// Allows reports whether a snippet may refer to name.
func (s *Set) Allows(name string) bool {
	return s.allowed[name]
}

// AllowsPackage reports whether a Go snippet may import path.
func (s *Set) AllowsPackage(path string) bool {
	return s.goAllowed[path]
}

// Predeclared returns the Starlark globals added on top of the universe for
// this set. The dictionary is frozen and must not be modified.
func (s *Set) Predeclared() starlark.StringDict {
	return s.predeclared
}

// GoSymbols returns the yaegi exports for the set's Go packages.
func (s *Set) GoSymbols() interp.Exports {
	return s.goSymbols
}

var starlarkModules = map[string]starlark.Value{
	"math": starlarkmath.Module,
	"json": starlarkjson.Module,
	"time": starlarktime.Module,
}

func (s *Set) buildPredeclared() starlark.StringDict {
	dict := starlark.StringDict{}
	for _, b := range s.Builtins {
		if _, ok := starlark.Universe[b]; ok {
			continue
		}
		if fn, ok := extraBuiltins[b]; ok {
			dict[b] = fn
		}
	}
	for _, m := range s.Modules {
		if mod, ok := starlarkModules[m]; ok {
			dict[m] = mod
		}
	}
	dict.Freeze()
	return dict
}

// buildGoSymbols filters the yaegi stdlib table. Its keys have the form
// "import/path/name", e.g. "fmt/fmt" or "unicode/utf8/utf8".
func (s *Set) buildGoSymbols() interp.Exports {
	exports := interp.Exports{}
	for key, syms := range stdlib.Symbols {
		if s.goAllowed[packagePath(key)] {
			exports[key] = syms
		}
	}
	return exports
}

func packagePath(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i]
		}
	}
	return key
}

// extraBuiltins fills gaps in the Starlark universe for names the sets allow.
var extraBuiltins = map[string]*starlark.Builtin{
	"sum": starlark.NewBuiltin("sum", sum),
	"abs": starlark.NewBuiltin("abs", abs),
}

func sum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var total starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &iterable, &total); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		v, err := starlark.Binary(syntax.PLUS, total, x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		total = v
	}
	return total, nil
}

func abs(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case starlark.Int:
		if v.Sign() < 0 {
			return starlark.MakeInt(0).Sub(v), nil
		}
		return v, nil
	case starlark.Float:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s: got %s, want int or float", b.Name(), x.Type())
	}
}
