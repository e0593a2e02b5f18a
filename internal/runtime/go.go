package runtime

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/traefik/yaegi/interp"

	"aca-sandbox/internal/policy"
)

// GoRuntime runs Go snippets on the yaegi interpreter. Imports are limited
// to the packages the capability set exports; the package clause may be
// omitted, in which case "package main" is assumed.
type GoRuntime struct{}

func (g *GoRuntime) Name() string { return "go" }

func (g *GoRuntime) FileExtension() string { return ".go" }

var packageClauseRe = regexp.MustCompile(`(?m)^\s*package\s+\w+`)

// goSource is a snippet prepared for the Go toolchain.
type goSource struct {
	code   string // as submitted
	text   string // with package clause
	offset int    // lines added in front of code
}

func prepareGo(code string) goSource {
	if packageClauseRe.MatchString(code) {
		return goSource{code: code, text: code}
	}
	return goSource{code: code, text: "package main\n" + code, offset: 1}
}

func (s goSource) pos(p token.Position) Position {
	if !p.IsValid() {
		return Position{}
	}
	line := p.Line - s.offset
	if line < 1 {
		line = 1
	}
	return Position{Line: line, Col: p.Column}
}

func (s goSource) parse() (*token.FileSet, *ast.File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, snippetName, s.text, parser.ParseComments)
	if err != nil {
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			return nil, nil, newError(s.code, PhaseParse, "SyntaxError", list[0].Msg, s.pos(list[0].Pos))
		}
		return nil, nil, newError(s.code, PhaseParse, "SyntaxError", err.Error(), Position{})
	}
	return fset, f, nil
}

func (g *GoRuntime) Parse(code string) (*Outline, error) {
	src := prepareGo(code)
	_, f, err := src.parse()
	if err != nil {
		return nil, err
	}
	if err := compileCheck(src, f); err != nil {
		return nil, err
	}

	o := &Outline{Imports: len(f.Imports)}
	ast.Inspect(f, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			o.Functions = append(o.Functions, Function{
				Name:       n.Name.Name,
				Line:       src.lineOf(n.Pos()),
				Documented: n.Doc != nil,
				Typed:      true,
			})
			for _, field := range n.Type.Params.List {
				for _, name := range field.Names {
					o.addShortName(name.Name)
				}
			}
		case *ast.ForStmt, *ast.RangeStmt:
			o.Loops++
		case *ast.IfStmt, *ast.SwitchStmt, *ast.TypeSwitchStmt:
			o.Branches++
		case *ast.AssignStmt:
			if n.Tok == token.DEFINE {
				for _, lhs := range n.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						o.addShortName(id.Name)
					}
				}
			}
		case *ast.ValueSpec:
			for _, name := range n.Names {
				o.addShortName(name.Name)
			}
		}
		return true
	})
	return o, nil
}

func (s goSource) lineOf(p token.Pos) int {
	// Parse uses a fresh FileSet holding only f, so the base is 1.
	line := 1 + strings.Count(s.text[:int(p)-1], "\n") - s.offset
	if line < 1 {
		line = 1
	}
	return line
}

func (g *GoRuntime) Check(code string, caps *policy.Set) error {
	src := prepareGo(code)
	fset, f, err := src.parse()
	if err != nil {
		return err
	}
	return checkImports(src, fset, f, caps)
}

func checkImports(src goSource, fset *token.FileSet, f *ast.File, caps *policy.Set) error {
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			path = imp.Path.Value
		}
		if !caps.AllowsPackage(path) {
			msg := fmt.Sprintf("import %q is not available in capability set %q", path, caps.Name)
			return newError(src.code, PhasePolicy, "ImportError", msg, src.pos(fset.Position(imp.Pos())))
		}
	}
	return nil
}

// compileCheck type-checks src with yaegi without running it, so that
// Parse fails exactly where Run would fail to compile. Source importing a
// package no capability set grants is left to Check, which rejects it
// before compiling.
func compileCheck(src goSource, f *ast.File) (err error) {
	widest := policy.Widest()
	for _, imp := range f.Imports {
		path, uerr := strconv.Unquote(imp.Path.Value)
		if uerr != nil || !widest.AllowsPackage(path) {
			return nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = newError(src.code, PhaseParse, "CompileError", fmt.Sprint(r), Position{})
		}
	}()
	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: io.Discard})
	if err := i.Use(widest.GoSymbols()); err != nil {
		return newError(src.code, PhaseRun, "RuntimeError", err.Error(), Position{})
	}
	if _, err := i.Compile(src.text); err != nil {
		return goEvalError(src, err)
	}
	return nil
}

var yaegiPosRe = regexp.MustCompile(`^(?:[^:]*:)?(\d+):(\d+): `)

func (g *GoRuntime) Run(code string, caps *policy.Set, stdout io.Writer) error {
	src := prepareGo(code)
	fset, f, err := src.parse()
	if err != nil {
		return err
	}
	if err := checkImports(src, fset, f, caps); err != nil {
		return err
	}

	i := interp.New(interp.Options{
		Stdout: stdout,
		Stderr: stdout,
	})
	if err := i.Use(caps.GoSymbols()); err != nil {
		return newError(code, PhaseRun, "RuntimeError", err.Error(), Position{})
	}

	if _, err := i.Eval(src.text); err != nil {
		return goEvalError(src, err)
	}
	return nil
}

// goEvalError maps a yaegi failure. A recovered panic means the program
// ran; anything else is a compile error and counts as a parse failure.
func goEvalError(src goSource, err error) error {
	var p interp.Panic
	if errors.As(err, &p) {
		return newError(src.code, PhaseRun, "panic", fmt.Sprint(p.Value), Position{})
	}
	var pp *interp.Panic
	if errors.As(err, &pp) {
		return newError(src.code, PhaseRun, "panic", fmt.Sprint(pp.Value), Position{})
	}

	msg := err.Error()
	pos := Position{}
	if m := yaegiPosRe.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		pos = src.pos(token.Position{Filename: snippetName, Line: line, Column: col})
		msg = msg[len(m[0]):]
	}
	return newError(src.code, PhaseParse, "CompileError", msg, pos)
}
