package runtime

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"aca-sandbox/internal/policy"
)

// PythonRuntime runs Python-dialect snippets on the Starlark interpreter.
// Only the names in the request's capability set resolve; there is no
// import statement, file or network access in the language itself.
type PythonRuntime struct{}

// fileOptions enables the Python constructs beginners reach for first.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) FileExtension() string { return ".py" }

// pythonSource is a snippet after dialect rewriting (see dialect.go).
// text has the same line and column layout as code.
type pythonSource struct {
	code    string
	text    string
	imports []pythonImport
}

// parse parses code in the dialect the interpreter accepts. Python import
// lines are outlined and rejected by name instead of failing on unfamiliar
// syntax, and annotations on def headers are dropped.
func (p *PythonRuntime) parse(code string) (*syntax.File, pythonSource, error) {
	lines := strings.Split(code, "\n")
	rewrites := dialectRewrites(lines)
	src := pythonSource{code: code, text: applyRewrites(lines, rewrites)}

	f, err := parseDialect(src)
	if err != nil || len(rewrites) == 0 {
		return f, src, err
	}

	// A candidate line inside a multi-line string is not a statement; put
	// it back as written.
	kept := confirmRewrites(f, rewrites)
	if len(kept) < len(rewrites) {
		src.text = applyRewrites(lines, kept)
		if f, err = parseDialect(src); err != nil {
			return nil, src, err
		}
	}
	for _, rw := range kept {
		if rw.kind == rewriteImport {
			src.imports = append(src.imports, rw.imp)
		}
	}
	return f, src, nil
}

func parseDialect(src pythonSource) (*syntax.File, error) {
	f, err := fileOptions.Parse(snippetName, src.text, syntax.RetainComments)
	if err != nil {
		var se syntax.Error
		if errors.As(err, &se) {
			return nil, newError(src.code, PhaseParse, "SyntaxError", se.Msg, starlarkPos(se.Pos))
		}
		return nil, newError(src.code, PhaseParse, "SyntaxError", err.Error(), Position{})
	}
	return f, nil
}

func anyName(string) bool { return true }

// resolveStructure runs the resolver with every name defined, leaving only
// its structural errors such as "break not in a loop".
func resolveStructure(code string, f *syntax.File) error {
	return structuralError(code, resolve.File(f, anyName, anyName))
}

// structuralError returns the first resolver error that is not an undefined
// name, as a syntax error.
func structuralError(code string, err error) error {
	if err == nil {
		return nil
	}
	var list resolve.ErrorList
	if !errors.As(err, &list) {
		return newError(code, PhaseParse, "SyntaxError", err.Error(), Position{})
	}
	for _, e := range list {
		if !strings.HasPrefix(e.Msg, "undefined: ") {
			return newError(code, PhaseParse, "SyntaxError", e.Msg, starlarkPos(e.Pos))
		}
	}
	return nil
}

func (p *PythonRuntime) Parse(code string) (*Outline, error) {
	f, src, err := p.parse(code)
	if err != nil {
		return nil, err
	}
	if err := resolveStructure(code, f); err != nil {
		return nil, err
	}

	o := &Outline{Imports: len(src.imports)}
	syntax.Walk(f, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.DefStmt:
			o.Functions = append(o.Functions, Function{
				Name:       n.Name.Name,
				Line:       int(n.Def.Line),
				Documented: hasDocstring(n.Body),
			})
			for _, param := range n.Params {
				if id, ok := param.(*syntax.Ident); ok {
					o.addShortName(id.Name)
				}
			}
		case *syntax.ForStmt, *syntax.WhileStmt:
			o.Loops++
		case *syntax.IfStmt:
			o.Branches++
		case *syntax.LoadStmt:
			o.Imports++
		case *syntax.AssignStmt:
			if id, ok := n.LHS.(*syntax.Ident); ok {
				o.addShortName(id.Name)
			}
		}
		return true
	})
	return o, nil
}

func (p *PythonRuntime) Check(code string, caps *policy.Set) error {
	_, err := p.check(code, caps)
	return err
}

func (p *PythonRuntime) check(code string, caps *policy.Set) (pythonSource, error) {
	f, src, err := p.parse(code)
	if err != nil {
		return src, err
	}
	// Structural errors win over policy so the executor and the analyzer
	// agree on what is a syntax error.
	resolveErr := resolve.File(f, caps.Allows, caps.Allows)
	if err := structuralError(code, resolveErr); err != nil {
		return src, err
	}
	if len(src.imports) > 0 {
		imp := src.imports[0]
		msg := fmt.Sprintf("import of %q is not available in capability set %q", imp.module, caps.Name)
		return src, newError(code, PhasePolicy, "PolicyError", msg, Position{Line: imp.line, Col: imp.col})
	}
	for _, stmt := range f.Stmts {
		if load, ok := stmt.(*syntax.LoadStmt); ok {
			msg := fmt.Sprintf("load of %q is not available in capability set %q", load.ModuleName(), caps.Name)
			return src, newError(code, PhasePolicy, "PolicyError", msg, starlarkPos(load.Load))
		}
	}
	if resolveErr != nil {
		return src, resolveError(code, caps, resolveErr)
	}
	return src, nil
}

func (p *PythonRuntime) Run(code string, caps *policy.Set, stdout io.Writer) error {
	src, err := p.check(code, caps)
	if err != nil {
		return err
	}

	thread := &starlark.Thread{
		Name: "snippet",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(stdout, msg)
		},
	}
	_, err = starlark.ExecFileOptions(fileOptions, thread, snippetName, src.text, caps.Predeclared())
	if err == nil {
		return nil
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		rtErr := newError(code, PhaseRun, "RuntimeError", evalErr.Msg, snippetFrame(evalErr.CallStack))
		if len(evalErr.CallStack) > 1 {
			rtErr.Trace = evalErr.CallStack.String()
		}
		return rtErr
	}
	// ExecFileOptions re-parses and re-resolves; anything surfacing here
	// slipped past Check.
	return newError(code, PhaseRun, "RuntimeError", err.Error(), Position{})
}

// resolveError reports the first name the capability set does not grant.
// Call it only after structuralError found nothing.
func resolveError(code string, caps *policy.Set, err error) error {
	var list resolve.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return newError(code, PhaseParse, "SyntaxError", err.Error(), Position{})
	}
	first := list[0]
	name := strings.TrimPrefix(first.Msg, "undefined: ")
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}
	msg := fmt.Sprintf("name %q is not available in capability set %q", name, caps.Name)
	return newError(code, PhasePolicy, "PolicyError", msg, starlarkPos(first.Pos))
}

// snippetFrame returns the innermost frame located in the snippet itself,
// skipping builtin frames.
func snippetFrame(stack starlark.CallStack) Position {
	for i := 0; i < len(stack); i++ {
		if pos := stack.At(i).Pos; pos.IsValid() && pos.Filename() == snippetName {
			return starlarkPos(pos)
		}
	}
	return Position{}
}

func starlarkPos(pos syntax.Position) Position {
	if !pos.IsValid() {
		return Position{}
	}
	return Position{Line: int(pos.Line), Col: int(pos.Col)}
}

func hasDocstring(body []syntax.Stmt) bool {
	if len(body) == 0 {
		return false
	}
	expr, ok := body[0].(*syntax.ExprStmt)
	if !ok {
		return false
	}
	lit, ok := expr.X.(*syntax.Literal)
	return ok && lit.Token == syntax.STRING
}

func (o *Outline) addShortName(name string) {
	if len(name) == 1 && name != "_" {
		o.ShortNames = append(o.ShortNames, name)
	}
}
