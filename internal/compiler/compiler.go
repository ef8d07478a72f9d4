// Package compiler implements qwery's Statement Compiler / Binder (spec
// §4.5, §9): it lowers an ast.Statement into a runtime.Executable tree,
// resolving each DataResource to a concrete device through an ordered
// DeviceFactory registry. Grounded on razeghi71-dq/loader/loader.go's
// extension-dispatch Load(filename), generalized per DESIGN NOTES §9 into
// "an ordered list of factory functions (path, hints) -> Option<Device>;
// first match wins. Registration is process-wide but mutation is forbidden
// after startup."
package compiler

import (
	"fmt"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/config"
	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/iodev"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/qlog"
	"github.com/qiulin/qwery/internal/runtime"
	"github.com/qiulin/qwery/internal/value"
)

// registry is the process-wide, append-only device factory list (spec §9:
// "mutation is forbidden after startup"). Register is only ever called from
// package init functions, before any query compiles.
var registry []iodev.Factory

// Register appends a Factory to the process-wide device registry. Intended
// to be called only from package init (internal/source/*'s init functions
// and this package's own init below); never call it after compilation has
// begun.
func Register(f iodev.Factory) {
	registry = append(registry, f)
}

func init() {
	// Wire the scalar-subquery evaluation hook (internal/runtime/eval.go's
	// CompileFn) without runtime importing compiler, which would cycle.
	runtime.CompileFn = Compile
}

// Compile lowers stmt into an executable tree (spec §4.5).
func Compile(stmt ast.Statement) (runtime.Executable, error) {
	switch n := stmt.(type) {
	case *ast.Select:
		return compileSelect(n)
	case *ast.Insert:
		return compileInsert(n)
	case *ast.Describe:
		return compileDescribe(n)
	case *ast.Declare:
		return &runtime.DeclareExec{Name: n.Name, Type: n.Type}, nil
	case *ast.Assignment:
		exec := &runtime.AssignExec{Name: n.Name, Expr: n.Expr}
		if n.Query != nil {
			sub, err := Compile(n.Query)
			if err != nil {
				return nil, err
			}
			exec.Query = sub
		}
		return exec, nil
	case *ast.Show:
		return &runtime.ShowExec{Entity: n.Entity}, nil
	case *ast.CreateView:
		return &runtime.CreateViewExec{Name: n.Name, Query: n.Query}, nil
	case *ast.Connect:
		return &runtime.ConnectExec{Service: n.Service, Hints: n.Hints, Name: n.Name}, nil
	case *ast.Disconnect:
		return &runtime.DisconnectExec{Handle: n.Handle}, nil
	case *ast.ValuesList:
		return &runtime.ValuesExec{Rows: n.Rows}, nil
	default:
		return nil, qerr.NewSemantic(fmt.Sprintf("cannot compile statement of type %T", stmt), nil)
	}
}

func compileSelect(n *ast.Select) (runtime.Executable, error) {
	exec := &runtime.SelectExec{
		Fields:  n.Fields,
		Top:     n.Top,
		Where:   n.Where,
		GroupBy: n.GroupBy,
		OrderBy: n.OrderBy,
		Limit:   n.Limit,
	}
	if n.Source != nil {
		src := n.Source
		exec.OpenSource = func(scope *runtime.Scope) (iodev.InputSource, error) {
			return openInput(src, scope)
		}
	}
	return exec, nil
}

func compileInsert(n *ast.Insert) (runtime.Executable, error) {
	source, err := Compile(n.Source)
	if err != nil {
		return nil, err
	}
	if v, ok := source.(*runtime.ValuesExec); ok {
		v.Fields = n.Fields
	}
	hs := n.Hints
	path := n.Path
	return &runtime.InsertExec{
		Fields: n.Fields,
		Source: source,
		OpenTarget: func(scope *runtime.Scope) (iodev.OutputSource, error) {
			return openOutput(path, hs, scope)
		},
	}, nil
}

func compileDescribe(n *ast.Describe) (runtime.Executable, error) {
	src := n.Source
	return &runtime.DescribeExec{
		Limit: n.Limit,
		OpenSource: func(scope *runtime.Scope) (iodev.InputSource, error) {
			return openInput(src, scope)
		},
	}, nil
}

// openInput resolves one DataResource to an InputSource: either a compiled
// subquery's ResultSet adapted to InputSource, or the first registered
// factory that claims the literal path (spec §4.5 device resolution).
func openInput(res *ast.DataResource, scope *runtime.Scope) (iodev.InputSource, error) {
	if res.Subquery != nil {
		exec, err := Compile(res.Subquery)
		if err != nil {
			return nil, err
		}
		rs, err := exec.Execute(scope)
		if err != nil {
			return nil, err
		}
		return resultSetSource{rs}, nil
	}

	if view, ok := scope.LookupView(res.Literal); ok {
		exec, err := Compile(view)
		if err != nil {
			return nil, err
		}
		rs, err := exec.Execute(scope)
		if err != nil {
			return nil, err
		}
		return resultSetSource{rs}, nil
	}

	h, err := resolveHints(res.Hints)
	if err != nil {
		return nil, err
	}
	conns := connLookup(scope)
	for _, f := range registry {
		src, ok, err := f.OpenInput(res.Literal, h, conns)
		if err != nil {
			return nil, qerr.NewResource(qerr.PhaseOpen, fmt.Sprintf("device factory %q failed to open %q", f.Name(), res.Literal), err)
		}
		if ok {
			qlog.Debug("compiler: resolved input %q via factory %q", res.Literal, f.Name())
			return src, nil
		}
	}
	return nil, qerr.NewResource(qerr.PhaseOpen, fmt.Sprintf("no device factory matches source %q", res.Literal), nil)
}

func openOutput(path string, rawHints hints.Hints, scope *runtime.Scope) (iodev.OutputSource, error) {
	h, err := resolveHints(rawHints)
	if err != nil {
		return nil, err
	}
	conns := connLookup(scope)
	for _, f := range registry {
		dst, ok, err := f.OpenOutput(path, h, conns)
		if err != nil {
			return nil, qerr.NewResource(qerr.PhaseOpen, fmt.Sprintf("device factory %q failed to open %q", f.Name(), path), err)
		}
		if ok {
			qlog.Debug("compiler: resolved output %q via factory %q", path, f.Name())
			return dst, nil
		}
	}
	return nil, qerr.NewResource(qerr.PhaseOpen, fmt.Sprintf("no device factory matches target %q", path), nil)
}

// resolveHints materializes the `WITH PROPERTIES <path>` hint (spec §4.3):
// the template parser only records the path under a "__file" marker key
// (internal/template/match.go), since the parser itself does no file I/O;
// the compiler, which is allowed to touch the filesystem, loads it here via
// internal/config and merges the resulting key/value pairs in.
func resolveHints(h hints.Hints) (hints.Hints, error) {
	path, ok := h.Properties["__file"]
	if !ok {
		return h, nil
	}
	props, err := config.LoadProperties(path)
	if err != nil {
		return hints.Hints{}, qerr.NewResource(qerr.PhaseOpen, "cannot load WITH PROPERTIES file "+path, err)
	}
	merged := make(map[string]string, len(h.Properties)+len(props))
	for k, v := range h.Properties {
		if k != "__file" {
			merged[k] = v
		}
	}
	for k, v := range props {
		merged[k] = v
	}
	h.Properties = merged
	return h, nil
}

// connLookup adapts a Scope's registered connections (CONNECT TO ... AS
// name) to the iodev.ConnLookup signature, so device factories can resolve
// a handle name to its DSN/hints without importing runtime.
func connLookup(scope *runtime.Scope) iodev.ConnLookup {
	return func(name string) (string, hints.Hints, bool) {
		c, ok := scope.LookupConnection(name)
		if !ok {
			return "", hints.Hints{}, false
		}
		return c.Service, c.Hints, true
	}
}

// resultSetSource adapts a runtime.ResultSet (the output of a compiled
// subquery) to the iodev.InputSource interface, so a parenthesised
// sub-query can be used anywhere a source is expected (spec §4.2 %s:/%S:
// tags).
type resultSetSource struct {
	rs runtime.ResultSet
}

func (s resultSetSource) Read() (value.Row, error) { return s.rs.Next() }
func (s resultSetSource) Close() error              { return s.rs.Close() }
