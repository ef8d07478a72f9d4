// Single-effect statement operators (spec §4.5, §6): DECLARE, SET, SHOW,
// CREATE VIEW, CONNECT, DISCONNECT, and the VALUES row source used by
// `INSERT INTO target (...) VALUES (...)`. Each performs its effect once
// against the Scope; SHOW yields one row per listed entity, VALUES one row
// per value list, and the others yield no rows.
package runtime

import (
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/qlog"
	"github.com/qiulin/qwery/internal/value"
)

// ValuesExec evaluates a literal VALUES row list (spec §4.5 INSERT grammar).
type ValuesExec struct {
	Rows   [][]ast.Expression
	Fields []string
}

func (x *ValuesExec) Execute(scope *Scope) (ResultSet, error) {
	out := make([]value.Row, 0, len(x.Rows))
	for _, exprs := range x.Rows {
		vals := make([]value.Value, len(exprs))
		for i, e := range exprs {
			v, err := Eval(e, scope)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		names := x.Fields
		if len(names) != len(vals) {
			names = make([]string, len(vals))
			for i := range names {
				names[i] = "col" + strconv.Itoa(i)
			}
		}
		out = append(out, value.NewRow(names, vals))
	}
	return NewSliceResultSet(out), nil
}

// DeclareExec implements DECLARE @var TYPE (spec §6): introduces the
// variable, zero-valued, in the current Scope frame.
type DeclareExec struct {
	Name string
	Type ast.VarType
}

func (x *DeclareExec) Execute(scope *Scope) (ResultSet, error) {
	scope.DeclareTyped(x.Name, zeroValueFor(x.Type), x.Type)
	return EmptyResultSet(), nil
}

func zeroValueFor(t ast.VarType) value.Value {
	switch t {
	case ast.TypeBoolean:
		return value.Bool(false)
	case ast.TypeInteger, ast.TypeLong:
		return value.Int64(0)
	case ast.TypeDouble:
		return value.Float64(0)
	case ast.TypeString:
		return value.String("")
	case ast.TypeBinary:
		return value.Bytes(nil)
	default:
		return value.Null()
	}
}

// AssignExec implements SET @var = <expr|SELECT ...> (spec §6). Query is
// set instead of Expr when the right-hand side is a scalar subquery.
type AssignExec struct {
	Name  string
	Expr  ast.Expression
	Query Executable
}

func (x *AssignExec) Execute(scope *Scope) (ResultSet, error) {
	var v value.Value
	if x.Query != nil {
		rs, err := x.Query.Execute(scope)
		if err != nil {
			return nil, err
		}
		defer rs.Close()
		row, err := rs.Next()
		if err != nil {
			v = value.Null()
		} else if len(row.Values) > 0 {
			v = row.Values[0]
		}
	} else {
		var err error
		v, err = Eval(x.Expr, scope)
		if err != nil {
			return nil, err
		}
	}
	if t, ok := scope.DeclaredType(x.Name); ok {
		coerced, err := coerceToType(v, t)
		if err != nil {
			return nil, err
		}
		v = coerced
	}
	scope.Set(x.Name, v)
	return EmptyResultSet(), nil
}

// coerceToType converts v toward the variable's DECLAREd type (spec §6, §7):
// numeric widening (INTEGER/LONG -> DOUBLE) succeeds, as does rendering any
// scalar to STRING; anything else that doesn't already match the target
// Kind is a "type mismatch in assignment" SemanticError. NULL passes through
// untouched regardless of target type.
func coerceToType(v value.Value, t ast.VarType) (value.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch t {
	case ast.TypeDouble:
		switch v.Kind {
		case value.KindInt64, value.KindFloat64:
			f, _ := v.AsFloat()
			return value.Float64(f), nil
		}
	case ast.TypeInteger, ast.TypeLong:
		if v.Kind == value.KindInt64 {
			return v, nil
		}
	case ast.TypeBoolean:
		if v.Kind == value.KindBool {
			return v, nil
		}
	case ast.TypeString:
		return value.String(v.AsString()), nil
	case ast.TypeBinary:
		if v.Kind == value.KindBytes {
			return v, nil
		}
	case ast.TypeDate:
		if v.Kind == value.KindDate {
			return v, nil
		}
	default:
		return v, nil
	}
	return value.Null(), qerr.NewSemantic("type mismatch in assignment: cannot assign "+v.TypeName()+" to "+string(t), nil)
}

// ShowExec implements SHOW VIEWS|CONNECTIONS|VARIABLES (spec §6, §9 Open
// Question 4): lists the requested entity set as rows, sorted by name for
// deterministic output.
type ShowExec struct {
	Entity ast.ShowEntity
}

var showColumns = map[ast.ShowEntity][]string{
	ast.ShowViews:       {"Name"},
	ast.ShowConnections: {"Name", "Service", "ID"},
	ast.ShowVariables:   {"Name", "Value"},
}

func (x *ShowExec) Execute(scope *Scope) (ResultSet, error) {
	cols, ok := showColumns[x.Entity]
	if !ok {
		return nil, qerr.NewSemantic("unknown SHOW entity "+string(x.Entity), nil)
	}
	var rows []value.Row
	switch x.Entity {
	case ast.ShowViews:
		names := sortedKeysStmt(scope.Views())
		for _, n := range names {
			rows = append(rows, value.NewRow(cols, []value.Value{value.String(n)}))
		}
	case ast.ShowConnections:
		conns := scope.Connections()
		names := make([]string, 0, len(conns))
		for n := range conns {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			rows = append(rows, value.NewRow(cols, []value.Value{value.String(n), value.String(conns[n].Service), value.String(conns[n].ID)}))
		}
	case ast.ShowVariables:
		vars := scope.Variables()
		names := make([]string, 0, len(vars))
		for n := range vars {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			rows = append(rows, value.NewRow(cols, []value.Value{value.String(n), value.String(vars[n].AsString())}))
		}
	}
	return NewSliceResultSet(rows), nil
}

func sortedKeysStmt(m map[string]ast.Statement) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateViewExec implements CREATE VIEW name AS <query> (spec §6).
type CreateViewExec struct {
	Name  string
	Query ast.Statement
}

func (x *CreateViewExec) Execute(scope *Scope) (ResultSet, error) {
	scope.RegisterView(x.Name, x.Query)
	return EmptyResultSet(), nil
}

// ConnectExec implements CONNECT TO service WITH hints AS name (spec §6).
type ConnectExec struct {
	Service string
	Hints   hints.Hints
	Name    string
}

func (x *ConnectExec) Execute(scope *Scope) (ResultSet, error) {
	id := uuid.New().String()
	scope.RegisterConnection(Connection{ID: id, Name: x.Name, Service: x.Service, Hints: x.Hints})
	qlog.Debug("runtime: opened connection %q (%s) to service %q", x.Name, id, x.Service)
	return EmptyResultSet(), nil
}

// DisconnectExec implements DISCONNECT FROM handle (spec §6).
type DisconnectExec struct {
	Handle string
}

func (x *DisconnectExec) Execute(scope *Scope) (ResultSet, error) {
	if !scope.DropConnection(x.Handle) {
		return nil, qerr.NewSemantic("no open connection named "+x.Handle, nil)
	}
	return EmptyResultSet(), nil
}
