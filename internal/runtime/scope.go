// Package runtime implements qwery's execution environment and operators
// (spec §4.6-§4.9, §5): Scope, the Executable/ResultSet pull-iterator
// contract, expression/condition evaluation, and the Select/Insert/Describe/
// Declare/Set/Show/CreateView/Connect/Disconnect operators. Grounded on
// razeghi71-dq/engine/engine.go's op-dispatch Execute, rearchitected from
// "materialize a *table.Table per stage" to a pull-based ResultSet
// interface (spec §5). SelectExec still reads its whole source into memory
// before it yields its first row.
package runtime

import (
	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/value"
)

// Connection is a named, open external handle created by CONNECT TO ... AS
// name (spec §4.5, §6). ID is an internal, process-unique identifier
// (distinct from the user-chosen Name) so SHOW CONNECTIONS and log lines can
// tell two connections reusing the same handle name apart across a script's
// CONNECT/DISCONNECT/CONNECT lifecycle.
type Connection struct {
	ID      string
	Name    string
	Service string
	Hints   hints.Hints
}

// Scope is qwery's lexical execution environment (spec §3, §9): a parent-
// chained variable/view/connection environment. Variable lookup and SET
// writes walk the parent chain to the declaration site; views and
// connections are process-wide for the run and always live at the root.
type Scope struct {
	parent   *Scope
	vars     map[string]value.Value
	types    map[string]ast.VarType // declared DECLARE types, keyed like vars
	views    map[string]ast.Statement
	conns    map[string]Connection
	rowNames []string // ordered names bound by BindRow, for '*' projection
}

// NewRootScope creates a fresh top-level Scope for one script run.
func NewRootScope() *Scope {
	return &Scope{
		vars:  map[string]value.Value{},
		views: map[string]ast.Statement{},
		conns: map[string]Connection{},
	}
}

// Child creates a nested Scope used to evaluate expressions against the
// row currently being processed (spec §4.6 step 1: "create a child Scope
// that records the current row").
func (s *Scope) Child() *Scope {
	return &Scope{parent: s, vars: map[string]value.Value{}}
}

func (s *Scope) root() *Scope {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Get looks up a variable, walking the parent chain.
func (s *Scope) Get(name string) (value.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return value.Null(), false
}

// Declare introduces name in this Scope's own frame (DECLARE), with no
// tracked type: SET against it never coerces. Used directly by callers (e.g.
// tests) that bind a variable without going through a DECLARE statement;
// DeclareExec itself calls DeclareTyped.
func (s *Scope) Declare(name string, v value.Value) {
	s.vars[name] = v
}

// DeclareTyped introduces name in this Scope's own frame along with its
// declared type (spec §6 DECLARE), so a later SET can coerce toward it.
func (s *Scope) DeclareTyped(name string, v value.Value, t ast.VarType) {
	s.vars[name] = v
	if s.types == nil {
		s.types = map[string]ast.VarType{}
	}
	s.types[name] = t
}

// DeclaredType reports the VarType name was DECLAREd with, walking the
// parent chain. ok is false for variables bound via Declare/BindRow, which
// carry no declared type.
func (s *Scope) DeclaredType(name string) (ast.VarType, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if t, ok := cur.types[name]; ok {
			return t, true
		}
	}
	return "", false
}

// Set writes name's value, walking up to the frame that declared it
// (explicit design choice, spec §9: "writes are always local unless the
// variable exists in a parent... default: walk upward to the declaration
// site"). If no frame has declared it, it is created in the local frame.
func (s *Scope) Set(name string, v value.Value) {
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			cur.vars[name] = v
			return
		}
	}
	s.vars[name] = v
}

// SetLocal always writes into this Scope's own frame, bypassing the
// declaration-site walk (used when binding the current row during
// iteration, where shadowing is intentional).
func (s *Scope) SetLocal(name string, v value.Value) {
	s.vars[name] = v
}

// BindRow populates this Scope's own frame with row's columns, in order,
// recording their names so a later '*' projection can recover the row's
// shape (spec §4.6 step 1).
func (s *Scope) BindRow(row value.Row) {
	s.rowNames = make([]string, 0, len(row.Names))
	for i, name := range row.Names {
		s.vars[name] = row.Values[i]
		s.rowNames = append(s.rowNames, name)
	}
}

// LocalNames returns the ordered column names bound by the most recent
// BindRow call on this Scope.
func (s *Scope) LocalNames() []string {
	return s.rowNames
}

// RegisterView stores a CREATE VIEW definition at the root Scope.
func (s *Scope) RegisterView(name string, stmt ast.Statement) {
	s.root().views[name] = stmt
}

// LookupView resolves a view by name, walking the parent chain.
func (s *Scope) LookupView(name string) (ast.Statement, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.views[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Views returns all registered views (for SHOW VIEWS).
func (s *Scope) Views() map[string]ast.Statement {
	return s.root().views
}

// RegisterConnection stores a CONNECT TO ... AS name handle at the root Scope.
func (s *Scope) RegisterConnection(c Connection) {
	s.root().conns[c.Name] = c
}

// LookupConnection resolves a connection handle by name.
func (s *Scope) LookupConnection(name string) (Connection, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if c, ok := cur.conns[name]; ok {
			return c, true
		}
	}
	return Connection{}, false
}

// DropConnection removes a connection handle (DISCONNECT FROM).
func (s *Scope) DropConnection(name string) bool {
	root := s.root()
	if _, ok := root.conns[name]; !ok {
		return false
	}
	delete(root.conns, name)
	return true
}

// Connections returns all open connections (for SHOW CONNECTIONS).
func (s *Scope) Connections() map[string]Connection {
	return s.root().conns
}

// Variables returns the root frame's variables, whichever frame it is called
// on (SHOW VARIABLES reports these declared session variables).
func (s *Scope) Variables() map[string]value.Value {
	return s.root().vars
}
