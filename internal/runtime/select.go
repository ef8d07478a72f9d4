// SelectExec implements SELECT (spec §4.6). Grounded on razeghi71-dq/
// engine/engine.go's execFilter/execGroup/execSort pipeline, rearchitected
// from table-at-a-time stages to a single operator: the source is read to
// the end into memory and filtered by WHERE, then the grouping, ordering and
// TOP/LIMIT stages run over that slice. Rows are not streamed from the
// source one at a time, even for a plain SELECT.
package runtime

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/iodev"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/value"
)

// SelectExec is the compiled form of an ast.Select (spec §4.5). OpenSource
// is nil for a sourceless SELECT (e.g. `SELECT 1+1`, `SELECT @var`), in
// which case the body runs once against a single empty row.
type SelectExec struct {
	Fields  []ast.SelectItem
	Top     *int
	Where   ast.Condition
	GroupBy []ast.Field
	OrderBy []ast.OrderedColumn
	Limit   *int

	OpenSource func(scope *Scope) (iodev.InputSource, error)
}

func (x *SelectExec) Execute(scope *Scope) (ResultSet, error) {
	var src iodev.InputSource
	if x.OpenSource != nil {
		s, err := x.OpenSource(scope)
		if err != nil {
			return nil, qerr.NewRuntime(qerr.PhaseOpen, err)
		}
		src = s
	}

	grouping := len(x.GroupBy) > 0 || hasAggregate(x.Fields)
	groupNames := make(map[string]bool, len(x.GroupBy))
	for _, g := range x.GroupBy {
		groupNames[g.Name] = true
	}
	if grouping {
		for _, f := range x.Fields {
			if err := validateGrouped(f.Expr, groupNames); err != nil {
				return nil, err
			}
		}
	}

	rows, err := x.readFiltered(src, scope)
	if err != nil {
		closeSource(src)
		return nil, err
	}
	if err := closeSource(src); err != nil {
		return nil, err
	}

	var out []value.Row
	if grouping {
		names := make([]string, len(x.Fields))
		for i, f := range x.Fields {
			names[i] = projectedFieldName(f, i)
		}
		out, err = x.projectGrouped(rows, scope, names)
	} else {
		out, err = x.projectFlat(rows, scope)
	}
	if err != nil {
		return nil, err
	}

	if len(x.OrderBy) > 0 {
		if err := sortRows(out, x.OrderBy); err != nil {
			return nil, err
		}
	}

	limit := combineLimit(x.Top, x.Limit)
	if limit != nil && *limit < len(out) {
		out = out[:*limit]
	}
	return NewSliceResultSet(out), nil
}

func closeSource(src iodev.InputSource) error {
	if src == nil {
		return nil
	}
	if err := src.Close(); err != nil {
		return qerr.NewRuntime(qerr.PhaseClose, err)
	}
	return nil
}

// readFiltered pulls every row from src (or a single synthetic empty row
// when src is nil) that passes the WHERE clause.
func (x *SelectExec) readFiltered(src iodev.InputSource, scope *Scope) ([]value.Row, error) {
	var rows []value.Row
	if src == nil {
		rows = []value.Row{{}}
	} else {
		for {
			row, err := src.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, qerr.NewRuntime(qerr.PhaseRead, err)
			}
			rows = append(rows, row)
		}
	}
	if x.Where == nil {
		return rows, nil
	}
	kept := rows[:0]
	for _, row := range rows {
		child := bindRow(scope, row)
		res, err := EvalCond(x.Where, child)
		if err != nil {
			return nil, err
		}
		if res != nil && *res {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func bindRow(scope *Scope, row value.Row) *Scope {
	child := scope.Child()
	child.BindRow(row)
	return child
}

func (x *SelectExec) projectFlat(rows []value.Row, scope *Scope) ([]value.Row, error) {
	out := make([]value.Row, 0, len(rows))
	for _, row := range rows {
		child := bindRow(scope, row)
		names, vals, err := evalFields(x.Fields, child)
		if err != nil {
			return nil, err
		}
		out = append(out, value.NewRow(names, vals))
	}
	return out, nil
}

// evalFields projects one row, expanding '*' items to every column bound on
// scope by BindRow (spec §4.6 step 2).
func evalFields(fields []ast.SelectItem, scope *Scope) (names []string, vals []value.Value, err error) {
	for i, f := range fields {
		if _, ok := f.Expr.(ast.Star); ok {
			for _, n := range scope.LocalNames() {
				v, _ := scope.Get(n)
				names = append(names, n)
				vals = append(vals, v)
			}
			continue
		}
		v, err := Eval(f.Expr, scope)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, projectedFieldName(f, i))
		vals = append(vals, v)
	}
	return names, vals, nil
}

func (x *SelectExec) projectGrouped(rows []value.Row, scope *Scope, names []string) ([]value.Row, error) {
	type bucket struct {
		key  value.Row
		rows []value.Row
	}
	order := []string{}
	buckets := map[string]*bucket{}

	for _, row := range rows {
		keyNames := make([]string, len(x.GroupBy))
		keyVals := make([]value.Value, len(x.GroupBy))
		for i, g := range x.GroupBy {
			v, _ := row.Get(g.Name)
			keyNames[i] = g.Name
			keyVals[i] = v
		}
		keyRow := value.NewRow(keyNames, keyVals)
		k := keyRow.HashKeyRow()
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: keyRow}
			buckets[k] = b
			order = append(order, k)
		}
		b.rows = append(b.rows, row)
	}
	if len(buckets) == 0 && len(x.GroupBy) == 0 {
		// Aggregates with no GROUP BY over zero input rows still produce
		// exactly one bucket (e.g. SELECT COUNT(*) over an empty source).
		order = []string{""}
		buckets[""] = &bucket{}
	}

	out := make([]value.Row, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		keyScope := bindRow(scope, b.key)
		vals := make([]value.Value, 0, len(x.Fields))
		for _, f := range x.Fields {
			resolved, err := substituteAggregates(f.Expr, b.rows, scope)
			if err != nil {
				return nil, err
			}
			v, err := Eval(resolved, keyScope)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		out = append(out, value.NewRow(names, vals))
	}
	return out, nil
}

func hasAggregate(fields []ast.SelectItem) bool {
	for _, f := range fields {
		if containsAggregate(f.Expr) {
			return true
		}
	}
	return false
}

func containsAggregate(e ast.Expression) bool {
	switch n := e.(type) {
	case ast.AggregateCall:
		return true
	case ast.Arithmetic:
		return containsAggregate(n.Left) || containsAggregate(n.Right)
	case ast.Unary:
		return containsAggregate(n.Operand)
	case ast.Cast:
		return containsAggregate(n.Expr)
	case ast.FunctionCall:
		for _, a := range n.Args {
			if containsAggregate(a) {
				return true
			}
		}
		return false
	case ast.Case:
		for _, w := range n.Whens {
			if containsAggregate(w.Then) {
				return true
			}
		}
		if n.Else != nil {
			return containsAggregate(n.Else)
		}
		return false
	}
	return false
}

// validateGrouped enforces spec §4.6's non-grouped-non-aggregate rule: every
// field referenced outside an aggregate must name a GROUP BY column.
func validateGrouped(e ast.Expression, groupNames map[string]bool) error {
	switch n := e.(type) {
	case ast.AggregateCall:
		return nil
	case ast.FieldRef:
		if !groupNames[n.Name] {
			return qerr.NewSemantic("column "+n.Name+" must appear in GROUP BY or be used inside an aggregate function", nil)
		}
		return nil
	case ast.Star:
		return qerr.NewSemantic("'*' cannot be used in a GROUP BY projection", nil)
	case ast.Arithmetic:
		if err := validateGrouped(n.Left, groupNames); err != nil {
			return err
		}
		return validateGrouped(n.Right, groupNames)
	case ast.Unary:
		return validateGrouped(n.Operand, groupNames)
	case ast.Cast:
		return validateGrouped(n.Expr, groupNames)
	case ast.FunctionCall:
		for _, a := range n.Args {
			if err := validateGrouped(a, groupNames); err != nil {
				return err
			}
		}
		return nil
	case ast.Case:
		for _, w := range n.Whens {
			if err := validateGrouped(w.Then, groupNames); err != nil {
				return err
			}
		}
		if n.Else != nil {
			return validateGrouped(n.Else, groupNames)
		}
		return nil
	}
	return nil
}

// substituteAggregates replaces every AggregateCall leaf in e with a literal
// holding its evaluation over bucketRows, so the remainder of the
// expression can be evaluated by the ordinary scalar Eval against the
// group-key scope (spec §4.6 step 5).
func substituteAggregates(e ast.Expression, bucketRows []value.Row, baseScope *Scope) (ast.Expression, error) {
	switch n := e.(type) {
	case ast.AggregateCall:
		v, err := EvalAggregate(n, bucketRows, baseScope)
		if err != nil {
			return nil, err
		}
		return literalOf(v), nil
	case ast.Arithmetic:
		l, err := substituteAggregates(n.Left, bucketRows, baseScope)
		if err != nil {
			return nil, err
		}
		r, err := substituteAggregates(n.Right, bucketRows, baseScope)
		if err != nil {
			return nil, err
		}
		return ast.Arithmetic{Op: n.Op, Left: l, Right: r}, nil
	case ast.Unary:
		operand, err := substituteAggregates(n.Operand, bucketRows, baseScope)
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: n.Op, Operand: operand}, nil
	case ast.Cast:
		inner, err := substituteAggregates(n.Expr, bucketRows, baseScope)
		if err != nil {
			return nil, err
		}
		return ast.Cast{Expr: inner, Type: n.Type}, nil
	case ast.FunctionCall:
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			ra, err := substituteAggregates(a, bucketRows, baseScope)
			if err != nil {
				return nil, err
			}
			args[i] = ra
		}
		return ast.FunctionCall{Name: n.Name, Args: args, Distinct: n.Distinct}, nil
	case ast.Case:
		whens := make([]ast.WhenClause, len(n.Whens))
		for i, w := range n.Whens {
			then, err := substituteAggregates(w.Then, bucketRows, baseScope)
			if err != nil {
				return nil, err
			}
			whens[i] = ast.WhenClause{When: w.When, Then: then}
		}
		elseExpr := n.Else
		if elseExpr != nil {
			var err error
			elseExpr, err = substituteAggregates(elseExpr, bucketRows, baseScope)
			if err != nil {
				return nil, err
			}
		}
		return ast.Case{Whens: whens, Else: elseExpr}, nil
	default:
		return e, nil
	}
}

func literalOf(v value.Value) ast.Expression {
	switch v.Kind {
	case value.KindNull:
		return ast.Literal{Kind: ast.LitNull}
	case value.KindBool:
		b, _ := v.AsBool()
		return ast.Literal{Kind: ast.LitBool, Bool: b}
	case value.KindInt64:
		i, _ := v.AsInt()
		return ast.Literal{Kind: ast.LitInt, Int: i}
	case value.KindFloat64:
		f, _ := v.AsFloat()
		return ast.Literal{Kind: ast.LitFloat, Flt: f}
	default:
		return ast.Literal{Kind: ast.LitString, Str: v.AsString()}
	}
}

func sortRows(rows []value.Row, cols []ast.OrderedColumn) error {
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		for _, c := range cols {
			a, aok := rows[i].Get(c.Name)
			b, bok := rows[j].Get(c.Name)
			if !aok || !bok {
				sortErr = qerr.NewSemantic("ORDER BY column "+c.Name+" not found in projection", nil)
				return false
			}
			cmp, ok := a.Compare(b)
			if !ok {
				sortErr = qerr.NewSemantic(fmt.Sprintf("ORDER BY: %s and %s are not comparable", a.TypeName(), b.TypeName()), nil)
				return false
			}
			if cmp != 0 {
				if c.Ascending {
					return cmp < 0
				}
				return cmp > 0
			}
		}
		return false
	})
	return sortErr
}

// combineLimit folds TOP and LIMIT into the single smallest bound present
// (spec §9 Open Question 2: both are applied after ORDER BY with identical
// semantics, so the tighter of the two wins when both are given).
func combineLimit(top, limit *int) *int {
	if top == nil {
		return limit
	}
	if limit == nil {
		return top
	}
	if *top < *limit {
		return top
	}
	return limit
}

func projectedFieldName(item ast.SelectItem, idx int) string {
	if item.Alias != "" {
		return item.Alias
	}
	if fr, ok := item.Expr.(ast.FieldRef); ok {
		return fr.Name
	}
	if _, ok := item.Expr.(ast.Star); ok {
		return "*"
	}
	return "col" + strconv.Itoa(idx)
}
