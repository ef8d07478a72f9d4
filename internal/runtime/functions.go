// Scalar function dispatch and aggregate accumulation (spec §4.4, §4.6).
// Grounded on razeghi71-dq/engine/functions.go's evalFunc/EvalAggregate
// pair, generalized from dq's reduce-over-nested-table shape to qwery's
// GROUP BY accumulator model (spec §4.6 step 5 operates over a
// []value.Row per group rather than a *table.Table).
package runtime

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/value"
)

func evalFunctionCall(n ast.FunctionCall, scope *Scope) (value.Value, error) {
	switch strings.ToLower(n.Name) {
	case "upper":
		return call1(n.Args, scope, func(s string) value.Value { return value.String(strings.ToUpper(s)) })
	case "lower":
		return call1(n.Args, scope, func(s string) value.Value { return value.String(strings.ToLower(s)) })
	case "len", "length":
		return call1(n.Args, scope, func(s string) value.Value { return value.Int64(int64(len(s))) })
	case "trim":
		return call1(n.Args, scope, func(s string) value.Value { return value.String(strings.TrimSpace(s)) })
	case "substr":
		return callSubstr(n.Args, scope)
	case "concat":
		return callConcat(n.Args, scope)
	case "coalesce":
		return callCoalesce(n.Args, scope)
	case "nullif":
		return callNullif(n.Args, scope)
	case "if":
		return callIf(n.Args, scope)
	case "abs":
		return callNumeric1(n.Args, scope, "abs", math.Abs)
	case "round":
		return callNumeric1(n.Args, scope, "round", func(f float64) float64 { return math.Round(f) })
	case "ceil":
		return callNumeric1(n.Args, scope, "ceil", math.Ceil)
	case "floor":
		return callNumeric1(n.Args, scope, "floor", math.Floor)
	case "now":
		return value.Date(time.Now()), nil
	case "year":
		return callDatePart(n.Args, scope, "year")
	case "month":
		return callDatePart(n.Args, scope, "month")
	case "day":
		return callDatePart(n.Args, scope, "day")
	case "count", "sum", "avg", "min", "max", "variance", "first", "last":
		return value.Null(), qerr.NewEval(fmt.Sprintf("aggregate function %q can only be used in a SELECT projection under GROUP BY", n.Name), nil)
	default:
		return value.Null(), qerr.NewEval("unknown function "+n.Name, nil)
	}
}

func call1(args []ast.Expression, scope *Scope, f func(string) value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), qerr.NewEval(fmt.Sprintf("function takes 1 argument, got %d", len(args)), nil)
	}
	v, err := Eval(args[0], scope)
	if err != nil {
		return value.Null(), err
	}
	if v.IsNull() {
		return value.Null(), nil
	}
	return f(v.AsString()), nil
}

func callSubstr(args []ast.Expression, scope *Scope) (value.Value, error) {
	if len(args) != 3 {
		return value.Null(), qerr.NewEval(fmt.Sprintf("substr() takes 3 arguments (string, start, length), got %d", len(args)), nil)
	}
	sv, err := Eval(args[0], scope)
	if err != nil {
		return value.Null(), err
	}
	if sv.IsNull() {
		return value.Null(), nil
	}
	s := sv.AsString()

	startV, err := Eval(args[1], scope)
	if err != nil {
		return value.Null(), err
	}
	lenV, err := Eval(args[2], scope)
	if err != nil {
		return value.Null(), err
	}
	startF, ok := startV.AsFloat()
	if !ok {
		return value.Null(), qerr.NewEval("substr: start must be a number", nil)
	}
	lenF, ok := lenV.AsFloat()
	if !ok {
		return value.Null(), qerr.NewEval("substr: length must be a number", nil)
	}
	start := int(startF)
	length := int(lenF)
	if start < 0 {
		start = 0
	}
	if start >= len(s) {
		return value.String(""), nil
	}
	end := start + length
	if end > len(s) {
		end = len(s)
	}
	return value.String(s[start:end]), nil
}

func callConcat(args []ast.Expression, scope *Scope) (value.Value, error) {
	if len(args) == 0 {
		return value.Null(), qerr.NewEval("concat() requires at least 1 argument", nil)
	}
	var sb strings.Builder
	for _, a := range args {
		v, err := Eval(a, scope)
		if err != nil {
			return value.Null(), err
		}
		if v.IsNull() {
			continue
		}
		sb.WriteString(v.AsString())
	}
	return value.String(sb.String()), nil
}

func callNullif(args []ast.Expression, scope *Scope) (value.Value, error) {
	if len(args) != 2 {
		return value.Null(), qerr.NewEval(fmt.Sprintf("nullif() takes 2 arguments, got %d", len(args)), nil)
	}
	a, err := Eval(args[0], scope)
	if err != nil {
		return value.Null(), err
	}
	b, err := Eval(args[1], scope)
	if err != nil {
		return value.Null(), err
	}
	if a.Equal(b) {
		return value.Null(), nil
	}
	return a, nil
}

func callNumeric1(args []ast.Expression, scope *Scope, name string, f func(float64) float64) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), qerr.NewEval(fmt.Sprintf("%s() takes 1 argument, got %d", name, len(args)), nil)
	}
	v, err := Eval(args[0], scope)
	if err != nil {
		return value.Null(), err
	}
	if v.IsNull() {
		return value.Null(), nil
	}
	n, ok := v.AsFloat()
	if !ok {
		return value.Null(), qerr.NewEval(fmt.Sprintf("%s(): non-numeric value %q", name, v.AsString()), nil)
	}
	result := f(n)
	if v.Kind == value.KindInt64 && name == "abs" {
		return value.Int64(int64(result)), nil
	}
	return value.Float64(result), nil
}

func callCoalesce(args []ast.Expression, scope *Scope) (value.Value, error) {
	if len(args) == 0 {
		return value.Null(), qerr.NewEval("coalesce() requires at least 1 argument", nil)
	}
	for _, a := range args {
		v, err := Eval(a, scope)
		if err != nil {
			return value.Null(), err
		}
		if !v.IsNull() {
			return v, nil
		}
	}
	return value.Null(), nil
}

func callIf(args []ast.Expression, scope *Scope) (value.Value, error) {
	if len(args) != 3 {
		return value.Null(), qerr.NewEval(fmt.Sprintf("if() takes 3 arguments (condition, then, else), got %d", len(args)), nil)
	}
	cv, err := Eval(args[0], scope)
	if err != nil {
		return value.Null(), err
	}
	b, ok := cv.AsBool()
	if !ok {
		return value.Null(), qerr.NewEval("if: condition must be boolean", nil)
	}
	if b {
		return Eval(args[1], scope)
	}
	return Eval(args[2], scope)
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

func callDatePart(args []ast.Expression, scope *Scope, part string) (value.Value, error) {
	if len(args) != 1 {
		return value.Null(), qerr.NewEval(fmt.Sprintf("%s() takes 1 argument, got %d", part, len(args)), nil)
	}
	v, err := Eval(args[0], scope)
	if err != nil {
		return value.Null(), err
	}
	if v.IsNull() {
		return value.Null(), nil
	}
	if v.Kind == value.KindDate {
		return datePartOf(v.TimeVal(), part), nil
	}
	s := v.AsString()
	var t time.Time
	parsed := false
	for _, layout := range dateFormats {
		if t, err = time.Parse(layout, s); err == nil {
			parsed = true
			break
		}
	}
	if !parsed {
		return value.Null(), qerr.NewEval(fmt.Sprintf("%s(): cannot parse %q as a date", part, s), nil)
	}
	return datePartOf(t, part), nil
}

func datePartOf(t time.Time, part string) value.Value {
	switch part {
	case "year":
		return value.Int64(int64(t.Year()))
	case "month":
		return value.Int64(int64(t.Month()))
	case "day":
		return value.Int64(int64(t.Day()))
	}
	return value.Null()
}

// EvalAggregate evaluates an aggregate expression over one GROUP BY bucket
// (spec §4.6 step 5). baseScope supplies variable/view lookups; each row in
// rows is bound as the current row in turn.
func EvalAggregate(agg ast.AggregateCall, rows []value.Row, baseScope *Scope) (value.Value, error) {
	if agg.Func == ast.AggCount && agg.Arg == nil {
		return value.Int64(int64(len(rows))), nil
	}
	if agg.Func == ast.AggFirst || agg.Func == ast.AggLast {
		return aggFirstLast(agg, rows, baseScope)
	}
	vals, err := evalOverRows(agg.Arg, rows, baseScope)
	if err != nil {
		return value.Null(), err
	}
	if agg.Distinct {
		vals = dedupValues(vals)
	}
	switch agg.Func {
	case ast.AggCount:
		n := 0
		for _, v := range vals {
			if !v.IsNull() {
				n++
			}
		}
		return value.Int64(int64(n)), nil
	case ast.AggSum:
		return aggSum(vals)
	case ast.AggAvg:
		return aggAvg(vals)
	case ast.AggMin:
		return aggMinMax(vals, true)
	case ast.AggMax:
		return aggMinMax(vals, false)
	case ast.AggVariance:
		return aggVariance(vals)
	}
	return value.Null(), qerr.NewEval("unknown aggregate function "+string(agg.Func), nil)
}

// aggFirstLast evaluates agg.Arg against the group's first or last row in
// arrival order (the order rows were read from the source, preserved
// through filtering and grouping), rather than over the whole bucket.
func aggFirstLast(agg ast.AggregateCall, rows []value.Row, baseScope *Scope) (value.Value, error) {
	if len(rows) == 0 {
		return value.Null(), nil
	}
	idx := 0
	if agg.Func == ast.AggLast {
		idx = len(rows) - 1
	}
	child := baseScope.Child()
	row := rows[idx]
	for i, name := range row.Names {
		child.SetLocal(name, row.Values[i])
	}
	return Eval(agg.Arg, child)
}

func evalOverRows(expr ast.Expression, rows []value.Row, baseScope *Scope) ([]value.Value, error) {
	vals := make([]value.Value, 0, len(rows))
	for _, row := range rows {
		child := baseScope.Child()
		for i, name := range row.Names {
			child.SetLocal(name, row.Values[i])
		}
		v, err := Eval(expr, child)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func dedupValues(vals []value.Value) []value.Value {
	seen := make(map[string]bool, len(vals))
	out := make([]value.Value, 0, len(vals))
	for _, v := range vals {
		k := v.HashKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func aggSum(vals []value.Value) (value.Value, error) {
	var sum float64
	intSum, allInt, any := int64(0), true, false
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), qerr.NewEval("sum: non-numeric value "+v.AsString(), nil)
		}
		sum += f
		any = true
		if v.Kind == value.KindInt64 {
			i, _ := v.AsInt()
			intSum += i
		} else {
			allInt = false
		}
	}
	if !any {
		return value.Null(), nil
	}
	if allInt {
		return value.Int64(intSum), nil
	}
	return value.Float64(sum), nil
}

func aggAvg(vals []value.Value) (value.Value, error) {
	var sum float64
	count := 0
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), qerr.NewEval("avg: non-numeric value "+v.AsString(), nil)
		}
		sum += f
		count++
	}
	if count == 0 {
		return value.Null(), nil
	}
	return value.Float64(sum / float64(count)), nil
}

func aggMinMax(vals []value.Value, wantMin bool) (value.Value, error) {
	var best value.Value
	any := false
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if !any {
			best = v
			any = true
			continue
		}
		cmp, ok := best.Compare(v)
		if !ok {
			return value.Null(), qerr.NewEval("min/max: incomparable values", nil)
		}
		if (wantMin && cmp > 0) || (!wantMin && cmp < 0) {
			best = v
		}
	}
	if !any {
		return value.Null(), nil
	}
	return best, nil
}

// aggVariance computes the population variance via Welford's online
// algorithm (spec §4.6: VARIANCE is numerically stable over streamed
// buckets rather than a naive sum-of-squares two-pass formula).
func aggVariance(vals []value.Value) (value.Value, error) {
	var mean, m2 float64
	n := 0
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		f, ok := v.AsFloat()
		if !ok {
			return value.Null(), qerr.NewEval("variance: non-numeric value "+v.AsString(), nil)
		}
		n++
		delta := f - mean
		mean += delta / float64(n)
		m2 += delta * (f - mean)
	}
	if n == 0 {
		return value.Null(), nil
	}
	return value.Float64(m2 / float64(n)), nil
}
