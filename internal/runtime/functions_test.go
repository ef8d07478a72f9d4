package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/value"
)

func callFunc(t *testing.T, name string, args ...ast.Expression) (value.Value, error) {
	t.Helper()
	scope := NewRootScope()
	return Eval(ast.FunctionCall{Name: name, Args: args}, scope)
}

func strLit(s string) ast.Literal  { return ast.Literal{Kind: ast.LitString, Str: s} }
func intLit(i int64) ast.Literal   { return ast.Literal{Kind: ast.LitInt, Int: i} }
func fltLit(f float64) ast.Literal { return ast.Literal{Kind: ast.LitFloat, Flt: f} }

func TestScalarStringFunctions(t *testing.T) {
	v, err := callFunc(t, "upper", strLit("abc"))
	require.NoError(t, err)
	require.Equal(t, "ABC", v.AsString())

	v, err = callFunc(t, "lower", strLit("ABC"))
	require.NoError(t, err)
	require.Equal(t, "abc", v.AsString())

	v, err = callFunc(t, "length", strLit("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), mustInt(v))

	v, err = callFunc(t, "trim", strLit("  hi  "))
	require.NoError(t, err)
	require.Equal(t, "hi", v.AsString())
}

func TestScalarFunctionWrongArgCountErrors(t *testing.T) {
	_, err := callFunc(t, "upper", strLit("a"), strLit("b"))
	require.Error(t, err)
}

func TestSubstrClampsBounds(t *testing.T) {
	v, err := callFunc(t, "substr", strLit("hello world"), intLit(6), intLit(100))
	require.NoError(t, err)
	require.Equal(t, "world", v.AsString())

	v, err = callFunc(t, "substr", strLit("hello"), intLit(99), intLit(3))
	require.NoError(t, err)
	require.Equal(t, "", v.AsString())
}

func TestConcatSkipsNulls(t *testing.T) {
	v, err := callFunc(t, "concat", strLit("a"), ast.Literal{Kind: ast.LitNull}, strLit("b"))
	require.NoError(t, err)
	require.Equal(t, "ab", v.AsString())
}

func TestCoalesceReturnsFirstNonNull(t *testing.T) {
	v, err := callFunc(t, "coalesce", ast.Literal{Kind: ast.LitNull}, ast.Literal{Kind: ast.LitNull}, intLit(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), mustInt(v))
}

func TestNullifReturnsNullOnEqualOtherwiseLeft(t *testing.T) {
	v, err := callFunc(t, "nullif", intLit(1), intLit(1))
	require.NoError(t, err)
	require.True(t, v.IsNull())

	v, err = callFunc(t, "nullif", intLit(1), intLit(2))
	require.NoError(t, err)
	require.Equal(t, int64(1), mustInt(v))
}

func TestIfBranchesOnCondition(t *testing.T) {
	v, err := callFunc(t, "if", ast.Literal{Kind: ast.LitBool, Bool: true}, strLit("yes"), strLit("no"))
	require.NoError(t, err)
	require.Equal(t, "yes", v.AsString())

	v, err = callFunc(t, "if", ast.Literal{Kind: ast.LitBool, Bool: false}, strLit("yes"), strLit("no"))
	require.NoError(t, err)
	require.Equal(t, "no", v.AsString())
}

func TestNumericFunctions(t *testing.T) {
	v, err := callFunc(t, "abs", intLit(-5))
	require.NoError(t, err)
	require.Equal(t, int64(5), mustInt(v))

	v, err = callFunc(t, "round", fltLit(2.6))
	require.NoError(t, err)
	require.Equal(t, 3.0, mustFloat(v))

	v, err = callFunc(t, "ceil", fltLit(2.1))
	require.NoError(t, err)
	require.Equal(t, 3.0, mustFloat(v))

	v, err = callFunc(t, "floor", fltLit(2.9))
	require.NoError(t, err)
	require.Equal(t, 2.0, mustFloat(v))
}

func TestDatePartFunctions(t *testing.T) {
	v, err := callFunc(t, "year", strLit("2024-03-15"))
	require.NoError(t, err)
	require.Equal(t, int64(2024), mustInt(v))

	v, err = callFunc(t, "month", strLit("2024-03-15"))
	require.NoError(t, err)
	require.Equal(t, int64(3), mustInt(v))

	v, err = callFunc(t, "day", strLit("2024-03-15"))
	require.NoError(t, err)
	require.Equal(t, int64(15), mustInt(v))
}

func TestDatePartUnparsableErrors(t *testing.T) {
	_, err := callFunc(t, "year", strLit("not-a-date"))
	require.Error(t, err)
}

func TestAggregateFunctionsErrorOutsideGroupBy(t *testing.T) {
	_, err := callFunc(t, "count")
	require.Error(t, err)
}

func TestUnknownFunctionErrors(t *testing.T) {
	_, err := callFunc(t, "frobnicate")
	require.Error(t, err)
}

func rowsOf(col string, vals ...value.Value) []value.Row {
	rows := make([]value.Row, len(vals))
	for i, v := range vals {
		rows[i] = value.NewRow([]string{col}, []value.Value{v})
	}
	return rows
}

func TestEvalAggregateCountStar(t *testing.T) {
	rows := rowsOf("a", value.Int64(1), value.Int64(2), value.Int64(3))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggCount}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, int64(3), mustInt(v))
}

func TestEvalAggregateSumSkipsNullsAndKeepsIntType(t *testing.T) {
	rows := rowsOf("a", value.Int64(1), value.Null(), value.Int64(2))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggSum, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, value.KindInt64, v.Kind)
	require.Equal(t, int64(3), mustInt(v))
}

func TestEvalAggregateSumAllNullIsNull(t *testing.T) {
	rows := rowsOf("a", value.Null(), value.Null())
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggSum, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalAggregateAvg(t *testing.T) {
	rows := rowsOf("a", value.Int64(1), value.Int64(2), value.Int64(3))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggAvg, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, 2.0, mustFloat(v))
}

func TestEvalAggregateMinMax(t *testing.T) {
	rows := rowsOf("a", value.Int64(5), value.Int64(1), value.Int64(9))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggMin, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, int64(1), mustInt(v))

	v, err = EvalAggregate(ast.AggregateCall{Func: ast.AggMax, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, int64(9), mustInt(v))
}

func TestEvalAggregateDistinctDeduplicatesBeforeReducing(t *testing.T) {
	rows := rowsOf("a", value.Int64(1), value.Int64(1), value.Int64(2))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggSum, Arg: ast.FieldRef{Name: "a"}, Distinct: true}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, int64(3), mustInt(v))
}

func TestEvalAggregateVariancePopulation(t *testing.T) {
	rows := rowsOf("a", value.Float64(2), value.Float64(4), value.Float64(4), value.Float64(4), value.Float64(5), value.Float64(5), value.Float64(7), value.Float64(9))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggVariance, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.InDelta(t, 4.0, mustFloat(v), 0.0001)
}

func TestEvalAggregateFirstAndLastUseArrivalOrder(t *testing.T) {
	rows := rowsOf("a", value.Int64(10), value.Int64(20), value.Int64(30))
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggFirst, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, int64(10), mustInt(v))

	v, err = EvalAggregate(ast.AggregateCall{Func: ast.AggLast, Arg: ast.FieldRef{Name: "a"}}, rows, NewRootScope())
	require.NoError(t, err)
	require.Equal(t, int64(30), mustInt(v))
}

func TestEvalAggregateFirstLastOnEmptyBucketIsNull(t *testing.T) {
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggFirst, Arg: ast.FieldRef{Name: "a"}}, nil, NewRootScope())
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalAggregateMinMaxOnEmptyBucketIsNull(t *testing.T) {
	v, err := EvalAggregate(ast.AggregateCall{Func: ast.AggMin, Arg: ast.FieldRef{Name: "a"}}, nil, NewRootScope())
	require.NoError(t, err)
	require.True(t, v.IsNull())
}
