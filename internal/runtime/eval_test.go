package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/value"
)

func mustInt(v value.Value) int64 {
	i, _ := v.AsInt()
	return i
}

func mustFloat(v value.Value) float64 {
	f, _ := v.AsFloat()
	return f
}

func TestEvalLiteralsAndArithmetic(t *testing.T) {
	scope := NewRootScope()
	v, err := Eval(ast.Arithmetic{
		Op:   "+",
		Left: ast.Literal{Kind: ast.LitInt, Int: 1},
		Right: ast.Arithmetic{
			Op:    "*",
			Left:  ast.Literal{Kind: ast.LitInt, Int: 2},
			Right: ast.Literal{Kind: ast.LitInt, Int: 3},
		},
	}, scope)
	require.NoError(t, err)
	require.Equal(t, int64(7), mustInt(v))
}

func TestEvalArithmeticPromotesToFloatWhenEitherOperandIsFloat(t *testing.T) {
	scope := NewRootScope()
	v, err := Eval(ast.Arithmetic{
		Op:    "+",
		Left:  ast.Literal{Kind: ast.LitInt, Int: 1},
		Right: ast.Literal{Kind: ast.LitFloat, Flt: 1.5},
	}, scope)
	require.NoError(t, err)
	require.Equal(t, value.KindFloat64, v.Kind)
	require.Equal(t, 2.5, mustFloat(v))
}

func TestEvalArithmeticNullPropagates(t *testing.T) {
	scope := NewRootScope()
	v, err := Eval(ast.Arithmetic{
		Op:    "+",
		Left:  ast.Literal{Kind: ast.LitNull},
		Right: ast.Literal{Kind: ast.LitInt, Int: 1},
	}, scope)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalDivisionByZeroErrors(t *testing.T) {
	scope := NewRootScope()
	_, err := Eval(ast.Arithmetic{
		Op:    "/",
		Left:  ast.Literal{Kind: ast.LitInt, Int: 1},
		Right: ast.Literal{Kind: ast.LitInt, Int: 0},
	}, scope)
	require.Error(t, err)
}

func TestEvalStringConcatOperator(t *testing.T) {
	scope := NewRootScope()
	v, err := Eval(ast.Arithmetic{
		Op:    "||",
		Left:  ast.Literal{Kind: ast.LitString, Str: "foo"},
		Right: ast.Literal{Kind: ast.LitString, Str: "bar"},
	}, scope)
	require.NoError(t, err)
	require.Equal(t, "foobar", v.AsString())
}

func TestEvalUnaryMinus(t *testing.T) {
	scope := NewRootScope()
	v, err := Eval(ast.Unary{Op: "-", Operand: ast.Literal{Kind: ast.LitInt, Int: 5}}, scope)
	require.NoError(t, err)
	require.Equal(t, int64(-5), mustInt(v))
}

func TestEvalFieldRefQualifiedFallsBackToUnqualified(t *testing.T) {
	scope := NewRootScope()
	scope.Declare("col", value.Int64(9))
	v, err := Eval(ast.FieldRef{Qualifier: "t", Name: "col"}, scope)
	require.NoError(t, err)
	require.Equal(t, int64(9), mustInt(v))
}

func TestEvalFieldRefMissingIsNullNotError(t *testing.T) {
	scope := NewRootScope()
	v, err := Eval(ast.FieldRef{Name: "nope"}, scope)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalVariableRefUndeclaredErrors(t *testing.T) {
	scope := NewRootScope()
	_, err := Eval(ast.VariableRef{Name: "missing"}, scope)
	require.Error(t, err)
}

func TestEvalStarIsNotAScalar(t *testing.T) {
	scope := NewRootScope()
	_, err := Eval(ast.Star{}, scope)
	require.Error(t, err)
}

func TestEvalAggregateOutsideGroupByIsError(t *testing.T) {
	scope := NewRootScope()
	_, err := Eval(ast.AggregateCall{Func: ast.AggCount}, scope)
	require.Error(t, err)
}

func TestEvalCaseWithMatchingWhenAndElse(t *testing.T) {
	scope := NewRootScope()
	scope.Declare("a", value.Int64(5))
	c := ast.Case{
		Whens: []ast.WhenClause{
			{When: ast.Compare{Op: ast.OpGT, Left: ast.FieldRef{Name: "a"}, Right: ast.Literal{Kind: ast.LitInt, Int: 1}}, Then: ast.Literal{Kind: ast.LitString, Str: "big"}},
		},
		Else: ast.Literal{Kind: ast.LitString, Str: "small"},
	}
	v, err := Eval(c, scope)
	require.NoError(t, err)
	require.Equal(t, "big", v.AsString())
}

func TestEvalCaseFallsThroughToElseWhenNoWhenMatches(t *testing.T) {
	scope := NewRootScope()
	scope.Declare("a", value.Int64(0))
	c := ast.Case{
		Whens: []ast.WhenClause{
			{When: ast.Compare{Op: ast.OpGT, Left: ast.FieldRef{Name: "a"}, Right: ast.Literal{Kind: ast.LitInt, Int: 1}}, Then: ast.Literal{Kind: ast.LitString, Str: "big"}},
		},
		Else: ast.Literal{Kind: ast.LitString, Str: "small"},
	}
	v, err := Eval(c, scope)
	require.NoError(t, err)
	require.Equal(t, "small", v.AsString())
}

func TestEvalCastToEachType(t *testing.T) {
	scope := NewRootScope()

	v, err := Eval(ast.Cast{Expr: ast.Literal{Kind: ast.LitString, Str: "42"}, Type: "INTEGER"}, scope)
	require.NoError(t, err)
	require.Equal(t, int64(42), mustInt(v))

	v, err = Eval(ast.Cast{Expr: ast.Literal{Kind: ast.LitString, Str: "3.5"}, Type: "DOUBLE"}, scope)
	require.NoError(t, err)
	require.Equal(t, 3.5, mustFloat(v))

	v, err = Eval(ast.Cast{Expr: ast.Literal{Kind: ast.LitString, Str: "true"}, Type: "BOOLEAN"}, scope)
	require.NoError(t, err)
	b, _ := v.AsBool()
	require.True(t, b)

	v, err = Eval(ast.Cast{Expr: ast.Literal{Kind: ast.LitInt, Int: 7}, Type: "STRING"}, scope)
	require.NoError(t, err)
	require.Equal(t, "7", v.AsString())

	v, err = Eval(ast.Cast{Expr: ast.Literal{Kind: ast.LitNull}, Type: "INTEGER"}, scope)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalCastUnknownTypeErrors(t *testing.T) {
	scope := NewRootScope()
	_, err := Eval(ast.Cast{Expr: ast.Literal{Kind: ast.LitInt, Int: 1}, Type: "WEIRD"}, scope)
	require.Error(t, err)
}

func TestEvalScalarSubqueryUsesCompileFn(t *testing.T) {
	orig := CompileFn
	defer func() { CompileFn = orig }()
	CompileFn = func(stmt ast.Statement) (Executable, error) {
		return execFn(func(scope *Scope) (ResultSet, error) {
			return NewSliceResultSet([]value.Row{
				value.NewRow([]string{"x"}, []value.Value{value.Int64(10)}),
			}), nil
		}), nil
	}
	scope := NewRootScope()
	v, err := Eval(ast.Subquery{Query: &ast.Select{}}, scope)
	require.NoError(t, err)
	require.Equal(t, int64(10), mustInt(v))
}

func TestEvalScalarSubqueryEmptyResultIsNull(t *testing.T) {
	orig := CompileFn
	defer func() { CompileFn = orig }()
	CompileFn = func(stmt ast.Statement) (Executable, error) {
		return execFn(func(scope *Scope) (ResultSet, error) {
			return NewSliceResultSet(nil), nil
		}), nil
	}
	scope := NewRootScope()
	v, err := Eval(ast.Subquery{Query: &ast.Select{}}, scope)
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

// execFn adapts a plain function to the Executable interface for tests that
// need to stub CompileFn without depending on the compiler package.
type execFn func(scope *Scope) (ResultSet, error)

func (f execFn) Execute(scope *Scope) (ResultSet, error) { return f(scope) }

func TestEvalCondAndOrNotThreeValuedLogic(t *testing.T) {
	scope := NewRootScope()

	trueC := ast.Compare{Op: ast.OpEQ, Left: ast.Literal{Kind: ast.LitInt, Int: 1}, Right: ast.Literal{Kind: ast.LitInt, Int: 1}}
	falseC := ast.Compare{Op: ast.OpEQ, Left: ast.Literal{Kind: ast.LitInt, Int: 1}, Right: ast.Literal{Kind: ast.LitInt, Int: 2}}
	nullC := ast.Compare{Op: ast.OpEQ, Left: ast.Literal{Kind: ast.LitNull}, Right: ast.Literal{Kind: ast.LitInt, Int: 1}}

	r, err := EvalCond(ast.And{Left: trueC, Right: falseC}, scope)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.False(t, *r)

	r, err = EvalCond(ast.And{Left: trueC, Right: nullC}, scope)
	require.NoError(t, err)
	require.Nil(t, r, "AND of true and unknown is unknown")

	r, err = EvalCond(ast.And{Left: falseC, Right: nullC}, scope)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.False(t, *r, "AND short-circuits to false once one side is known false, regardless of the other side's NULL")

	r, err = EvalCond(ast.Or{Left: falseC, Right: nullC}, scope)
	require.NoError(t, err)
	require.Nil(t, r)

	r, err = EvalCond(ast.Or{Left: trueC, Right: nullC}, scope)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.True(t, *r, "OR short-circuits to true once one side is known true")

	r, err = EvalCond(ast.Not{Operand: nullC}, scope)
	require.NoError(t, err)
	require.Nil(t, r, "NOT of unknown is unknown")
}

func TestEvalCondCompareOperators(t *testing.T) {
	scope := NewRootScope()
	cases := []struct {
		op   ast.CompareOp
		l, r int64
		want bool
	}{
		{ast.OpLT, 1, 2, true},
		{ast.OpLE, 2, 2, true},
		{ast.OpGT, 3, 2, true},
		{ast.OpGE, 2, 2, true},
		{ast.OpNE, 1, 2, true},
	}
	for _, c := range cases {
		r, err := EvalCond(ast.Compare{Op: c.op, Left: ast.Literal{Kind: ast.LitInt, Int: c.l}, Right: ast.Literal{Kind: ast.LitInt, Int: c.r}}, scope)
		require.NoError(t, err)
		require.NotNil(t, r)
		require.Equal(t, c.want, *r)
	}
}

func TestEvalCondCompareNullIsUnknown(t *testing.T) {
	scope := NewRootScope()
	r, err := EvalCond(ast.Compare{Op: ast.OpLT, Left: ast.Literal{Kind: ast.LitNull}, Right: ast.Literal{Kind: ast.LitInt, Int: 1}}, scope)
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestEvalCondLikeAndNotLike(t *testing.T) {
	scope := NewRootScope()
	r, err := EvalCond(ast.Like{Expr: ast.Literal{Kind: ast.LitString, Str: "hello"}, Pattern: ast.Literal{Kind: ast.LitString, Str: "h%"}}, scope)
	require.NoError(t, err)
	require.True(t, *r)

	r, err = EvalCond(ast.Like{Expr: ast.Literal{Kind: ast.LitString, Str: "hello"}, Pattern: ast.Literal{Kind: ast.LitString, Str: "z%"}, Negated: true}, scope)
	require.NoError(t, err)
	require.True(t, *r)
}

func TestEvalCondRLike(t *testing.T) {
	scope := NewRootScope()
	r, err := EvalCond(ast.RLike{Expr: ast.Literal{Kind: ast.LitString, Str: "hello123"}, Pattern: ast.Literal{Kind: ast.LitString, Str: "[0-9]+$"}}, scope)
	require.NoError(t, err)
	require.True(t, *r)
}

func TestEvalCondIsNullAndIsNotNull(t *testing.T) {
	scope := NewRootScope()
	r, err := EvalCond(ast.IsNull{Expr: ast.Literal{Kind: ast.LitNull}}, scope)
	require.NoError(t, err)
	require.True(t, *r)

	r, err = EvalCond(ast.IsNull{Expr: ast.Literal{Kind: ast.LitInt, Int: 1}, Negated: true}, scope)
	require.NoError(t, err)
	require.True(t, *r)
}

func TestEvalCondExprConditionRequiresBooleanResult(t *testing.T) {
	scope := NewRootScope()
	_, err := EvalCond(ast.ExprCondition{Expr: ast.Literal{Kind: ast.LitInt, Int: 1}}, scope)
	require.Error(t, err)

	r, err := EvalCond(ast.ExprCondition{Expr: ast.Literal{Kind: ast.LitBool, Bool: true}}, scope)
	require.NoError(t, err)
	require.True(t, *r)
}

func TestEvalCondExprConditionNullIsUnknown(t *testing.T) {
	scope := NewRootScope()
	r, err := EvalCond(ast.ExprCondition{Expr: ast.Literal{Kind: ast.LitNull}}, scope)
	require.NoError(t, err)
	require.Nil(t, r)
}
