package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/token"
)

func parse(t *testing.T, src string) (*Parser, *token.Stream) {
	t.Helper()
	s, err := token.New(src)
	require.NoError(t, err)
	return New(nil), s
}

func TestParseArithmeticPrecedence(t *testing.T) {
	p, s := parse(t, "1 + 2 * 3")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	arith, ok := e.(ast.Arithmetic)
	require.True(t, ok)
	require.Equal(t, "+", arith.Op)
	require.Equal(t, ast.Literal{Kind: ast.LitInt, Int: 1}, arith.Left)
	mul, ok := arith.Right.(ast.Arithmetic)
	require.True(t, ok)
	require.Equal(t, "*", mul.Op)
}

func TestParseUnaryMinus(t *testing.T) {
	p, s := parse(t, "-5")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	u, ok := e.(ast.Unary)
	require.True(t, ok)
	require.Equal(t, "-", u.Op)
}

func TestParseStringConcat(t *testing.T) {
	p, s := parse(t, "'a' || 'b'")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	arith, ok := e.(ast.Arithmetic)
	require.True(t, ok)
	require.Equal(t, "||", arith.Op)
}

func TestParseParenthesizedExpression(t *testing.T) {
	p, s := parse(t, "(1 + 2) * 3")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	mul, ok := e.(ast.Arithmetic)
	require.True(t, ok)
	require.Equal(t, "*", mul.Op)
	_, ok = mul.Left.(ast.Arithmetic)
	require.True(t, ok)
}

func TestParseFieldRefQualified(t *testing.T) {
	p, s := parse(t, "t.col")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	fr, ok := e.(ast.FieldRef)
	require.True(t, ok)
	require.Equal(t, "t", fr.Qualifier)
	require.Equal(t, "col", fr.Name)
}

func TestParseVariableRef(t *testing.T) {
	p, s := parse(t, "@myvar")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	vr, ok := e.(ast.VariableRef)
	require.True(t, ok)
	require.Equal(t, "myvar", vr.Name)
}

func TestParseFunctionCall(t *testing.T) {
	p, s := parse(t, "upper(name)")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	fc, ok := e.(ast.FunctionCall)
	require.True(t, ok)
	require.Equal(t, "upper", fc.Name)
	require.Len(t, fc.Args, 1)
}

func TestParseAggregateCallCountStar(t *testing.T) {
	p, s := parse(t, "COUNT(*)")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	agg, ok := e.(ast.AggregateCall)
	require.True(t, ok)
	require.Equal(t, ast.AggCount, agg.Func)
	require.Nil(t, agg.Arg)
}

func TestParseAggregateCallDistinct(t *testing.T) {
	p, s := parse(t, "SUM(DISTINCT amount)")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	agg, ok := e.(ast.AggregateCall)
	require.True(t, ok)
	require.Equal(t, ast.AggSum, agg.Func)
	require.True(t, agg.Distinct)
}

func TestParseCaseExpression(t *testing.T) {
	p, s := parse(t, "CASE WHEN a > 1 THEN 'big' ELSE 'small' END")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	c, ok := e.(ast.Case)
	require.True(t, ok)
	require.Len(t, c.Whens, 1)
	require.NotNil(t, c.Else)
}

func TestParseCaseRequiresAtLeastOneWhen(t *testing.T) {
	p, s := parse(t, "CASE ELSE 1 END")
	_, err := p.ParseExpression(s)
	require.Error(t, err)
}

func TestParseCastExpression(t *testing.T) {
	p, s := parse(t, "CAST(x AS INTEGER)")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	c, ok := e.(ast.Cast)
	require.True(t, ok)
	require.Equal(t, "INTEGER", c.Type)
}

func TestParseStarExpression(t *testing.T) {
	p, s := parse(t, "*")
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	_, ok := e.(ast.Star)
	require.True(t, ok)
}

func TestParseConditionComparisonAndLogic(t *testing.T) {
	p, s := parse(t, "a = 1 AND b > 2 OR NOT c < 3")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	or, ok := cond.(ast.Or)
	require.True(t, ok)
	and, ok := or.Left.(ast.And)
	require.True(t, ok)
	_, ok = and.Left.(ast.Compare)
	require.True(t, ok)
	not, ok := or.Right.(ast.Not)
	require.True(t, ok)
	_, ok = not.Operand.(ast.Compare)
	require.True(t, ok)
}

func TestParseConditionLikeAndNotLike(t *testing.T) {
	p, s := parse(t, "name LIKE 'A%'")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	like, ok := cond.(ast.Like)
	require.True(t, ok)
	require.False(t, like.Negated)

	p2, s2 := parse(t, "name NOT LIKE 'A%'")
	cond2, err := p2.ParseCondition(s2)
	require.NoError(t, err)
	like2, ok := cond2.(ast.Like)
	require.True(t, ok)
	require.True(t, like2.Negated)
}

func TestParseConditionRLike(t *testing.T) {
	p, s := parse(t, "name RLIKE '^A'")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	_, ok := cond.(ast.RLike)
	require.True(t, ok)
}

func TestParseConditionIsNullAndIsNotNull(t *testing.T) {
	p, s := parse(t, "a IS NULL")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	isnull, ok := cond.(ast.IsNull)
	require.True(t, ok)
	require.False(t, isnull.Negated)

	p2, s2 := parse(t, "a IS NOT NULL")
	cond2, err := p2.ParseCondition(s2)
	require.NoError(t, err)
	isnull2, ok := cond2.(ast.IsNull)
	require.True(t, ok)
	require.True(t, isnull2.Negated)
}

func TestParseConditionParenthesizedGroup(t *testing.T) {
	p, s := parse(t, "(a = 1 OR b = 2) AND c = 3")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	and, ok := cond.(ast.And)
	require.True(t, ok)
	_, ok = and.Left.(ast.Or)
	require.True(t, ok)
}

func TestParseConditionBareExpressionFallback(t *testing.T) {
	p, s := parse(t, "is_active")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	ec, ok := cond.(ast.ExprCondition)
	require.True(t, ok)
	_, ok = ec.Expr.(ast.FieldRef)
	require.True(t, ok)
}

func TestParseConditionNegatedExpressionFallback(t *testing.T) {
	p, s := parse(t, "is_active NOT")
	cond, err := p.ParseCondition(s)
	require.NoError(t, err)
	not, ok := cond.(ast.Not)
	require.True(t, ok)
	_, ok = not.Operand.(ast.ExprCondition)
	require.True(t, ok)
}

func TestParseSubqueryAsExpressionUsesInjectedParser(t *testing.T) {
	called := false
	p := New(func(s *token.Stream) (ast.Statement, error) {
		called = true
		// consume a minimal fake SELECT ... token run
		for !s.AtEOF() && !s.Is(")") {
			s.Next()
		}
		return &ast.Select{}, nil
	})
	s, err := token.New("(SELECT 1)")
	require.NoError(t, err)
	e, err := p.ParseExpression(s)
	require.NoError(t, err)
	require.True(t, called)
	_, ok := e.(ast.Subquery)
	require.True(t, ok)
}
