// Package expr implements qwery's Expression & Condition recursive-descent
// parser (spec §4.4), built on the tokenizer in internal/token. Grounded on
// razeghi71-dq/engine/expr.go and parser/parser.go's precedence-climbing
// loop (parseExprPrec), generalized from dq's 3-op arithmetic set to the
// spec's full OR/AND/NOT/comparison/additive/multiplicative/unary table and
// split into a Condition layer (OR/AND/NOT/comparison) over an Expression
// layer (additive/multiplicative/unary/primary), since qwery keeps
// Expression and Condition as distinct closed sum types (spec §3) rather
// than dq's single Expr interface.
package expr

import (
	"strconv"
	"strings"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/token"
)

// aggregateNames is the fixed recognised-aggregate set (spec §4.4).
var aggregateNames = map[string]ast.AggregateFunc{
	"count":    ast.AggCount,
	"sum":      ast.AggSum,
	"avg":      ast.AggAvg,
	"min":      ast.AggMin,
	"max":      ast.AggMax,
	"variance": ast.AggVariance,
	"first":    ast.AggFirst,
	"last":     ast.AggLast,
}

// SubqueryParser parses a parenthesised statement used as a scalar
// expression; injected by the statement compiler to avoid a package cycle
// between expr and parser.
type SubqueryParser func(s *token.Stream) (ast.Statement, error)

// Parser parses expressions and conditions from a token.Stream.
type Parser struct {
	ParseSubquery SubqueryParser
}

// New builds a Parser. parseSubquery may be nil if scalar subqueries are
// not needed by the caller (e.g. tests exercising pure arithmetic).
func New(parseSubquery SubqueryParser) *Parser {
	return &Parser{ParseSubquery: parseSubquery}
}

func syntaxErr(s *token.Stream, msg string) error {
	tok := s.Peek()
	return qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, msg)
}

// ParseCondition parses a boolean Condition at the OR precedence level
// (spec §4.4's entry point for %c: tags).
func (p *Parser) ParseCondition(s *token.Stream) (ast.Condition, error) {
	return p.parseOr(s)
}

func (p *Parser) parseOr(s *token.Stream) (ast.Condition, error) {
	left, err := p.parseAnd(s)
	if err != nil {
		return nil, err
	}
	for s.Is("OR") {
		s.Next()
		right, err := p.parseAnd(s)
		if err != nil {
			return nil, err
		}
		left = ast.Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd(s *token.Stream) (ast.Condition, error) {
	left, err := p.parseNot(s)
	if err != nil {
		return nil, err
	}
	for s.Is("AND") {
		s.Next()
		right, err := p.parseNot(s)
		if err != nil {
			return nil, err
		}
		left = ast.And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot(s *token.Stream) (ast.Condition, error) {
	if s.Is("NOT") {
		s.Next()
		operand, err := p.parseNot(s)
		if err != nil {
			return nil, err
		}
		return ast.Not{Operand: operand}, nil
	}
	return p.parseComparison(s)
}

func (p *Parser) parseComparison(s *token.Stream) (ast.Condition, error) {
	// Parenthesised condition group.
	if s.Peek().Kind == token.Symbol && s.Peek().Text == "(" {
		s.Mark()
		s.Next()
		cond, err := p.parseOr(s)
		if err == nil {
			if _, cerr := s.Expect(")"); cerr == nil {
				s.Commit()
				return cond, nil
			}
		}
		s.Reset()
	}

	left, err := p.ParseExpression(s)
	if err != nil {
		return nil, err
	}

	negated := false
	if s.Is("NOT") {
		s.Next()
		negated = true
	}

	switch {
	case s.Is("LIKE"):
		s.Next()
		pattern, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		return ast.Like{Expr: left, Pattern: pattern, Negated: negated}, nil
	case s.Is("RLIKE"):
		s.Next()
		pattern, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		return ast.RLike{Expr: left, Pattern: pattern, Negated: negated}, nil
	case s.Is("IS"):
		if negated {
			return nil, syntaxErr(s, "unexpected NOT before IS")
		}
		s.Next()
		isNeg := false
		if s.Is("NOT") {
			s.Next()
			isNeg = true
		}
		if _, err := s.Expect("NULL"); err != nil {
			return nil, err
		}
		return ast.IsNull{Expr: left, Negated: isNeg}, nil
	}

	if negated {
		return ast.Not{Operand: ast.ExprCondition{Expr: left}}, nil
	}

	op, ok := compareOp(s)
	if ok {
		s.Next()
		right, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		return ast.Compare{Op: op, Left: left, Right: right}, nil
	}

	return ast.ExprCondition{Expr: left}, nil
}

func compareOp(s *token.Stream) (ast.CompareOp, bool) {
	tok := s.Peek()
	if tok.Kind != token.Symbol {
		return "", false
	}
	switch tok.Text {
	case "=":
		return ast.OpEQ, true
	case "<>", "!=":
		return ast.OpNE, true
	case "<":
		return ast.OpLT, true
	case "<=":
		return ast.OpLE, true
	case ">":
		return ast.OpGT, true
	case ">=":
		return ast.OpGE, true
	}
	return "", false
}

// ParseExpression parses a value expression at the additive precedence
// level (spec §4.4's entry point for %e: tags).
func (p *Parser) ParseExpression(s *token.Stream) (ast.Expression, error) {
	return p.parseAdditive(s)
}

func (p *Parser) parseAdditive(s *token.Stream) (ast.Expression, error) {
	left, err := p.parseMultiplicative(s)
	if err != nil {
		return nil, err
	}
	for {
		tok := s.Peek()
		if tok.Kind != token.Symbol {
			break
		}
		var op string
		switch tok.Text {
		case "+":
			op = "+"
		case "-":
			op = "-"
		default:
			if s.Is("||") {
				op = "||"
			} else {
				goto done
			}
		}
		s.Next()
		right, err := p.parseMultiplicative(s)
		if err != nil {
			return nil, err
		}
		left = ast.Arithmetic{Op: op, Left: left, Right: right}
	}
done:
	return left, nil
}

func (p *Parser) parseMultiplicative(s *token.Stream) (ast.Expression, error) {
	left, err := p.parseUnary(s)
	if err != nil {
		return nil, err
	}
	for {
		tok := s.Peek()
		if tok.Kind != token.Symbol {
			break
		}
		var op string
		switch tok.Text {
		case "*":
			op = "*"
		case "/":
			op = "/"
		case "%":
			op = "%"
		default:
			break
		}
		if op == "" {
			break
		}
		s.Next()
		right, err := p.parseUnary(s)
		if err != nil {
			return nil, err
		}
		left = ast.Arithmetic{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary(s *token.Stream) (ast.Expression, error) {
	if s.Peek().Kind == token.Symbol && s.Peek().Text == "-" {
		s.Next()
		operand, err := p.parseUnary(s)
		if err != nil {
			return nil, err
		}
		return ast.Unary{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary(s)
}

func (p *Parser) parsePrimary(s *token.Stream) (ast.Expression, error) {
	tok := s.Peek()

	switch tok.Kind {
	case token.Number:
		s.Next()
		return numberLiteral(tok.Text)
	case token.Quoted:
		s.Next()
		return ast.Literal{Kind: ast.LitString, Str: tok.Text}, nil
	}

	if s.Is("NULL") {
		s.Next()
		return ast.Literal{Kind: ast.LitNull}, nil
	}
	if s.Is("TRUE") {
		s.Next()
		return ast.Literal{Kind: ast.LitBool, Bool: true}, nil
	}
	if s.Is("FALSE") {
		s.Next()
		return ast.Literal{Kind: ast.LitBool, Bool: false}, nil
	}
	if s.Is("CASE") {
		return p.parseCase(s)
	}
	if s.Is("CAST") {
		return p.parseCast(s)
	}
	if s.Is("SELECT") && p.ParseSubquery != nil {
		stmt, err := p.ParseSubquery(s)
		if err != nil {
			return nil, err
		}
		return ast.Subquery{Query: stmt}, nil
	}
	if tok.Kind == token.Symbol && tok.Text == "@" {
		s.Next()
		name, err := s.ExpectKind(token.Ident)
		if err != nil {
			return nil, err
		}
		return ast.VariableRef{Name: name.Text}, nil
	}
	if tok.Kind == token.Symbol && tok.Text == "(" {
		s.Next()
		if p.ParseSubquery != nil {
			s.Mark()
			if stmt, err := p.ParseSubquery(s); err == nil {
				if _, cerr := s.Expect(")"); cerr == nil {
					s.Commit()
					return ast.Subquery{Query: stmt}, nil
				}
			}
			s.Reset()
		}
		e, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	if tok.Kind == token.Symbol && tok.Text == "*" {
		s.Next()
		return ast.Star{}, nil
	}

	if tok.Kind == token.Ident || tok.Kind == token.Keyword {
		s.Next()
		name := tok.Text
		if s.Peek().Kind == token.Symbol && s.Peek().Text == "." {
			s.Next()
			field, err := s.ExpectKind(token.Ident)
			if err != nil {
				return nil, err
			}
			return ast.FieldRef{Qualifier: name, Name: field.Text}, nil
		}
		if s.Peek().Kind == token.Symbol && s.Peek().Text == "(" {
			return p.parseCallOrAggregate(s, name)
		}
		return ast.FieldRef{Name: name}, nil
	}

	return nil, syntaxErr(s, "unexpected token in expression")
}

func numberLiteral(text string) (ast.Expression, error) {
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return ast.Literal{Kind: ast.LitFloat, Flt: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, err
	}
	return ast.Literal{Kind: ast.LitInt, Int: n}, nil
}

func (p *Parser) parseCallOrAggregate(s *token.Stream, name string) (ast.Expression, error) {
	s.Next() // consume (
	lower := strings.ToLower(name)

	distinct := false
	if s.Is("DISTINCT") {
		s.Next()
		distinct = true
	}

	if aggFn, ok := aggregateNames[lower]; ok {
		if aggFn == ast.AggCount && s.Peek().Kind == token.Symbol && s.Peek().Text == "*" {
			s.Next()
			if _, err := s.Expect(")"); err != nil {
				return nil, err
			}
			return ast.AggregateCall{Func: aggFn, Arg: nil, Distinct: distinct}, nil
		}
		arg, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect(")"); err != nil {
			return nil, err
		}
		return ast.AggregateCall{Func: aggFn, Arg: arg, Distinct: distinct}, nil
	}

	var args []ast.Expression
	if !(s.Peek().Kind == token.Symbol && s.Peek().Text == ")") {
		for {
			arg, err := p.ParseExpression(s)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if s.Peek().Kind == token.Symbol && s.Peek().Text == "," {
				s.Next()
				continue
			}
			break
		}
	}
	if _, err := s.Expect(")"); err != nil {
		return nil, err
	}
	return ast.FunctionCall{Name: lower, Args: args, Distinct: distinct}, nil
}

func (p *Parser) parseCase(s *token.Stream) (ast.Expression, error) {
	s.Next() // consume CASE
	var whens []ast.WhenClause
	for s.Is("WHEN") {
		s.Next()
		cond, err := p.ParseCondition(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect("THEN"); err != nil {
			return nil, err
		}
		then, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		whens = append(whens, ast.WhenClause{When: cond, Then: then})
	}
	if len(whens) == 0 {
		return nil, syntaxErr(s, "expected at least one WHEN clause in CASE")
	}
	var elseExpr ast.Expression
	if s.Is("ELSE") {
		s.Next()
		e, err := p.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		elseExpr = e
	}
	if _, err := s.Expect("END"); err != nil {
		return nil, err
	}
	return ast.Case{Whens: whens, Else: elseExpr}, nil
}

func (p *Parser) parseCast(s *token.Stream) (ast.Expression, error) {
	s.Next() // consume CAST
	if _, err := s.Expect("("); err != nil {
		return nil, err
	}
	e, err := p.ParseExpression(s)
	if err != nil {
		return nil, err
	}
	if _, err := s.Expect("AS"); err != nil {
		return nil, err
	}
	typTok := s.Next()
	if _, err := s.Expect(")"); err != nil {
		return nil, err
	}
	return ast.Cast{Expr: e, Type: strings.ToUpper(typTok.Text)}, nil
}
