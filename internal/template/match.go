package template

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/token"
)

// Params is the typed parameter bag produced by matching a Pattern against
// a token.Stream (spec §3's TemplateParams). Merge is a key-disjoint union,
// except that hints collected under the same HintsByName key are merged;
// any other colliding key within a single statement is a parser bug and
// panics, per spec §3's "collisions = parser bug".
type Params struct {
	Atoms         map[string]string
	Numerics      map[string]float64
	Fields        map[string][]ast.Field
	Expressions   map[string][]ast.SelectItem
	Conditions    map[string]ast.Condition
	OrderedFields map[string][]ast.OrderedColumn
	Sources       map[string]*ast.DataResource
	Variables     map[string]string
	HintsByName   map[string]hints.Hints
	RepeatedSets  map[string][]*Params
	Assignables   map[string]ast.Expression
	Choices       map[string]string
}

func newParams() *Params {
	return &Params{
		Atoms:         map[string]string{},
		Numerics:      map[string]float64{},
		Fields:        map[string][]ast.Field{},
		Expressions:   map[string][]ast.SelectItem{},
		Conditions:    map[string]ast.Condition{},
		OrderedFields: map[string][]ast.OrderedColumn{},
		Sources:       map[string]*ast.DataResource{},
		Variables:     map[string]string{},
		HintsByName:   map[string]hints.Hints{},
		RepeatedSets:  map[string][]*Params{},
		Assignables:   map[string]ast.Expression{},
		Choices:       map[string]string{},
	}
}

// merge folds other into p as a key-disjoint union; a colliding HintsByName
// key has its hints merged, and any other colliding key panics (a programmer
// error in pattern authoring, per spec §3).
func (p *Params) merge(other *Params) {
	if other == nil {
		return
	}
	for k, v := range other.Atoms {
		mustNotExist(p.Atoms, k)
		p.Atoms[k] = v
	}
	for k, v := range other.Numerics {
		mustNotExist(p.Numerics, k)
		p.Numerics[k] = v
	}
	for k, v := range other.Fields {
		mustNotExistSlice(p.Fields, k)
		p.Fields[k] = v
	}
	for k, v := range other.Expressions {
		mustNotExistSlice(p.Expressions, k)
		p.Expressions[k] = v
	}
	for k, v := range other.Conditions {
		mustNotExist(p.Conditions, k)
		p.Conditions[k] = v
	}
	for k, v := range other.OrderedFields {
		mustNotExistSlice(p.OrderedFields, k)
		p.OrderedFields[k] = v
	}
	for k, v := range other.Sources {
		mustNotExist(p.Sources, k)
		p.Sources[k] = v
	}
	for k, v := range other.Variables {
		mustNotExist(p.Variables, k)
		p.Variables[k] = v
	}
	for k, v := range other.HintsByName {
		if existing, ok := p.HintsByName[k]; ok {
			p.HintsByName[k] = existing.Merge(v)
			continue
		}
		p.HintsByName[k] = v
	}
	for k, v := range other.RepeatedSets {
		mustNotExistSlice(p.RepeatedSets, k)
		p.RepeatedSets[k] = v
	}
	for k, v := range other.Assignables {
		mustNotExist(p.Assignables, k)
		p.Assignables[k] = v
	}
	for k, v := range other.Choices {
		mustNotExist(p.Choices, k)
		p.Choices[k] = v
	}
}

func mustNotExist[V any](m map[string]V, k string) {
	if _, ok := m[k]; ok {
		panic("template: duplicate parameter key " + k)
	}
}

func mustNotExistSlice[V any](m map[string][]V, k string) {
	if _, ok := m[k]; ok {
		panic("template: duplicate parameter key " + k)
	}
}

// Hooks wires the template interpreter to qwery's expression/condition/
// statement parsers without creating an import cycle: template has no
// dependency on the expr or parser packages, those packages instead supply
// these callbacks.
type Hooks struct {
	ParseExpression  func(s *token.Stream) (ast.Expression, error)
	ParseCondition   func(s *token.Stream) (ast.Condition, error)
	ParseSubOrSelect func(s *token.Stream) (ast.Statement, error)
}

// Match interprets pattern against s, producing a Params bag. Parse
// failures outside an optional group raise a SyntaxError carrying the
// offending token's position (spec §4.2).
func Match(pattern Pattern, s *token.Stream, h Hooks) (*Params, error) {
	return matchNodes(pattern, s, h)
}

func matchNodes(nodes []Node, s *token.Stream, h Hooks) (*Params, error) {
	result := newParams()
	for _, n := range nodes {
		switch {
		case n.Tag != nil:
			p, err := matchTag(n.Tag, s, h)
			if err != nil {
				return nil, err
			}
			result.merge(p)
		case n.Group != nil:
			p, err := matchGroup(n.Group, s, h)
			if err != nil {
				return nil, err
			}
			result.merge(p)
		}
	}
	return result, nil
}

func matchGroup(g *Group, s *token.Stream, h Hooks) (*Params, error) {
	switch g.Kind {
	case GroupOptional:
		return matchOptionalChain(g.Nodes, s, h)
	case GroupRepeat:
		return matchRepeat(g, s, h)
	default:
		return newParams(), nil
	}
}

// matchOptionalChain matches a `?TAG +?TAG...` chain atomically: if any
// member fails, the stream resets to the mark taken at entry and the whole
// chain contributes nothing (spec §9 Open Question 1).
func matchOptionalChain(nodes []Node, s *token.Stream, h Hooks) (*Params, error) {
	s.Mark()
	acc := newParams()
	for _, n := range nodes {
		var p *Params
		var err error
		switch {
		case n.Tag != nil:
			p, err = matchTag(n.Tag, s, h)
		case n.Group != nil:
			p, err = matchGroup(n.Group, s, h)
		}
		if err != nil {
			s.Reset()
			return newParams(), nil
		}
		acc.merge(p)
	}
	s.Commit()
	return acc, nil
}

// matchRepeat tries the body repeatedly until it stops progressing (spec
// §4.2's `{{NAME ... }}`), collecting each iteration's Params under
// RepeatedSets[name].
func matchRepeat(g *Group, s *token.Stream, h Hooks) (*Params, error) {
	result := newParams()
	var sets []*Params
	for {
		before := s.Pos()
		s.Mark()
		p, err := matchNodes(g.Nodes, s, h)
		if err != nil || s.Pos() == before {
			s.Reset()
			break
		}
		s.Commit()
		sets = append(sets, p)
	}
	result.RepeatedSets[g.RepeatName] = sets
	return result, nil
}

func matchTag(t *Tag, s *token.Stream, h Hooks) (*Params, error) {
	result := newParams()
	switch t.Kind {
	case TagLiteral:
		if _, err := s.Expect(t.Literal); err != nil {
			return nil, err
		}
		return result, nil

	case TagAtom:
		tok := s.Next()
		if tok.Kind == token.EOF {
			return nil, syntaxErr(s, "expected an identifier or literal")
		}
		result.Atoms[t.Name] = tok.Text
		return result, nil

	case TagNumeric:
		tok, err := s.ExpectKind(token.Number)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, "invalid number")
		}
		result.Numerics[t.Name] = f
		return result, nil

	case TagVariable:
		if _, err := s.Expect("@"); err != nil {
			return nil, err
		}
		tok, err := s.ExpectKind(token.Ident)
		if err != nil {
			return nil, err
		}
		result.Variables[t.Name] = tok.Text
		return result, nil

	case TagCondition:
		cond, err := h.ParseCondition(s)
		if err != nil {
			return nil, err
		}
		result.Conditions[t.Name] = cond
		return result, nil

	case TagExpr, TagExprOrSub:
		e, err := h.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		result.Assignables[t.Name] = e
		return result, nil

	case TagExprList:
		items, err := matchExprList(s, h)
		if err != nil {
			return nil, err
		}
		result.Expressions[t.Name] = items
		return result, nil

	case TagFieldList:
		fields, err := matchFieldList(s)
		if err != nil {
			return nil, err
		}
		result.Fields[t.Name] = fields
		return result, nil

	case TagOrderedList:
		ordered, err := matchOrderedList(s)
		if err != nil {
			return nil, err
		}
		result.OrderedFields[t.Name] = ordered
		return result, nil

	case TagSourceOrSub, TagSubOrSelect:
		dr, err := matchSourceOrSubquery(s, h, t.Kind)
		if err != nil {
			return nil, err
		}
		result.Sources[t.Name] = dr
		return result, nil

	case TagWithHints:
		hs, err := matchWithHints(s)
		if err != nil {
			return nil, err
		}
		result.HintsByName[t.Name] = hs
		return result, nil

	case TagRegex:
		re, err := regexp.Compile(`^(?:` + t.Regex + `)`)
		if err != nil {
			return nil, qerr.NewSyntax(qerr.Pos{Offset: s.Pos()}, t.Regex, "invalid %r pattern: "+err.Error())
		}
		remainder := s.RawRemainder()
		loc := re.FindStringIndex(remainder)
		if loc == nil {
			tok := s.Peek()
			return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text,
				"expected text matching /"+t.Regex+"/")
		}
		absEnd := loc[1]
		if tok := s.Peek(); tok.Kind != token.EOF {
			absEnd += tok.Pos
		}
		s.SkipPast(absEnd)
		return result, nil

	case TagChooser:
		tok := s.Peek()
		for _, opt := range t.ChooserOpts {
			if s.Is(opt) {
				s.Next()
				result.Choices[t.Name] = strings.ToUpper(opt)
				return result, nil
			}
		}
		return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text,
			"expected one of "+strings.Join(t.ChooserOpts, "|"))
	}
	return result, nil
}

func syntaxErr(s *token.Stream, msg string) error {
	tok := s.Peek()
	return qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, msg)
}

// matchExprList parses a comma-separated expression list with optional
// `AS alias` (spec §4.2's %E:NAME).
func matchExprList(s *token.Stream, h Hooks) ([]ast.SelectItem, error) {
	var items []ast.SelectItem
	for {
		e, err := h.ParseExpression(s)
		if err != nil {
			return nil, err
		}
		alias := ""
		if s.Is("AS") {
			s.Next()
			tok := s.Next()
			alias = tok.Text
		}
		items = append(items, ast.SelectItem{Expr: e, Alias: alias})
		if _, ok := s.NextIf(","); !ok {
			break
		}
	}
	return items, nil
}

// matchFieldList parses a comma-separated field-name list (spec §4.2's
// %F:NAME).
func matchFieldList(s *token.Stream) ([]ast.Field, error) {
	var fields []ast.Field
	for {
		tok := s.Next()
		if tok.Kind == token.Symbol && tok.Text == "*" {
			fields = append(fields, ast.Field{Name: "*"})
		} else if tok.Kind == token.Ident || tok.Kind == token.Keyword {
			fields = append(fields, ast.Field{Name: tok.Text})
		} else {
			return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, "expected a field name")
		}
		if _, ok := s.NextIf(","); !ok {
			break
		}
	}
	return fields, nil
}

// matchOrderedList parses a comma-separated `name [ASC|DESC]` list (spec
// §4.2's %o:NAME).
func matchOrderedList(s *token.Stream) ([]ast.OrderedColumn, error) {
	var cols []ast.OrderedColumn
	for {
		tok := s.Next()
		if tok.Kind != token.Ident && tok.Kind != token.Keyword {
			return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, "expected a column name")
		}
		asc := true
		if s.Is("DESC") {
			s.Next()
			asc = false
		} else if s.Is("ASC") {
			s.Next()
		}
		cols = append(cols, ast.OrderedColumn{Name: tok.Text, Ascending: asc})
		if _, ok := s.NextIf(","); !ok {
			break
		}
	}
	return cols, nil
}

func matchSourceOrSubquery(s *token.Stream, h Hooks, kind TagKind) (*ast.DataResource, error) {
	if s.Peek().Kind == token.Symbol && s.Peek().Text == "(" {
		s.Next()
		stmt, err := h.ParseSubOrSelect(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.Expect(")"); err != nil {
			return nil, err
		}
		return &ast.DataResource{Subquery: stmt}, nil
	}
	if kind == TagSubOrSelect && s.Is("SELECT") {
		stmt, err := h.ParseSubOrSelect(s)
		if err != nil {
			return nil, err
		}
		return &ast.DataResource{Subquery: stmt}, nil
	}
	tok := s.Next()
	switch tok.Kind {
	case token.Quoted:
		return &ast.DataResource{Literal: tok.Text}, nil
	case token.Ident, token.Keyword:
		lit := tok.Text
		for s.Peek().Kind == token.Symbol && (s.Peek().Text == "." || s.Peek().Text == "/") {
			sep := s.Next()
			next := s.Next()
			lit += sep.Text + next.Text
		}
		return &ast.DataResource{Literal: lit}, nil
	default:
		return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, "expected a source")
	}
}

// matchWithHints parses zero or more `WITH ...` clauses per spec §4.3.
// Later clauses override earlier ones field-by-field; an unrecognised
// clause after at least one WITH has already committed is a syntax error,
// but the tag itself matches successfully when no WITH clause is present
// at all, since %w: is always used as an optional chain continuation.
func matchWithHints(s *token.Stream) (hints.Hints, error) {
	result := hints.Hints{}
	matchedAny := false
	for s.Is("WITH") {
		s.Mark()
		s.Next() // consume WITH
		clause, err := matchOneWithClause(s)
		if err != nil {
			if matchedAny {
				// At least one WITH clause already committed: a further
				// WITH keyword commits us to another clause, so a bad one
				// here is a real syntax error, not a backtrack point.
				return hints.Hints{}, err
			}
			s.Reset()
			break
		}
		s.Commit()
		result = result.Merge(clause)
		matchedAny = true
	}
	return result, nil
}

func matchOneWithClause(s *token.Stream) (hints.Hints, error) {
	switch {
	case s.Is("AVRO"):
		s.Next()
		tok := s.Next()
		return hints.Hints{}.SetAvroSchema(tok.Text), nil
	case s.Is("GZIP"):
		s.Next()
		if _, err := s.Expect("COMPRESSION"); err != nil {
			return hints.Hints{}, err
		}
		return hints.Hints{}.SetGzip(true), nil
	case s.Is("DELIMITER"):
		s.Next()
		tok := s.Next()
		return hints.Hints{}.SetDelimiter(tok.Text), nil
	case s.Is("CSV"):
		s.Next()
		if _, err := s.Expect("FORMAT"); err != nil {
			return hints.Hints{}, err
		}
		return hints.Hints{}.UsingFormat(hints.CSV), nil
	case s.Is("JSON"):
		s.Next()
		if _, err := s.Expect("FORMAT"); err != nil {
			return hints.Hints{}, err
		}
		return hints.Hints{}.UsingFormat(hints.JSON), nil
	case s.Is("PSV"):
		s.Next()
		if _, err := s.Expect("FORMAT"); err != nil {
			return hints.Hints{}, err
		}
		return hints.Hints{}.UsingFormat(hints.PSV), nil
	case s.Is("TSV"):
		s.Next()
		if _, err := s.Expect("FORMAT"); err != nil {
			return hints.Hints{}, err
		}
		return hints.Hints{}.UsingFormat(hints.TSV), nil
	case s.Is("COLUMN"):
		s.Next()
		if _, err := s.Expect("HEADERS"); err != nil {
			return hints.Hints{}, err
		}
		return hints.Hints{}.SetHeaders(true), nil
	case s.Is("PROPERTIES"):
		s.Next()
		tok := s.Next()
		return hints.Hints{}.SetProperties(map[string]string{"__file": tok.Text}), nil
	case s.Is("QUOTED"):
		s.Next()
		if s.Is("NUMBERS") {
			s.Next()
			return hints.Hints{}.SetQuoted("NUMBERS"), nil
		}
		if s.Is("TEXT") {
			s.Next()
			return hints.Hints{}.SetQuoted("TEXT"), nil
		}
		return hints.Hints{}, syntaxErr(s, "expected NUMBERS or TEXT after QUOTED")
	default:
		return hints.Hints{}, syntaxErr(s, "unknown WITH clause")
	}
}
