// Package parser implements qwery's Statement Compiler (spec §4.5): it maps
// the template patterns in §4.5 to concrete AST statements, delegating
// fragment extraction to internal/template and expression/condition parsing
// to internal/expr. Grounded on razeghi71-dq/parser/parser.go's dispatch-by-
// leading-keyword Parser, generalized from dq's pipe-operator grammar to
// qwery's SQL-dialect statement surface (spec §6).
package parser

import (
	"strconv"
	"strings"

	"github.com/qiulin/qwery/internal/ast"
	"github.com/qiulin/qwery/internal/expr"
	"github.com/qiulin/qwery/internal/hints"
	"github.com/qiulin/qwery/internal/qerr"
	"github.com/qiulin/qwery/internal/template"
	"github.com/qiulin/qwery/internal/token"
)

var (
	describePattern  = template.Parse("DESCRIBE %s:source ?LIMIT +?%n:limit")
	selectPattern    = template.Parse("SELECT ?TOP +?%n:top %E:fields ?%C(mode,INTO,OVERWRITE) +?%a:target +?%w:targetHints ?FROM +?%s:source +?%w:sourceHints ?WHERE +?%c:cond ?GROUP +?BY +?%F:groupBy ?ORDER +?BY +?%o:orderBy ?LIMIT +?%n:limit")
	insertHeader     = template.Parse("INSERT %C(mode,INTO,OVERWRITE) %a:target %w:hints ( %F:fields )")
	valuesRepeat     = template.Parse("{{ VALUES ( %E:values ) }}")
	declarePattern   = template.Parse("DECLARE %v:name %a:type")
	setPattern       = template.Parse("SET %v:name = %q:expression")
	showPattern      = template.Parse("SHOW %a:entityType")
	createViewPatt   = template.Parse("CREATE VIEW %a:name AS %S:query")
	connectPattern   = template.Parse("CONNECT TO %a:service %w:hints AS %a:name")
	disconnectPatt   = template.Parse("DISCONNECT FROM %a:handle")
)

// knownVarTypes is the DECLARE type whitelist (spec §6).
var knownVarTypes = map[string]ast.VarType{
	"BOOLEAN": ast.TypeBoolean,
	"INTEGER": ast.TypeInteger,
	"LONG":    ast.TypeLong,
	"DOUBLE":  ast.TypeDouble,
	"STRING":  ast.TypeString,
	"DATE":    ast.TypeDate,
	"BINARY":  ast.TypeBinary,
}

// showWhitelist locks down SHOW's entity set (spec §9 Open Question 4).
var showWhitelist = map[string]ast.ShowEntity{
	"VIEWS":       ast.ShowViews,
	"CONNECTIONS": ast.ShowConnections,
	"VARIABLES":   ast.ShowVariables,
}

// Parser compiles qwery statements from a token.Stream.
type Parser struct {
	expr *expr.Parser
}

// New builds a Parser with its expression layer wired for scalar
// subqueries (expr calls back into p.ParseStatement).
func New() *Parser {
	p := &Parser{}
	p.expr = expr.New(func(s *token.Stream) (ast.Statement, error) {
		return p.ParseStatement(s)
	})
	return p
}

// Parse lexes and parses a complete single statement.
func Parse(input string) (ast.Statement, error) {
	s, err := token.New(input)
	if err != nil {
		return nil, err
	}
	p := New()
	stmt, err := p.ParseStatement(s)
	if err != nil {
		return nil, err
	}
	s.NextIf(";")
	if !s.AtEOF() {
		tok := s.Peek()
		return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, "unexpected trailing input")
	}
	return stmt, nil
}

func (p *Parser) hooks() template.Hooks {
	return template.Hooks{
		ParseExpression:  p.expr.ParseExpression,
		ParseCondition:   p.expr.ParseCondition,
		ParseSubOrSelect: p.ParseStatement,
	}
}

// ParseStatement dispatches on the leading keyword and compiles one
// statement (spec §4.5).
func (p *Parser) ParseStatement(s *token.Stream) (ast.Statement, error) {
	switch {
	case s.Is("DESCRIBE"):
		return p.parseDescribe(s)
	case s.Is("SELECT"):
		return p.parseSelect(s)
	case s.Is("INSERT"):
		return p.parseInsert(s)
	case s.Is("DECLARE"):
		return p.parseDeclare(s)
	case s.Is("SET"):
		return p.parseSet(s)
	case s.Is("SHOW"):
		return p.parseShow(s)
	case s.Is("CREATE"):
		return p.parseCreateView(s)
	case s.Is("CONNECT"):
		return p.parseConnect(s)
	case s.Is("DISCONNECT"):
		return p.parseDisconnect(s)
	default:
		tok := s.Peek()
		return nil, qerr.NewSyntax(qerr.Pos{Offset: tok.Pos, Line: tok.Line, Col: tok.Col}, tok.Text, "unknown statement")
	}
}

func numericToInt(f float64) int { return int(f) }

func (p *Parser) parseDescribe(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(describePattern, s, p.hooks())
	if err != nil {
		return nil, err
	}
	d := &ast.Describe{Source: params.Sources["source"]}
	if lim, ok := params.Numerics["limit"]; ok {
		n := numericToInt(lim)
		d.Limit = &n
	}
	return d, nil
}

func (p *Parser) parseSelect(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(selectPattern, s, p.hooks())
	if err != nil {
		return nil, err
	}
	return buildSelectOrInsert(params)
}

func buildSelectOrInsert(params *template.Params) (ast.Statement, error) {
	sel := &ast.Select{Fields: params.Expressions["fields"]}
	if top, ok := params.Numerics["top"]; ok {
		n := numericToInt(top)
		sel.Top = &n
	}
	if src, ok := params.Sources["source"]; ok {
		if sh, ok := params.HintsByName["sourceHints"]; ok {
			src.Hints = src.Hints.Merge(sh)
		}
		sel.Source = src
	}
	if cond, ok := params.Conditions["cond"]; ok {
		sel.Where = cond
	}
	if gb, ok := params.Fields["groupBy"]; ok {
		sel.GroupBy = gb
	}
	if ob, ok := params.OrderedFields["orderBy"]; ok {
		sel.OrderBy = ob
	}
	if lim, ok := params.Numerics["limit"]; ok {
		n := numericToInt(lim)
		sel.Limit = &n
	}

	mode, hasMode := params.Choices["mode"]
	if !hasMode {
		return sel, nil
	}

	target := params.Atoms["target"]
	targetHints := params.HintsByName["targetHints"]
	targetHints = targetHints.SetAppend(mode == "INTO")

	fieldNames := make([]string, len(sel.Fields))
	for i, item := range sel.Fields {
		fieldNames[i] = projectedName(item, i)
	}

	return &ast.Insert{
		Target: ast.IntoMode(mode),
		Path:   target,
		Hints:  targetHints,
		Fields: fieldNames,
		Source: sel,
	}, nil
}

func projectedName(item ast.SelectItem, idx int) string {
	if item.Alias != "" {
		return item.Alias
	}
	if fr, ok := item.Expr.(ast.FieldRef); ok {
		return fr.Name
	}
	return "col" + strconv.Itoa(idx)
}

func (p *Parser) parseInsert(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(insertHeader, s, p.hooks())
	if err != nil {
		return nil, err
	}
	mode := params.Choices["mode"]
	target := params.Atoms["target"]
	hintsVal := params.HintsByName["hints"].SetAppend(mode == "INTO")
	fields := params.Fields["fields"]
	fieldNames := make([]string, len(fields))
	for i, f := range fields {
		fieldNames[i] = f.Name
	}

	var source ast.Statement
	if s.Is("VALUES") {
		valParams, err := template.Match(valuesRepeat, s, p.hooks())
		if err != nil {
			return nil, err
		}
		sets := valParams.RepeatedSets["values"]
		rows := make([][]ast.Expression, 0, len(sets))
		for _, set := range sets {
			items := set.Expressions["values"]
			row := make([]ast.Expression, len(items))
			for i, it := range items {
				row[i] = it.Expr
			}
			rows = append(rows, row)
		}
		source = &ast.ValuesList{Rows: rows}
	} else {
		stmt, err := p.ParseStatement(s)
		if err != nil {
			return nil, err
		}
		source = stmt
	}

	return &ast.Insert{
		Target: ast.IntoMode(mode),
		Path:   target,
		Hints:  hintsVal,
		Fields: fieldNames,
		Source: source,
	}, nil
}

func (p *Parser) parseDeclare(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(declarePattern, s, p.hooks())
	if err != nil {
		return nil, err
	}
	typeName := strings.ToUpper(params.Atoms["type"])
	vt, ok := knownVarTypes[typeName]
	if !ok {
		return nil, qerr.NewSemantic("unknown DECLARE type "+typeName, nil)
	}
	return &ast.Declare{Name: params.Variables["name"], Type: vt}, nil
}

func (p *Parser) parseSet(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(setPattern, s, p.hooks())
	if err != nil {
		return nil, err
	}
	expr := params.Assignables["expression"]
	assign := &ast.Assignment{Name: params.Variables["name"]}
	if sub, ok := expr.(ast.Subquery); ok {
		assign.Query = sub.Query
	} else {
		assign.Expr = expr
	}
	return assign, nil
}

func (p *Parser) parseShow(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(showPattern, s, p.hooks())
	if err != nil {
		return nil, err
	}
	name := strings.ToUpper(params.Atoms["entityType"])
	entity, ok := showWhitelist[name]
	if !ok {
		return nil, qerr.NewSemantic("unknown SHOW entity "+name, nil)
	}
	return &ast.Show{Entity: entity}, nil
}

func (p *Parser) parseCreateView(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(createViewPatt, s, p.hooks())
	if err != nil {
		return nil, err
	}
	src := params.Sources["query"]
	var query ast.Statement
	if src != nil {
		query = src.Subquery
	}
	return &ast.CreateView{Name: params.Atoms["name"], Query: query}, nil
}

func (p *Parser) parseConnect(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(connectPattern, s, p.hooks())
	if err != nil {
		return nil, err
	}
	return &ast.Connect{
		Service: params.Atoms["service"],
		Hints:   params.HintsByName["hints"],
		Name:    params.Atoms["name"],
	}, nil
}

func (p *Parser) parseDisconnect(s *token.Stream) (ast.Statement, error) {
	params, err := template.Match(disconnectPatt, s, p.hooks())
	if err != nil {
		return nil, err
	}
	return &ast.Disconnect{Handle: params.Atoms["handle"]}, nil
}

// Hints re-exports the hints package for callers that only import parser.
type Hints = hints.Hints
