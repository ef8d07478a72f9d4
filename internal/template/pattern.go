// Package template implements qwery's Template Parser (spec §4.2): a small
// interpreter over a declarative pattern string that extracts typed
// fragments from a token.Stream into a TemplateParams bag. Grounded in
// *shape* on razeghi71-dq/parser/parser.go's receiver-and-cursor style
// (peek/advance/expect) and on rulego-streamsql/rsql/parser.go's separation
// of a grammar table from its execution; the pattern DSL itself has no
// direct teacher analogue (dq's parser is hand-switched per keyword, not
// data-driven). Patterns are pre-parsed once into a Pattern value (a tree of
// Nodes) rather than re-split from the string on every call, per DESIGN
// NOTES §9's "templates as data" guidance — this makes a Pattern safe to
// reuse across many parses.
package template

import "strings"

// TagKind identifies which of the spec §4.2 tag forms a Tag represents.
type TagKind int

const (
	TagLiteral TagKind = iota
	TagAtom            // %a:NAME
	TagNumeric         // %n:NAME
	TagVariable        // %v:NAME
	TagCondition       // %c:NAME
	TagExpr            // %e:NAME
	TagExprList        // %E:NAME
	TagFieldList       // %F:NAME
	TagOrderedList     // %o:NAME
	TagExprOrSub       // %q:NAME
	TagSourceOrSub     // %s:NAME
	TagSubOrSelect     // %S:NAME
	TagWithHints       // %w:NAME
	TagChooser         // %C(name,OPT,...)
	TagRegex           // %r`PATTERN`
)

// Tag is a single leaf element of a compiled Pattern.
type Tag struct {
	Kind        TagKind
	Name        string   // parameter name results are stored under
	Literal     string   // literal keyword text, when Kind == TagLiteral
	ChooserOpts []string // legal option keywords, when Kind == TagChooser
	Regex       string   // backtick-delimited pattern body, when Kind == TagRegex
}

// GroupKind distinguishes an optional chain from a zero-or-more repetition.
type GroupKind int

const (
	GroupOptional GroupKind = iota
	GroupRepeat
)

// Group is a `?TAG +?TAG...` optional chain or a `{{ ... }}` repetition.
type Group struct {
	Kind       GroupKind
	RepeatName string // storage key under repeatedSets, GroupRepeat only
	Nodes      []Node
}

// Node is one element of a Pattern: either a leaf Tag/literal or a Group.
type Node struct {
	Tag   *Tag
	Group *Group
}

// Pattern is a pre-parsed template, ready to be matched against a
// token.Stream any number of times via Match (see match.go).
type Pattern []Node

// Parse compiles a whitespace-separated pattern string (spec §4.2 syntax)
// into a Pattern.
func Parse(pattern string) Pattern {
	words := strings.Fields(pattern)
	pos := 0
	nodes, _ := parseWords(words, &pos, "")
	return Pattern(nodes)
}

func parseWords(words []string, pos *int, closing string) ([]Node, bool) {
	var nodes []Node
	for *pos < len(words) {
		w := words[*pos]
		if closing != "" && w == closing {
			*pos++
			return nodes, true
		}
		switch {
		case strings.HasPrefix(w, "{{"):
			name := strings.TrimPrefix(w, "{{")
			*pos++
			body, _ := parseWords(words, pos, "}}")
			if name == "" {
				name = firstTagName(body)
			}
			nodes = append(nodes, Node{Group: &Group{Kind: GroupRepeat, RepeatName: name, Nodes: body}})
		case strings.HasPrefix(w, "?"):
			var chainWords []string
			chainWords = append(chainWords, w[1:])
			*pos++
			for *pos < len(words) && strings.HasPrefix(words[*pos], "+?") {
				chainWords = append(chainWords, words[*pos][2:])
				*pos++
			}
			var groupNodes []Node
			for _, cw := range chainWords {
				groupNodes = append(groupNodes, Node{Tag: parseTagOrLiteral(cw)})
			}
			nodes = append(nodes, Node{Group: &Group{Kind: GroupOptional, Nodes: groupNodes}})
		default:
			nodes = append(nodes, Node{Tag: parseTagOrLiteral(w)})
			*pos++
		}
	}
	return nodes, false
}

// firstTagName finds the parameter name of the first non-literal tag inside
// a node list, used to name a `{{ ... }}` group that omits an explicit
// NAME (the pattern examples in spec §4.5 use this shorthand: the single
// %E:values tag inside the repeated VALUES clause implicitly names the
// repetition).
func firstTagName(nodes []Node) string {
	for _, n := range nodes {
		if n.Tag != nil && n.Tag.Kind != TagLiteral {
			return n.Tag.Name
		}
		if n.Group != nil {
			if name := firstTagName(n.Group.Nodes); name != "" {
				return name
			}
		}
	}
	return "repeated"
}

func parseTagOrLiteral(w string) *Tag {
	if !strings.HasPrefix(w, "%") {
		return &Tag{Kind: TagLiteral, Literal: w}
	}
	if len(w) < 2 {
		return &Tag{Kind: TagLiteral, Literal: w}
	}
	kindChar := w[1]
	if kindChar == 'r' {
		// %r`PATTERN` — raw regex match, no whitespace inside PATTERN since
		// patterns are whitespace-split words (spec §4.2).
		body := w[2:]
		if len(body) < 2 || body[0] != '`' || body[len(body)-1] != '`' {
			return &Tag{Kind: TagLiteral, Literal: w}
		}
		return &Tag{Kind: TagRegex, Regex: body[1 : len(body)-1]}
	}
	if kindChar == 'C' {
		// %C(name,OPT1,OPT2,...)
		inner := strings.TrimSuffix(strings.TrimPrefix(w[2:], "("), ")")
		parts := strings.Split(inner, ",")
		if len(parts) == 0 {
			return &Tag{Kind: TagLiteral, Literal: w}
		}
		return &Tag{Kind: TagChooser, Name: parts[0], ChooserOpts: parts[1:]}
	}
	rest := w[2:]
	name := strings.TrimPrefix(rest, ":")
	switch kindChar {
	case 'a':
		return &Tag{Kind: TagAtom, Name: name}
	case 'n':
		return &Tag{Kind: TagNumeric, Name: name}
	case 'v':
		return &Tag{Kind: TagVariable, Name: name}
	case 'c':
		return &Tag{Kind: TagCondition, Name: name}
	case 'e':
		return &Tag{Kind: TagExpr, Name: name}
	case 'E':
		return &Tag{Kind: TagExprList, Name: name}
	case 'F':
		return &Tag{Kind: TagFieldList, Name: name}
	case 'o':
		return &Tag{Kind: TagOrderedList, Name: name}
	case 'q':
		return &Tag{Kind: TagExprOrSub, Name: name}
	case 's':
		return &Tag{Kind: TagSourceOrSub, Name: name}
	case 'S':
		return &Tag{Kind: TagSubOrSelect, Name: name}
	case 'w':
		return &Tag{Kind: TagWithHints, Name: name}
	default:
		return &Tag{Kind: TagLiteral, Literal: w}
	}
}
