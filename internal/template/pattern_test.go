package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLiteralsAndSimpleTags(t *testing.T) {
	p := Parse("SELECT %F:fields FROM %s:source")
	require.Len(t, p, 4)
	require.Equal(t, TagLiteral, p[0].Tag.Kind)
	require.Equal(t, "SELECT", p[0].Tag.Literal)
	require.Equal(t, TagFieldList, p[1].Tag.Kind)
	require.Equal(t, "fields", p[1].Tag.Name)
	require.Equal(t, TagLiteral, p[2].Tag.Kind)
	require.Equal(t, TagSourceOrSub, p[3].Tag.Kind)
	require.Equal(t, "source", p[3].Tag.Name)
}

func TestParseAllSimpleTagKinds(t *testing.T) {
	p := Parse("%a:a %n:n %v:v %c:c %e:e %E:el %F:fl %o:o %q:q %S:sub %w:w")
	kinds := make([]TagKind, len(p))
	for i, n := range p {
		kinds[i] = n.Tag.Kind
	}
	require.Equal(t, []TagKind{
		TagAtom, TagNumeric, TagVariable, TagCondition, TagExpr, TagExprList,
		TagFieldList, TagOrderedList, TagExprOrSub, TagSubOrSelect, TagWithHints,
	}, kinds)
}

func TestParseChooserTag(t *testing.T) {
	p := Parse("%C(mode,INTO,OVERWRITE)")
	require.Len(t, p, 1)
	require.Equal(t, TagChooser, p[0].Tag.Kind)
	require.Equal(t, "mode", p[0].Tag.Name)
	require.Equal(t, []string{"INTO", "OVERWRITE"}, p[0].Tag.ChooserOpts)
}

func TestParseOptionalChain(t *testing.T) {
	p := Parse("SELECT ?TOP +?%n:top")
	require.Len(t, p, 2)
	require.NotNil(t, p[1].Group)
	require.Equal(t, GroupOptional, p[1].Group.Kind)
	require.Len(t, p[1].Group.Nodes, 2)
	require.Equal(t, TagLiteral, p[1].Group.Nodes[0].Tag.Kind)
	require.Equal(t, "TOP", p[1].Group.Nodes[0].Tag.Literal)
	require.Equal(t, TagNumeric, p[1].Group.Nodes[1].Tag.Kind)
}

func TestParseRepeatGroupWithExplicitName(t *testing.T) {
	p := Parse("{{rows %E:values }}")
	require.Len(t, p, 1)
	require.Equal(t, GroupRepeat, p[0].Group.Kind)
	require.Equal(t, "rows", p[0].Group.RepeatName)
}

func TestParseRepeatGroupInfersNameFromFirstTag(t *testing.T) {
	p := Parse("{{ %E:values }}")
	require.Equal(t, "values", p[0].Group.RepeatName)
}

func TestParseRegexTag(t *testing.T) {
	p := Parse("%r`^[0-9]+`")
	require.Len(t, p, 1)
	require.Equal(t, TagRegex, p[0].Tag.Kind)
	require.Equal(t, "^[0-9]+", p[0].Tag.Regex)
}

func TestParseMalformedRegexTagFallsBackToLiteral(t *testing.T) {
	p := Parse("%rnotbacktickdelimited")
	require.Equal(t, TagLiteral, p[0].Tag.Kind)
}

func TestParseUnknownTagCharFallsBackToLiteral(t *testing.T) {
	p := Parse("%z:foo")
	require.Equal(t, TagLiteral, p[0].Tag.Kind)
	require.Equal(t, "%z:foo", p[0].Tag.Literal)
}
