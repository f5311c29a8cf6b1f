package dsl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplate_VarRef(t *testing.T) {
	tmpl, diags := ParseTemplate("Hi {{ var:rt:last }}!", Options{})
	assert.Empty(t, diags)

	want := []Node{
		&Literal{Text: "Hi ", Start: 0, End: 3},
		&VarRef{Name: "rt", Modifier: "last", Start: 3, End: 20, NameStart: 10, NameEnd: 12, ModStart: 13, ModEnd: 17},
		&Literal{Text: "!", Start: 20, End: 21},
	}
	if diff := cmp.Diff(want, tmpl.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTemplate_StatWithWhere(t *testing.T) {
	src := "{{ stat:block.rt.median | where: correct == true }}"
	tmpl, diags := ParseTemplate(src, Options{})
	assert.Empty(t, diags)
	require.Len(t, tmpl.Nodes, 1)

	st, ok := tmpl.Nodes[0].(*StatRef)
	require.True(t, ok)
	assert.Equal(t, "block.rt", st.Name)
	assert.Equal(t, "median", st.Metric)
	assert.Equal(t, "block.rt", src[st.NameStart:st.NameEnd])
	assert.Equal(t, "median", src[st.MetricStart:st.MetricEnd])

	require.NotNil(t, st.Where)
	assert.Equal(t, "correct == true", st.Where.Source)
	assert.Equal(t, "correct == true", src[st.Where.Start:st.Where.End])

	want := CompareExpr{Op: "==", Left: Ident{Name: "correct", Start: 33, End: 40}, Right: BoolLit{Value: true}}
	if diff := cmp.Diff(want, st.Where.Expr); diff != "" {
		t.Errorf("where expr mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTemplate_IfElse(t *testing.T) {
	src := "{{#if var:rt > 300}}slow {{ var:rt }}{{else}}fast{{/if}}."
	tmpl, diags := ParseTemplate(src, Options{})
	assert.Empty(t, diags)
	require.Len(t, tmpl.Nodes, 2)

	blk, ok := tmpl.Nodes[0].(*IfBlock)
	require.True(t, ok)
	assert.True(t, blk.Closed)
	assert.Equal(t, "var:rt > 300", blk.Cond.Source)
	assert.NoError(t, blk.Cond.Err)
	assert.Len(t, blk.Then, 2)
	require.Len(t, blk.Else, 1)
	assert.Equal(t, "fast", blk.Else[0].(*Literal).Text)
	assert.Equal(t, len(src)-1, blk.End)
}

func TestParseTemplate_NestedIf(t *testing.T) {
	src := "{{#if a}}{{#if b}}x{{/if}}y{{/if}}"
	tmpl, _ := ParseTemplate(src, Options{})
	require.Len(t, tmpl.Nodes, 1)
	outer := tmpl.Nodes[0].(*IfBlock)
	require.Len(t, outer.Then, 2)
	inner, ok := outer.Then[0].(*IfBlock)
	require.True(t, ok)
	assert.True(t, inner.Closed)
	assert.True(t, outer.Closed)
}

func TestParseTemplate_LenientClose(t *testing.T) {
	src := "{{#if a}}x{{if}}"

	strict, diags := ParseTemplate(src, Options{})
	assert.False(t, strict.Nodes[0].(*IfBlock).Closed)
	require.Len(t, diags, 1)
	assert.Equal(t, SeverityWarning, diags[0].Severity)

	lenient, diags := ParseTemplate(src, Options{LenientIfClose: true})
	assert.True(t, lenient.Nodes[0].(*IfBlock).Closed)
	assert.Empty(t, diags)
}

func TestParseTemplate_BadTags(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"{{ var: }}", "var name expected"},
		{"{{ var:rt: }}", "modifier expected"},
		{"{{ var:rt extra }}", "unexpected"},
		{"{{ var:rt..x }}", "malformed name"},
		{"{{ var:rt | filter: a }}", "where:"},
		{"{{ var:rt | where: }}", "empty where clause"},
		{"{{ stat:rt }}", "no metric"},
		{"{{ stat:rt.avg:first }}", "no modifier"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tmpl, diags := ParseTemplate(tt.src, Options{})
			require.Len(t, diags, 1)
			assert.Equal(t, CategorySyntax, diags[0].Category)
			assert.Equal(t, SeverityError, diags[0].Severity)
			assert.Equal(t, 0, diags[0].Start)
			assert.Equal(t, len(tt.src), diags[0].End)
			assert.Contains(t, diags[0].Message, tt.msg)
			assert.IsType(t, &BadTag{}, tmpl.Nodes[0])
		})
	}
}

func TestParseTemplate_Warnings(t *testing.T) {
	_, diags := ParseTemplate("a {{else}} b {{ greeting }}", Options{})
	want := []Diagnostic{
		{Category: CategorySyntax, Start: 2, End: 10, Severity: SeverityWarning},
		{Category: CategorySyntax, Start: 13, End: 27, Severity: SeverityWarning},
	}
	if diff := cmp.Diff(want, diags, cmpopts.IgnoreFields(Diagnostic{}, "Message")); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestParseExpr(t *testing.T) {
	got, err := ParseExpr("not (a == 'x y' or var:rt:last >= 2.5) and b != null", 0)
	require.NoError(t, err)

	want := LogicalExpr{
		Op: "and",
		Left: NotExpr{X: LogicalExpr{
			Op:    "or",
			Left:  CompareExpr{Op: "==", Left: Ident{Name: "a", Start: 5, End: 6}, Right: StringLit{Value: "x y"}},
			Right: CompareExpr{Op: ">=", Left: VarOperand{Name: "rt", Modifier: "last", Start: 19, End: 30}, Right: NumberLit{Value: 2.5}},
		}},
		Right: CompareExpr{Op: "!=", Left: Ident{Name: "b", Start: 43, End: 44}, Right: NullLit{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseExpr mismatch (-want +got):\n%s", diff)
	}
}

func TestParseExpr_Aliases(t *testing.T) {
	got, err := ParseExpr("!a && b || c", 0)
	require.NoError(t, err)
	or, ok := got.(LogicalExpr)
	require.True(t, ok)
	assert.Equal(t, "or", or.Op)
	and, ok := or.Left.(LogicalExpr)
	require.True(t, ok)
	assert.Equal(t, "and", and.Op)
	assert.IsType(t, NotExpr{}, and.Left)
}

func TestParseExpr_Errors(t *testing.T) {
	for _, src := range []string{"", "a ==", "(a", "a b", "'open", "a # b", "var: > 1"} {
		_, err := ParseExpr(src, 0)
		assert.Error(t, err, src)
	}
}
