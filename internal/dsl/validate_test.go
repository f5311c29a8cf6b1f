package dsl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/payload"
)

var ignoreMessage = cmpopts.IgnoreFields(Diagnostic{}, "Message")

func TestValidate_UnknownVariable(t *testing.T) {
	res := Validate("{{ var:unknown }}", NewNameSet("rt"), Options{})
	assert.False(t, res.Valid)
	want := []Diagnostic{{Category: CategoryVariable, Start: 7, End: 14, Severity: SeverityError}}
	if diff := cmp.Diff(want, res.Diagnostics, ignoreMessage); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_InvalidModifier(t *testing.T) {
	src := "{{ var:rt:bogus }}"
	res := Validate(src, NewNameSet("rt"), Options{})
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, CategoryVariable, d.Category)
	assert.Equal(t, "bogus", src[d.Start:d.End])
	assert.Contains(t, d.Message, "invalid modifier")
}

func TestValidate_UnbalancedBraces(t *testing.T) {
	src := "{{ var:rt }}}"
	res := Validate(src, NewNameSet("rt"), Options{})
	assert.False(t, res.Valid)
	want := []Diagnostic{{Category: CategorySyntax, Start: 0, End: len(src), Severity: SeverityError}}
	if diff := cmp.Diff(want, res.Diagnostics, ignoreMessage); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_InvalidMetric(t *testing.T) {
	src := "{{ stat:rt.mean }}"
	res := Validate(src, NewNameSet("rt"), Options{})
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, CategoryVariable, d.Category)
	assert.Equal(t, "mean", src[d.Start:d.End])
}

func TestValidate_WhereFields(t *testing.T) {
	src := "{{ stat:rt.avg | where: correct == true and phase == 'test' and trial > 3 }}"
	res := Validate(src, NewNameSet("rt", "correct"), Options{})
	require.Len(t, res.Diagnostics, 2)
	for _, d := range res.Diagnostics {
		assert.Equal(t, CategoryFilter, d.Category)
	}
	assert.Equal(t, "phase", src[res.Diagnostics[0].Start:res.Diagnostics[0].End])
	assert.Equal(t, "trial", src[res.Diagnostics[1].Start:res.Diagnostics[1].End])
}

func TestValidate_Condition(t *testing.T) {
	src := "{{#if var:acc:middle > 0.5 and var:missing == high}}ok{{/if}}"
	res := Validate(src, NewNameSet("acc"), Options{})
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, CategoryCondition, res.Diagnostics[0].Category)
	assert.Equal(t, "middle", src[res.Diagnostics[0].Start:res.Diagnostics[0].End])
	assert.Equal(t, CategoryCondition, res.Diagnostics[1].Category)
	assert.Equal(t, "missing", src[res.Diagnostics[1].Start:res.Diagnostics[1].End])
}

func TestValidate_BareWordNamingVariableWarns(t *testing.T) {
	src := "{{#if correct == true and var:group == control}}yes{{else}}no{{/if}}"
	res := Validate(src, NewNameSet("correct", "group"), Options{})
	assert.True(t, res.Valid)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, SeverityWarning, d.Severity)
	assert.Equal(t, CategoryCondition, d.Category)
	assert.Equal(t, "correct", src[d.Start:d.End])
}

func TestValidate_WhereHyphenChecksBothWords(t *testing.T) {
	src := "{{ var:rt | where: a-b > 1 }}"
	res := Validate(src, NewNameSet("rt", "a"), Options{})
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CategoryFilter, res.Diagnostics[0].Category)
	assert.Equal(t, "b", src[res.Diagnostics[0].Start:res.Diagnostics[0].End])
}

func TestValidate_WhereNullIsLiteral(t *testing.T) {
	res := Validate("{{ var:rt | where: rt != null }}", NewNameSet("rt"), Options{})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Diagnostics)
}

func TestValidate_IfBalance(t *testing.T) {
	res := Validate("{{#if var:rt > 1}}slow", NewNameSet("rt"), Options{})
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CategorySyntax, res.Diagnostics[0].Category)
	assert.Equal(t, 0, res.Diagnostics[0].Start)

	res = Validate("{{#if var:rt > 1}}slow{{/if}}", NewNameSet("rt"), Options{})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Diagnostics)
}

func TestValidate_LenientIfClose(t *testing.T) {
	src := "{{#if var:rt > 1}}slow{{if}}"

	strict := Validate(src, NewNameSet("rt"), Options{})
	assert.False(t, strict.Valid)
	assert.Len(t, strict.Errors(), 1)

	lenient := Validate(src, NewNameSet("rt"), Options{LenientIfClose: true})
	assert.True(t, lenient.Valid)
}

func TestValidate_MalformedTagSkipsNameChecks(t *testing.T) {
	res := Validate("{{ var:nope extra }}", NewNameSet("rt"), Options{})
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, CategorySyntax, res.Diagnostics[0].Category)
}

func TestValidate_WarningsDoNotBlock(t *testing.T) {
	res := Validate("Hello {{ name }} {{else}} {{ var:rt }}", NewNameSet("rt"), Options{})
	assert.True(t, res.Valid)
	assert.Len(t, res.Diagnostics, 2)
	assert.Empty(t, res.Errors())
}

func TestValidate_CollectsEverything(t *testing.T) {
	src := "{{ var:a:zz }} {{ stat:b.mode }} {{ var:c | where: d > 1 }} {{#if var:e}}x"
	res := Validate(src, NewNameSet(), Options{})

	cats := make([]Category, len(res.Diagnostics))
	for i, d := range res.Diagnostics {
		cats[i] = d.Category
	}
	want := []Category{
		CategorySyntax, // unbalanced if, whole source
		CategoryVariable, CategoryVariable,
		CategoryVariable, CategoryVariable,
		CategoryVariable, CategoryFilter,
		CategoryCondition,
	}
	assert.Equal(t, want, cats)
}

func TestAvailableNames(t *testing.T) {
	res := model.EnrichedResult{ComponentResults: []model.ComponentResult{
		{Name: "task", ParsedData: payload.List([]payload.Value{
			payload.FromRecord(payload.RecordOf("rt", 1, "correct", true)),
			payload.FromRecord(payload.RecordOf("rt", 2, "block", "B")),
		})},
		{Name: "survey", ParsedData: payload.FromRecord(payload.RecordOf("age", 30))},
		{Name: "notes", ParsedData: payload.String("free text")},
	}}
	assert.Equal(t, []string{"age", "block", "correct", "rt"}, AvailableNames(res).Sorted())
}

func TestNamesFromVariables(t *testing.T) {
	set := NamesFromVariables([]model.VariableRecord{
		{VariableKey: "task.rt", VariableName: "rt"},
		{VariableKey: "survey.age", VariableName: "age"},
	})
	assert.True(t, set.Has("rt"))
	assert.False(t, set.Has("task.rt"))
}
