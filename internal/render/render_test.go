package render

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/payload"
)

func participant() model.EnrichedResult {
	return model.EnrichedResult{
		ResultID: "r-1",
		ComponentResults: []model.ComponentResult{
			{Name: "stroop", ParsedData: payload.List([]payload.Value{
				payload.FromRecord(payload.RecordOf("rt", 400, "correct", true, "cond", "congruent")),
				payload.FromRecord(payload.RecordOf("rt", 600, "correct", false, "cond", "incongruent")),
				payload.FromRecord(payload.RecordOf("rt", 500, "correct", true, "cond", "incongruent")),
			})},
			{Name: "survey", ParsedData: payload.FromRecord(payload.RecordOf("name", "Ada", "group", "control"))},
		},
	}
}

func renderer() *Renderer {
	return New(Options{Precision: 2})
}

func TestRender_Vars(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"Hi {{ var:name }}!", "Hi Ada!"},
		{"{{ var:rt }}", "400"},
		{"{{ var:rt:first }}", "400"},
		{"{{ var:rt:last }}", "500"},
		{"{{ var:rt:all }}", "400, 600, 500"},
		{"{{ var:rt:last | where: cond == 'congruent' }}", "400"},
		{"{{ var:rt:all | where: correct and rt >= 450 }}", "500"},
		{"{{ var:rt | where: rt > 1000 }}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			res := renderer().Render(tt.src, participant())
			require.True(t, res.Rendered, "%v", res.Diagnostics)
			assert.Equal(t, tt.want, res.Output)
			assert.Empty(t, res.Failures)
		})
	}
}

func TestRender_Stats(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{{ stat:rt.avg }}", "500.00"},
		{"{{ stat:rt.median }}", "500.00"},
		{"{{ stat:rt.sd }}", "100.00"},
		{"{{ stat:rt.count }}", "3"},
		{"{{ stat:rt.avg | where: correct == true }}", "450.00"},
		{"{{ stat:rt.median | where: correct == true }}", "450.00"},
		{"{{ stat:rt.sd | where: cond == 'congruent' }}", "0.00"},
		{"{{ stat:rt.avg | where: rt > 1000 }}", ""},
		{"{{ stat:rt.count | where: rt > 1000 }}", "0"},
		{"{{ stat:name.count }}", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			res := renderer().Render(tt.src, participant())
			require.True(t, res.Rendered, "%v", res.Diagnostics)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestRender_Conditionals(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"{{#if var:group == control}}C{{else}}T{{/if}}", "C"},
		{"{{#if var:group == 'treatment'}}T{{else}}C{{/if}}", "C"},
		{"{{#if var:rt:last > 450}}slow{{/if}}", "slow"},
		{"{{#if not var:correct:first}}x{{else}}y{{/if}}", "y"},
		{"{{#if var:rt > 100}}{{#if var:rt:last < 100}}a{{else}}b {{ var:name }}{{/if}}{{/if}}", "b Ada"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			res := renderer().Render(tt.src, participant())
			require.True(t, res.Rendered, "%v", res.Diagnostics)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestRender_RefusesInvalid(t *testing.T) {
	res := renderer().Render("Hi {{ var:missing }}", participant())
	assert.False(t, res.Rendered)
	assert.Empty(t, res.Output)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, dsl.CategoryVariable, res.Diagnostics[0].Category)
}

func TestRender_Partial(t *testing.T) {
	r := New(Options{Partial: true, Precision: 1})
	res := r.Render("Hi {{ var:name }}{{ var:missing }} {{ stat:rt.avg }} {{ var: }}.", participant())
	assert.True(t, res.Rendered)
	assert.Equal(t, "Hi Ada 500.0 .", res.Output)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Message, "malformed tag")
	assert.NotEmpty(t, res.Diagnostics)
}

func TestRender_PartialBadFilterDegrades(t *testing.T) {
	r := New(Options{Partial: true})
	res := r.Render("[{{ var:rt | where: rt >> 3 }}]", participant())
	assert.True(t, res.Rendered)
	assert.Equal(t, "[]", res.Output)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Message, "invalid where filter")
}

func TestRender_UnknownTagRendersEmpty(t *testing.T) {
	res := renderer().Render("a{{ greeting }}b", participant())
	require.True(t, res.Rendered)
	assert.Equal(t, "ab", res.Output)
}

func TestRender_LenientIfClose(t *testing.T) {
	src := "{{#if var:rt > 1}}yes{{if}}"
	assert.False(t, renderer().Render(src, participant()).Rendered)

	res := New(Options{LenientIfClose: true}).Render(src, participant())
	require.True(t, res.Rendered)
	assert.Equal(t, "yes", res.Output)
}

func TestBatch(t *testing.T) {
	results := make([]model.EnrichedResult, 25)
	for i := range results {
		results[i] = model.EnrichedResult{
			ResultID: fmt.Sprintf("r-%d", i),
			ComponentResults: []model.ComponentResult{
				{Name: "task", ParsedData: payload.FromRecord(payload.RecordOf("score", i))},
			},
		}
	}

	out, err := renderer().Batch(context.Background(), "score={{ var:score }}", results, 4)
	require.NoError(t, err)
	require.Len(t, out, len(results))
	for i, res := range out {
		assert.Equal(t, fmt.Sprintf("score=%d", i), res.Output)
	}
}

func TestBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := renderer().Batch(ctx, "x", []model.EnrichedResult{participant()}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatistic(t *testing.T) {
	vals := []payload.Value{payload.Number(2), payload.String("x"), payload.Number(4), payload.Null(), payload.Number(9)}

	v, ok, err := statistic("median", vals)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 4.0, v, 1e-9)

	v, _, _ = statistic("count", vals)
	assert.InDelta(t, 3.0, v, 1e-9)

	v, ok, _ = statistic("sd", vals[:1])
	assert.True(t, ok)
	assert.InDelta(t, 0.0, v, 1e-9)

	_, _, err = statistic("mode", vals)
	assert.Error(t, err)
}
