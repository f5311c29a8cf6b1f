package dsl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestLex(t *testing.T) {
	src := "Hi {{ var:rt }}, bye {{ unterminated"
	got := Lex(src)
	want := []Token{
		{Kind: TokenText, Start: 0, End: 3},
		{Kind: TokenTag, Start: 3, End: 15, Body: " var:rt ", BodyStart: 5},
		{Kind: TokenText, Start: 15, End: len(src)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lex mismatch (-want +got):\n%s", diff)
	}
}

func TestLex_InnermostOpenWins(t *testing.T) {
	got := Lex("{{ a {{ var:x }}")
	if assert.Len(t, got, 2) {
		assert.Equal(t, TokenText, got[0].Kind)
		assert.Equal(t, " var:x ", got[1].Body)
	}
}

func TestLex_TrailingBrace(t *testing.T) {
	got := Lex("{{ var:rt }}}")
	if assert.Len(t, got, 2) {
		assert.Equal(t, " var:rt ", got[0].Body)
		assert.Equal(t, TokenText, got[1].Kind)
	}
}

func TestCountOverlapping(t *testing.T) {
	assert.Equal(t, 2, countOverlapping("}}}", "}}"))
	assert.Equal(t, 3, countOverlapping("{{ {{{", "{{"))
	assert.Equal(t, 0, countOverlapping("}", "}}"))
}
