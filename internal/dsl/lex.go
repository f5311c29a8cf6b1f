// Package dsl implements the feedback template language: a lexer for
// {{ ... }} tags, a parser producing a shared AST, a static required-keys
// scanner, and a validator that reports positioned diagnostics.
//
// Grammar:
//
//	{{ var:<name>[:first|last|all] [| where: <expr>] }}
//	{{ stat:<name>.<avg|median|sd|count> [| where: <expr>] }}
//	{{#if <expr>}} ... [{{else}} ...] {{/if}}
//
// Offsets throughout the package are byte offsets into the template source.
package dsl

import "strings"

// TokenKind distinguishes literal text from tags.
type TokenKind int

const (
	TokenText TokenKind = iota
	TokenTag
)

// Token is one lexical span of a template. For tags, Body is the text
// between the braces and BodyStart its offset.
type Token struct {
	Kind      TokenKind
	Start     int
	End       int
	Body      string
	BodyStart int
}

// Lex splits src into text and tag tokens. Tags do not nest: the last "{{"
// before a "}}" opens the tag. An unterminated "{{" is lexed as text.
func Lex(src string) []Token {
	var toks []Token
	pos, textStart := 0, 0
	for pos < len(src) {
		open := strings.Index(src[pos:], "{{")
		if open < 0 {
			break
		}
		open += pos
		end := strings.Index(src[open+2:], "}}")
		if end < 0 {
			break
		}
		end += open + 2
		if inner := strings.LastIndex(src[open+2:end], "{{"); inner >= 0 {
			open += 2 + inner
		}
		if open > textStart {
			toks = append(toks, Token{Kind: TokenText, Start: textStart, End: open})
		}
		toks = append(toks, Token{
			Kind:      TokenTag,
			Start:     open,
			End:       end + 2,
			Body:      src[open+2 : end],
			BodyStart: open + 2,
		})
		pos = end + 2
		textStart = pos
	}
	if textStart < len(src) {
		toks = append(toks, Token{Kind: TokenText, Start: textStart, End: len(src)})
	}
	return toks
}

// countOverlapping counts occurrences of sep in s, including overlapping
// ones, so "}}}" holds two "}}".
func countOverlapping(s, sep string) int {
	n := 0
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			n++
		}
	}
	return n
}

func isNameChar(c byte) bool {
	return c == '_' || c == '.' || isWordChar(c)
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

func scanName(s string, i int) int {
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	return i
}

// validName reports whether name is one or more dot-separated word segments.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return false
		}
		for i := 0; i < len(seg); i++ {
			if !isWordChar(seg[i]) {
				return false
			}
		}
	}
	return true
}
