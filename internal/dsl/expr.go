package dsl

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Expr is a filter or condition expression.
type Expr interface {
	exprNode()
}

// LogicalExpr joins two expressions with "and" or "or".
type LogicalExpr struct {
	Op          string
	Left, Right Expr
}

// NotExpr negates X.
type NotExpr struct {
	X Expr
}

// CompareExpr is a binary comparison: == != > < >= <=.
type CompareExpr struct {
	Op          string
	Left, Right Expr
}

// Ident is a bare field name. In where filters it names a record field; in
// if conditions it is a literal word.
type Ident struct {
	Name       string
	Start, End int
}

// VarOperand is an embedded var:name[:modifier] reference.
type VarOperand struct {
	Name       string
	Modifier   string
	Start, End int
}

// NumberLit is a numeric literal.
type NumberLit struct{ Value float64 }

// StringLit is a quoted string literal.
type StringLit struct{ Value string }

// BoolLit is true or false.
type BoolLit struct{ Value bool }

// NullLit is null.
type NullLit struct{}

func (LogicalExpr) exprNode() {}
func (NotExpr) exprNode()     {}
func (CompareExpr) exprNode() {}
func (Ident) exprNode()       {}
func (VarOperand) exprNode()  {}
func (NumberLit) exprNode()   {}
func (StringLit) exprNode()   {}
func (BoolLit) exprNode()     {}
func (NullLit) exprNode()     {}

type exprTokKind int

const (
	tokIdent exprTokKind = iota
	tokVar
	tokNumber
	tokString
	tokKeyword
	tokOp
	tokLParen
	tokRParen
)

type exprTok struct {
	kind       exprTokKind
	text       string // identifier, keyword, operator, or unquoted string
	modifier   string // tokVar only
	start, end int
}

// keywords are dropped when collecting field names. null is a literal
// alongside true and false.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "true": true, "false": true, "null": true,
}

// lexExpr tokenizes an expression. base is the offset of s in the template.
// Lexing continues past invalid characters; the first one is returned as err.
func lexExpr(s string, base int) (toks []exprTok, err error) {
	fail := func(i int, msg string) {
		if err == nil {
			err = eris.Errorf("%s at offset %d", msg, base+i)
		}
	}
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpace(c):
			i++

		case c == '(' || c == ')':
			kind := tokLParen
			if c == ')' {
				kind = tokRParen
			}
			toks = append(toks, exprTok{kind: kind, text: string(c), start: base + i, end: base + i + 1})
			i++

		case c == '\'' || c == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(s) && s[j] != c {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				sb.WriteByte(s[j])
				j++
			}
			if j >= len(s) {
				fail(i, "unterminated string")
				return toks, err
			}
			toks = append(toks, exprTok{kind: tokString, text: sb.String(), start: base + i, end: base + j + 1})
			i = j + 1

		case strings.ContainsRune("=!<>&|", rune(c)):
			op, n := scanOperator(s[i:])
			if n == 0 {
				fail(i, "unexpected "+strconv.Quote(string(c)))
				i++
				continue
			}
			toks = append(toks, exprTok{kind: tokOp, text: op, start: base + i, end: base + i + n})
			i += n

		case isNameChar(c) || c == '-':
			j := i + 1
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			word := s[i:j]
			if word == "var" && j < len(s) && s[j] == ':' {
				tok, n := scanVarOperand(s[i:], base+i)
				toks = append(toks, tok)
				i += n
				continue
			}
			switch {
			case keywords[word]:
				toks = append(toks, exprTok{kind: tokKeyword, text: word, start: base + i, end: base + j})
			case isNumeric(word):
				toks = append(toks, exprTok{kind: tokNumber, text: word, start: base + i, end: base + j})
			case c == '-':
				fail(i, "unexpected \"-\"")
				if j > i+1 {
					toks = append(toks, exprTok{kind: tokIdent, text: word[1:], start: base + i + 1, end: base + j})
				}
			default:
				toks = append(toks, exprTok{kind: tokIdent, text: word, start: base + i, end: base + j})
			}
			i = j

		default:
			fail(i, "unexpected "+strconv.Quote(string(c)))
			i++
		}
	}
	return toks, err
}

func scanOperator(s string) (string, int) {
	for _, op := range []string{"==", "!=", ">=", "<=", "&&", "||"} {
		if strings.HasPrefix(s, op) {
			switch op {
			case "&&":
				return "and", 2
			case "||":
				return "or", 2
			}
			return op, 2
		}
	}
	switch s[0] {
	case '>', '<':
		return s[:1], 1
	case '!':
		return "not", 1
	case '=':
		return "==", 1
	}
	return "", 0
}

// scanVarOperand reads var:name[:modifier] at the start of s.
func scanVarOperand(s string, base int) (exprTok, int) {
	i := len("var:")
	nameEnd := scanName(s, i)
	tok := exprTok{kind: tokVar, text: s[i:nameEnd], start: base}
	i = nameEnd
	if i < len(s) && s[i] == ':' {
		j := i + 1
		for j < len(s) && isWordChar(s[j]) {
			j++
		}
		tok.modifier = s[i+1 : j]
		i = j
	}
	tok.end = base + i
	return tok, i
}

// isNumeric reports whether s is a plain decimal literal such as 3, -2 or
// 0.75.
func isNumeric(s string) bool {
	s = strings.TrimPrefix(s, "-")
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1 && s[0] != '.' && s[len(s)-1] != '.'
}

// ParseExpr parses an expression. base is the offset of s in the template.
func ParseExpr(s string, base int) (Expr, error) {
	toks, err := lexExpr(s, base)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, eris.New("empty expression")
	}
	p := &exprParser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		t := p.toks[p.pos]
		return nil, eris.Errorf("unexpected %q at offset %d", t.text, t.start)
	}
	return e, nil
}

type exprParser struct {
	toks []exprTok
	pos  int
}

func (p *exprParser) peek() (exprTok, bool) {
	if p.pos >= len(p.toks) {
		return exprTok{}, false
	}
	return p.toks[p.pos], true
}

func (p *exprParser) accept(kind exprTokKind, text string) bool {
	t, ok := p.peek()
	if ok && (t.kind == kind || (kind == tokKeyword && t.kind == tokOp)) && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tokKeyword, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = LogicalExpr{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept(tokKeyword, "and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = LogicalExpr{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (Expr, error) {
	if p.accept(tokKeyword, "not") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NotExpr{X: x}, nil
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	t, ok := p.peek()
	if !ok || t.kind != tokOp {
		return left, nil
	}
	switch t.text {
	case "==", "!=", ">", "<", ">=", "<=":
	default:
		return left, nil
	}
	p.pos++
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return CompareExpr{Op: t.text, Left: left, Right: right}, nil
}

func (p *exprParser) parseOperand() (Expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, eris.New("unexpected end of expression")
	}
	p.pos++
	switch t.kind {
	case tokLParen:
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(tokRParen, ")") {
			return nil, eris.Errorf("missing ')' for '(' at offset %d", t.start)
		}
		return e, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid number %q", t.text)
		}
		return NumberLit{Value: f}, nil
	case tokString:
		return StringLit{Value: t.text}, nil
	case tokVar:
		if t.text == "" {
			return nil, eris.Errorf("variable name expected at offset %d", t.start)
		}
		return VarOperand{Name: t.text, Modifier: t.modifier, Start: t.start, End: t.end}, nil
	case tokIdent:
		return Ident{Name: t.text, Start: t.start, End: t.end}, nil
	case tokKeyword:
		switch t.text {
		case "true":
			return BoolLit{Value: true}, nil
		case "false":
			return BoolLit{Value: false}, nil
		case "null":
			return NullLit{}, nil
		}
	}
	return nil, eris.Errorf("unexpected %q at offset %d", t.text, t.start)
}

// fieldRef is a field or variable name referenced by an expression.
type fieldRef struct {
	name       string
	start, end int
}

// fieldRefs returns the identifier and var-operand names in s, skipping
// keywords, numeric literals and quoted strings. It tolerates expressions
// that do not parse.
func fieldRefs(s string, base int) []fieldRef {
	toks, _ := lexExpr(s, base)
	var out []fieldRef
	for _, t := range toks {
		switch t.kind {
		case tokIdent:
			out = append(out, fieldRef{name: t.text, start: t.start, end: t.end})
		case tokVar:
			if t.text != "" {
				out = append(out, fieldRef{name: t.text, start: t.start + len("var:"), end: t.start + len("var:") + len(t.text)})
			}
		}
	}
	return out
}
