package dsl

import (
	"fmt"
	"strings"
)

// Options tunes parsing and validation.
type Options struct {
	// LenientIfClose accepts {{if}} as a closing tag alongside {{/if}}.
	LenientIfClose bool
}

type tagKind int

const (
	tagUnknown tagKind = iota
	tagVar
	tagStat
	tagIf
	tagElse
	tagEndIf
)

func classify(body string, opts Options) tagKind {
	b := strings.TrimSpace(body)
	switch {
	case strings.HasPrefix(b, "var:"):
		return tagVar
	case strings.HasPrefix(b, "stat:"):
		return tagStat
	case b == "#if" || strings.HasPrefix(b, "#if ") || strings.HasPrefix(b, "#if\t") || strings.HasPrefix(b, "#if("):
		return tagIf
	case b == "else":
		return tagElse
	case b == "/if":
		return tagEndIf
	case b == "if" && opts.LenientIfClose:
		return tagEndIf
	default:
		return tagUnknown
	}
}

// ParseTemplate parses src into an AST. It never fails: malformed var and
// stat tags become BadTag nodes with a syntax diagnostic, and unrecognised
// tags or a stray {{else}} produce warnings. Balance of braces and if blocks
// is left to Validate.
func ParseTemplate(src string, opts Options) (*Template, []Diagnostic) {
	p := &parser{src: src, toks: Lex(src), opts: opts}
	nodes, _ := p.parseNodes(false)
	return &Template{Source: src, Nodes: nodes}, p.diags
}

type parser struct {
	src   string
	toks  []Token
	pos   int
	opts  Options
	diags []Diagnostic
}

func (p *parser) warn(category Category, start, end int, format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Start:    start,
		End:      end,
		Severity: SeverityWarning,
	})
}

// parseNodes consumes tokens until EOF or, inside an if block, until an
// else or closing tag, which it returns without consuming.
func (p *parser) parseNodes(inIf bool) ([]Node, tagKind) {
	var nodes []Node
	for p.pos < len(p.toks) {
		tok := p.toks[p.pos]
		if tok.Kind == TokenText {
			nodes = append(nodes, &Literal{Text: p.src[tok.Start:tok.End], Start: tok.Start, End: tok.End})
			p.pos++
			continue
		}

		kind := classify(tok.Body, p.opts)
		switch kind {
		case tagElse, tagEndIf:
			if inIf {
				return nodes, kind
			}
			p.pos++
			if kind == tagElse {
				p.warn(CategorySyntax, tok.Start, tok.End, "{{else}} outside an if block")
			}
		case tagIf:
			nodes = append(nodes, p.parseIf())
		case tagVar:
			nodes = append(nodes, p.parseVar(tok))
			p.pos++
		case tagStat:
			nodes = append(nodes, p.parseStat(tok))
			p.pos++
		default:
			p.warn(CategorySyntax, tok.Start, tok.End, "unrecognised tag %q", strings.TrimSpace(tok.Body))
			nodes = append(nodes, &UnknownTag{Body: tok.Body, Start: tok.Start, End: tok.End})
			p.pos++
		}
	}
	return nodes, tagUnknown
}

func (p *parser) parseIf() Node {
	open := p.toks[p.pos]
	p.pos++

	trimmed := strings.TrimLeft(open.Body, " \t\r\n")
	condStart := open.BodyStart + (len(open.Body) - len(trimmed)) + len("#if")
	cond := newClause(p.src[condStart:open.End-2], condStart)

	block := &IfBlock{Cond: cond, Start: open.Start, End: open.End}

	var stop tagKind
	block.Then, stop = p.parseNodes(true)
	if stop == tagElse {
		p.pos++
		for {
			var more []Node
			more, stop = p.parseNodes(true)
			block.Else = append(block.Else, more...)
			if stop != tagElse {
				break
			}
			tok := p.toks[p.pos]
			p.warn(CategorySyntax, tok.Start, tok.End, "duplicate {{else}} in if block")
			p.pos++
		}
	}
	if stop == tagEndIf {
		block.End = p.toks[p.pos].End
		block.Closed = true
		p.pos++
	} else {
		block.End = len(p.src)
	}
	return block
}

func newClause(text string, start int) Clause {
	lead := len(text) - len(strings.TrimLeft(text, " \t\r\n"))
	trimmed := strings.TrimSpace(text)
	c := Clause{Source: trimmed, Start: start + lead, End: start + lead + len(trimmed)}
	c.Expr, c.Err = ParseExpr(trimmed, c.Start)
	return c
}

// tagBody holds the parts shared by var and stat tags.
type tagBody struct {
	nameStart, nameEnd int
	modStart, modEnd   int
	where              *Clause
}

// parseRef parses "<keyword>:<name>[:<modifier>] [| where: <expr>]" in the
// body of tok. allowModifier is false for stat tags.
func parseRef(tok Token, keyword string, allowModifier bool) (tagBody, string) {
	body := tok.Body
	var tb tagBody

	i := skipSpace(body, 0) + len(keyword)
	tb.nameStart = i
	i = scanName(body, i)
	tb.nameEnd = i
	if tb.nameStart == tb.nameEnd {
		return tb, fmt.Sprintf("%s name expected after %q", strings.TrimSuffix(keyword, ":"), keyword)
	}
	if !validName(body[tb.nameStart:tb.nameEnd]) {
		return tb, fmt.Sprintf("malformed name %q", body[tb.nameStart:tb.nameEnd])
	}

	if i < len(body) && body[i] == ':' {
		if !allowModifier {
			return tb, "stat tags take no modifier"
		}
		i++
		tb.modStart = i
		for i < len(body) && isWordChar(body[i]) {
			i++
		}
		tb.modEnd = i
		if tb.modStart == tb.modEnd {
			return tb, "modifier expected after ':'"
		}
	}

	i = skipSpace(body, i)
	if i < len(body) && body[i] == '|' {
		i = skipSpace(body, i+1)
		if !strings.HasPrefix(body[i:], "where:") {
			return tb, "expected \"where:\" after '|'"
		}
		i += len("where:")
		if strings.TrimSpace(body[i:]) == "" {
			return tb, "empty where clause"
		}
		c := newClause(body[i:], tok.BodyStart+i)
		tb.where = &c
		i = len(body)
	}

	if i = skipSpace(body, i); i < len(body) {
		return tb, fmt.Sprintf("unexpected %q in tag", strings.TrimSpace(body[i:]))
	}
	return tb, ""
}

func (p *parser) bad(tok Token, msg string) Node {
	p.diags = append(p.diags, Diagnostic{
		Category: CategorySyntax,
		Message:  msg,
		Start:    tok.Start,
		End:      tok.End,
		Severity: SeverityError,
	})
	return &BadTag{Body: tok.Body, Message: msg, Start: tok.Start, End: tok.End}
}

func (p *parser) parseVar(tok Token) Node {
	tb, msg := parseRef(tok, "var:", true)
	if msg != "" {
		return p.bad(tok, msg)
	}
	base := tok.BodyStart
	ref := &VarRef{
		Name:      tok.Body[tb.nameStart:tb.nameEnd],
		Where:     tb.where,
		Start:     tok.Start,
		End:       tok.End,
		NameStart: base + tb.nameStart,
		NameEnd:   base + tb.nameEnd,
	}
	if tb.modEnd > tb.modStart {
		ref.Modifier = tok.Body[tb.modStart:tb.modEnd]
		ref.ModStart = base + tb.modStart
		ref.ModEnd = base + tb.modEnd
	}
	return ref
}

func (p *parser) parseStat(tok Token) Node {
	tb, msg := parseRef(tok, "stat:", false)
	if msg != "" {
		return p.bad(tok, msg)
	}
	full := tok.Body[tb.nameStart:tb.nameEnd]
	dot := strings.LastIndexByte(full, '.')
	if dot < 0 {
		return p.bad(tok, fmt.Sprintf("stat %q has no metric, want <name>.<metric>", full))
	}
	base := tok.BodyStart + tb.nameStart
	return &StatRef{
		Name:        full[:dot],
		Metric:      full[dot+1:],
		Where:       tb.where,
		Start:       tok.Start,
		End:         tok.End,
		NameStart:   base,
		NameEnd:     base + dot,
		MetricStart: base + dot + 1,
		MetricEnd:   base + len(full),
	}
}
