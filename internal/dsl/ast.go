package dsl

// Node is an element of a parsed template.
type Node interface {
	Span() (start, end int)
}

// Template is a parsed template.
type Template struct {
	Source string
	Nodes  []Node
}

// Literal is text copied to the output unchanged.
type Literal struct {
	Text       string
	Start, End int
}

// Clause is a where filter or an if condition. Expr is nil and Err set when
// the expression does not parse.
type Clause struct {
	Source     string
	Start, End int
	Expr       Expr
	Err        error
}

// VarRef is a {{ var:... }} tag.
type VarRef struct {
	Name       string
	Modifier   string // empty when omitted
	Where      *Clause
	Start, End int

	NameStart, NameEnd int
	ModStart, ModEnd   int
}

// StatRef is a {{ stat:... }} tag.
type StatRef struct {
	Name       string
	Metric     string
	Where      *Clause
	Start, End int

	NameStart, NameEnd     int
	MetricStart, MetricEnd int
}

// IfBlock is a {{#if}} ... {{else}} ... {{/if}} block. Closed is false when
// the source ends before the closing tag.
type IfBlock struct {
	Cond       Clause
	Then       []Node
	Else       []Node
	Closed     bool
	Start, End int
}

// BadTag is a var or stat tag whose body does not match the tag grammar.
type BadTag struct {
	Body       string
	Message    string
	Start, End int
}

// UnknownTag is a tag with no recognised keyword.
type UnknownTag struct {
	Body       string
	Start, End int
}

func (n *Literal) Span() (int, int)    { return n.Start, n.End }
func (n *VarRef) Span() (int, int)     { return n.Start, n.End }
func (n *StatRef) Span() (int, int)    { return n.Start, n.End }
func (n *IfBlock) Span() (int, int)    { return n.Start, n.End }
func (n *BadTag) Span() (int, int)     { return n.Start, n.End }
func (n *UnknownTag) Span() (int, int) { return n.Start, n.End }

// Modifiers accepted on var tags.
var Modifiers = []string{"first", "last", "all"}

// Metrics accepted on stat tags.
var Metrics = []string{"avg", "median", "sd", "count"}

// DefaultModifier applies when a var tag omits its modifier.
const DefaultModifier = "first"

// Walk calls fn for every node in nodes, descending into if blocks.
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		if b, ok := n.(*IfBlock); ok {
			Walk(b.Then, fn)
			Walk(b.Else, fn)
		}
	}
}
