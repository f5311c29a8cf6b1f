package dsl

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Category groups diagnostics by what they concern.
type Category string

const (
	CategoryVariable  Category = "variable"
	CategorySyntax    Category = "syntax"
	CategoryFilter    Category = "filter"
	CategoryCondition Category = "condition"
)

// Severity of a diagnostic. Only errors make a template invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one positioned validation finding. End is exclusive.
type Diagnostic struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of Validate.
type Result struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	Valid       bool         `json:"is_valid"`
}

// Errors returns only the error-severity diagnostics.
func (r Result) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

type validator struct {
	src       string
	available NameSet
	diags     []Diagnostic
}

func (v *validator) errorf(cat Category, start, end int, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		Start:    start,
		End:      end,
		Severity: SeverityError,
	})
}

func (v *validator) warnf(cat Category, start, end int, format string, args ...any) {
	v.diags = append(v.diags, Diagnostic{
		Category: cat,
		Message:  fmt.Sprintf(format, args...),
		Start:    start,
		End:      end,
		Severity: SeverityWarning,
	})
}

// Validate checks src against the names in available and returns every
// diagnostic found. It never stops at the first problem.
func Validate(src string, available NameSet, opts Options) Result {
	tmpl, diags := ParseTemplate(src, opts)
	v := &validator{src: src, available: available, diags: diags}

	Walk(tmpl.Nodes, v.checkNode)
	v.checkBraces()
	v.checkIfBalance(opts)

	sort.SliceStable(v.diags, func(i, j int) bool { return v.diags[i].Start < v.diags[j].Start })
	res := Result{Diagnostics: v.diags, Valid: true}
	if res.Diagnostics == nil {
		res.Diagnostics = []Diagnostic{}
	}
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityError {
			res.Valid = false
			break
		}
	}
	return res
}

func (v *validator) checkNode(n Node) {
	switch n := n.(type) {
	case *VarRef:
		if !v.available.Has(n.Name) {
			v.errorf(CategoryVariable, n.NameStart, n.NameEnd, "unknown variable %q", n.Name)
		}
		if n.Modifier != "" && !slices.Contains(Modifiers, n.Modifier) {
			v.errorf(CategoryVariable, n.ModStart, n.ModEnd, "invalid modifier %q, want one of %s",
				n.Modifier, strings.Join(Modifiers, ", "))
		}
		v.checkWhere(n.Where)
	case *StatRef:
		if !v.available.Has(n.Name) {
			v.errorf(CategoryVariable, n.NameStart, n.NameEnd, "unknown variable %q", n.Name)
		}
		if !slices.Contains(Metrics, n.Metric) {
			v.errorf(CategoryVariable, n.MetricStart, n.MetricEnd, "invalid metric %q, want one of %s",
				n.Metric, strings.Join(Metrics, ", "))
		}
		v.checkWhere(n.Where)
	case *IfBlock:
		v.checkCondition(n.Cond)
	}
}

func (v *validator) checkWhere(c *Clause) {
	if c == nil {
		return
	}
	for _, f := range fieldRefs(c.Source, c.Start) {
		if !v.available.Has(f.name) {
			v.errorf(CategoryFilter, f.start, f.end, "unknown field %q in where filter", f.name)
		}
	}
}

// checkCondition only inspects embedded var: references; bare words in a
// condition are literals.
func (v *validator) checkCondition(c Clause) {
	for _, r := range scanRefs(c.Source, "var:", c.Start) {
		if !v.available.Has(r.name) {
			v.errorf(CategoryCondition, r.nameStart, r.nameEnd, "unknown variable %q in condition", r.name)
		}
		if r.modEnd > r.modStart && !slices.Contains(Modifiers, r.modifier) {
			v.errorf(CategoryCondition, r.modStart, r.modEnd, "invalid modifier %q in condition", r.modifier)
		}
	}
	// A bare word is compared as text even when it names a variable.
	toks, _ := lexExpr(c.Source, c.Start)
	for _, t := range toks {
		if t.kind == tokIdent && v.available.Has(t.text) {
			v.warnf(CategoryCondition, t.start, t.end,
				"bare word %q in condition is text, not a variable; use var:%s", t.text, t.text)
		}
	}
}

func (v *validator) checkBraces() {
	open, closed := countOverlapping(v.src, "{{"), countOverlapping(v.src, "}}")
	if open != closed {
		v.errorf(CategorySyntax, 0, len(v.src), "unbalanced braces: %d \"{{\" but %d \"}}\"", open, closed)
	}
}

func (v *validator) checkIfBalance(opts Options) {
	opens, closes := 0, 0
	for _, tok := range Lex(v.src) {
		if tok.Kind != TokenTag {
			continue
		}
		switch classify(tok.Body, opts) {
		case tagIf:
			opens++
		case tagEndIf:
			closes++
		}
	}
	if opens != closes {
		v.errorf(CategorySyntax, 0, len(v.src), "unbalanced conditionals: %d {{#if}} but %d {{/if}}", opens, closes)
	}
}
