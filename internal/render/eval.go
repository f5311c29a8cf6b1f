package render

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/payload"
)

// session renders one template against the records of one enriched result.
type session struct {
	records []*payload.Record
}

// eval evaluates e. Inside a where filter rec is the candidate record and
// identifiers resolve to its fields; in an if condition rec is nil and
// identifiers are literal words.
func (s *session) eval(e dsl.Expr, rec *payload.Record) (payload.Value, error) {
	switch e := e.(type) {
	case dsl.NumberLit:
		return payload.Number(e.Value), nil
	case dsl.StringLit:
		return payload.String(e.Value), nil
	case dsl.BoolLit:
		return payload.Bool(e.Value), nil
	case dsl.NullLit:
		return payload.Null(), nil
	case dsl.Ident:
		if rec == nil {
			return payload.String(e.Name), nil
		}
		if v, ok := rec.Lookup(e.Name); ok {
			return v, nil
		}
		return payload.Null(), nil
	case dsl.VarOperand:
		vals, err := s.values(e.Name, nil)
		if err != nil {
			return payload.Null(), err
		}
		return pick(vals, e.Modifier)
	case dsl.NotExpr:
		v, err := s.eval(e.X, rec)
		if err != nil {
			return payload.Null(), err
		}
		return payload.Bool(!truthy(v)), nil
	case dsl.LogicalExpr:
		l, err := s.eval(e.Left, rec)
		if err != nil {
			return payload.Null(), err
		}
		if e.Op == "and" && !truthy(l) {
			return payload.Bool(false), nil
		}
		if e.Op == "or" && truthy(l) {
			return payload.Bool(true), nil
		}
		r, err := s.eval(e.Right, rec)
		if err != nil {
			return payload.Null(), err
		}
		return payload.Bool(truthy(r)), nil
	case dsl.CompareExpr:
		l, err := s.eval(e.Left, rec)
		if err != nil {
			return payload.Null(), err
		}
		r, err := s.eval(e.Right, rec)
		if err != nil {
			return payload.Null(), err
		}
		return payload.Bool(compare(e.Op, l, r)), nil
	default:
		return payload.Null(), eris.Errorf("render: unsupported expression %T", e)
	}
}

// values returns the value of name in every record that has it and passes
// where, in record order.
func (s *session) values(name string, where *dsl.Clause) ([]payload.Value, error) {
	var out []payload.Value
	for _, rec := range s.records {
		if where != nil {
			ok, err := s.matches(where, rec)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		if v, ok := rec.Lookup(name); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *session) matches(c *dsl.Clause, rec *payload.Record) (bool, error) {
	if c.Err != nil {
		return false, eris.Wrap(c.Err, "render: invalid where filter")
	}
	v, err := s.eval(c.Expr, rec)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// pick applies a var modifier to the matched values.
func pick(vals []payload.Value, modifier string) (payload.Value, error) {
	if modifier == "" {
		modifier = dsl.DefaultModifier
	}
	if len(vals) == 0 {
		switch modifier {
		case "first", "last", "all":
			return payload.Null(), nil
		}
	}
	switch modifier {
	case "first":
		return vals[0], nil
	case "last":
		return vals[len(vals)-1], nil
	case "all":
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.Text()
		}
		return payload.String(strings.Join(parts, ", ")), nil
	default:
		return payload.Null(), eris.Errorf("render: invalid modifier %q", modifier)
	}
}

func truthy(v payload.Value) bool {
	switch v.Kind() {
	case payload.KindBool:
		b, _ := v.Boolean()
		return b
	case payload.KindNumber:
		n, _ := v.Num()
		return n != 0
	case payload.KindString:
		s, _ := v.Str()
		return s != ""
	case payload.KindList:
		return len(v.Items()) > 0
	case payload.KindRecord:
		return true
	default:
		return false
	}
}

// number reads v as a number, accepting numeric strings.
func number(v payload.Value) (float64, bool) {
	if n, ok := v.Num(); ok {
		return n, true
	}
	if s, ok := v.Str(); ok {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func compare(op string, l, r payload.Value) bool {
	if ln, ok := number(l); ok {
		if rn, ok := number(r); ok && (l.Kind() == payload.KindNumber || r.Kind() == payload.KindNumber) {
			switch op {
			case "==":
				return ln == rn
			case "!=":
				return ln != rn
			case ">":
				return ln > rn
			case "<":
				return ln < rn
			case ">=":
				return ln >= rn
			case "<=":
				return ln <= rn
			}
		}
	}

	switch op {
	case "==":
		return equal(l, r)
	case "!=":
		return !equal(l, r)
	}

	ls, lok := l.Str()
	rs, rok := r.Str()
	if !lok || !rok {
		return false
	}
	c := strings.Compare(ls, rs)
	switch op {
	case ">":
		return c > 0
	case "<":
		return c < 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	}
	return false
}

func equal(l, r payload.Value) bool {
	if l.Kind() == r.Kind() {
		return l.Equal(r)
	}
	if l.IsNull() || r.IsNull() {
		return false
	}
	return l.Text() == r.Text()
}
