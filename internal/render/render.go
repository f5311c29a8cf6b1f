// Package render evaluates feedback templates against enriched participant
// results.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/model"
)

// Options configures a Renderer.
type Options struct {
	// Partial renders templates that fail validation instead of refusing.
	Partial bool
	// Precision is the number of decimals for avg, median and sd.
	Precision      int
	LenientIfClose bool
}

// Failure is a tag whose evaluation failed and rendered as empty text.
type Failure struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Message string `json:"message"`
}

// Result is the outcome of rendering one participant's feedback.
type Result struct {
	Output      string           `json:"output"`
	Rendered    bool             `json:"rendered"`
	Diagnostics []dsl.Diagnostic `json:"diagnostics,omitempty"`
	Failures    []Failure        `json:"failures,omitempty"`
}

// Renderer renders templates. It is safe for concurrent use.
type Renderer struct {
	opts Options
	log  *zap.Logger
}

// New returns a Renderer.
func New(opts Options) *Renderer {
	return &Renderer{
		opts: opts,
		log:  zap.L().With(zap.String("component", "render")),
	}
}

// Render evaluates src against res. Unless Partial is set it refuses to
// render a template that does not validate against the names available in
// res, returning the diagnostics with Rendered false.
func (r *Renderer) Render(src string, res model.EnrichedResult) Result {
	dslOpts := dsl.Options{LenientIfClose: r.opts.LenientIfClose}

	v := dsl.Validate(src, dsl.AvailableNames(res), dslOpts)
	if !v.Valid && !r.opts.Partial {
		return Result{Diagnostics: v.Diagnostics}
	}

	tmpl, _ := dsl.ParseTemplate(src, dslOpts)
	st := &state{
		Renderer: r,
		session:  &session{records: res.Records()},
		resultID: res.ResultID,
	}
	var sb strings.Builder
	st.nodes(&sb, tmpl.Nodes)

	return Result{
		Output:      sb.String(),
		Rendered:    true,
		Diagnostics: v.Diagnostics,
		Failures:    st.failures,
	}
}

// Batch renders src for every result concurrently, at most concurrency at
// a time. Output order matches input order. Only cancellation of ctx is an
// error; per-participant problems are reported in each Result.
func (r *Renderer) Batch(ctx context.Context, src string, results []model.EnrichedResult, concurrency int) ([]Result, error) {
	out := make([]Result, len(results))

	g, gCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i := range results {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = r.Render(src, results[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, eris.Wrap(err, "render: batch")
	}

	r.log.Debug("render: batch complete", zap.Int("results", len(results)))
	return out, nil
}

type state struct {
	*Renderer
	*session
	resultID string
	failures []Failure
}

func (st *state) nodes(sb *strings.Builder, nodes []dsl.Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *dsl.Literal:
			sb.WriteString(n.Text)
		case *dsl.IfBlock:
			st.ifBlock(sb, n)
		case *dsl.UnknownTag:
		default:
			start, end := n.Span()
			sb.WriteString(st.tag(n, start, end))
		}
	}
}

func (st *state) ifBlock(sb *strings.Builder, b *dsl.IfBlock) {
	var cond bool
	err := st.guard(func() error {
		if b.Cond.Err != nil {
			return eris.Wrap(b.Cond.Err, "render: invalid condition")
		}
		v, err := st.eval(b.Cond.Expr, nil)
		if err != nil {
			return err
		}
		cond = truthy(v)
		return nil
	})
	if err != nil {
		st.fail(b.Start, b.End, err)
		return
	}
	if cond {
		st.nodes(sb, b.Then)
	} else {
		st.nodes(sb, b.Else)
	}
}

// tag evaluates a single var or stat tag. Any failure renders empty text.
func (st *state) tag(n dsl.Node, start, end int) string {
	var out string
	err := st.guard(func() error {
		switch n := n.(type) {
		case *dsl.VarRef:
			vals, err := st.values(n.Name, n.Where)
			if err != nil {
				return err
			}
			v, err := pick(vals, n.Modifier)
			if err != nil {
				return err
			}
			out = v.Text()
		case *dsl.StatRef:
			vals, err := st.values(n.Name, n.Where)
			if err != nil {
				return err
			}
			x, ok, err := statistic(n.Metric, vals)
			if err != nil {
				return err
			}
			if ok {
				out = formatStat(n.Metric, x, st.opts.Precision)
			}
		case *dsl.BadTag:
			return eris.Errorf("render: malformed tag: %s", n.Message)
		default:
			return eris.Errorf("render: unexpected node %T", n)
		}
		return nil
	})
	if err != nil {
		st.fail(start, end, err)
		return ""
	}
	return out
}

// guard runs fn, converting a panic into an error.
func (st *state) guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("render: panic: %v", p)
		}
	}()
	return fn()
}

func (st *state) fail(start, end int, err error) {
	st.log.Error("render: tag evaluation failed",
		zap.String("result_id", st.resultID),
		zap.String("span", fmt.Sprintf("%d-%d", start, end)),
		zap.Error(err),
	)
	st.failures = append(st.failures, Failure{Start: start, End: end, Message: err.Error()})
}
