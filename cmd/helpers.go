package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/dsl"
	"github.com/sells-group/feedback-cli/internal/ingest"
	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/render"
	"github.com/sells-group/feedback-cli/internal/store"
)

const defaultSQLitePath = "feedback.db"

// initStore opens the configured store and applies the embedded schema.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == store.DriverSQLite && dsn == "" {
		dsn = defaultSQLitePath
	}
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		DatabaseURL: dsn,
		Pool:        &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func dslOptions() dsl.Options {
	return dsl.Options{LenientIfClose: cfg.DSL.LenientIfClose}
}

func renderOptions(partial bool) render.Options {
	return render.Options{
		Partial:        partial || cfg.Render.Partial,
		Precision:      cfg.Render.Precision,
		LenientIfClose: cfg.DSL.LenientIfClose,
	}
}

// readComponents loads data files as components named after the file
// without its extension.
func readComponents(paths []string, charset string) ([]ingest.Component, error) {
	out := make([]ingest.Component, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", p)
		}
		base := filepath.Base(p)
		ext := filepath.Ext(base)
		c := ingest.Component{
			ID:      p,
			Name:    strings.TrimSuffix(base, ext),
			Content: b,
			Charset: charset,
		}
		if strings.EqualFold(ext, ".xlsx") {
			c.ContentType = ingest.ContentTypeXLSX
		}
		out = append(out, c)
	}
	return out, nil
}

// enrichFiles parses the files as the components of one participant result.
func enrichFiles(ctx context.Context, paths []string, charset string) (model.EnrichedResult, error) {
	comps, err := readComponents(paths, charset)
	if err != nil {
		return model.EnrichedResult{}, err
	}
	return ingest.Enrich(ctx, "", comps, cfg.Render.MaxConcurrent)
}

func readTemplate(path string) (string, error) {
	if path == "" {
		return "", eris.New("--template is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read template %s", path)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode output")
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func formatVariables(w io.Writer, vars []model.VariableRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tTYPE\tEXAMPLE") //nolint:errcheck
	for _, v := range vars {
		example := ""
		if len(v.Examples) > 0 {
			example = fmt.Sprint(v.Examples[0].Value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.VariableKey, v.VariableName, v.Type, example) //nolint:errcheck
	}
	tw.Flush() //nolint:errcheck
}

func formatDiagnostics(w io.Writer, src string, diags []dsl.Diagnostic) {
	for _, d := range diags {
		line, col := position(src, d.Start)
		fmt.Fprintf(w, "%d:%d: %s [%s] %s\n", line, col, d.Severity, d.Category, d.Message) //nolint:errcheck
	}
}

// position converts a byte offset to a 1-based line and column.
func position(src string, offset int) (int, int) {
	offset = min(max(offset, 0), len(src))
	before := src[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndexByte(before, '\n')
	return line, col
}
