// Package ingest turns raw component output into parsed results and
// extraction snapshots.
package ingest

import (
	"context"
	"mime"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/parse"
)

// ContentTypeXLSX is the media type of an Office Open XML workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Component is one component's raw output as fetched from the experiment.
type Component struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Content     []byte `json:"content"`
	Charset     string `json:"charset,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	// Sheet selects a workbook sheet; empty means the first.
	Sheet string `json:"sheet,omitempty"`
}

// Enrich parses every component concurrently. Parse failures are recorded on
// the component; the only error returned is ctx's.
func Enrich(ctx context.Context, resultID string, components []Component, concurrency int) (model.EnrichedResult, error) {
	out := model.EnrichedResult{
		ResultID:         resultID,
		ComponentResults: make([]model.ComponentResult, len(components)),
	}

	g, gCtx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, c := range components {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out.ComponentResults[i] = EnrichComponent(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.EnrichedResult{}, err
	}
	return out, nil
}

// EnrichComponent parses a single component.
func EnrichComponent(c Component) model.ComponentResult {
	cr := model.ComponentResult{ComponentID: c.ID, Name: c.Name}

	mediaType, charset := splitContentType(c.ContentType)
	if isWorkbook(mediaType, c.Name) {
		return apply(cr, parse.ParseXLSX(c.Content, c.Sheet))
	}

	if c.Charset != "" {
		charset = c.Charset
	}
	text, err := parse.DecodeCharset(c.Content, charset)
	if err != nil {
		cr.Raw = string(c.Content)
		cr.DetectedFormat = string(parse.FormatText)
		cr.ParseError = err.Error()
		return cr
	}
	cr.Raw = text
	if format, ok := declaredFormats[mediaType]; ok {
		return apply(cr, parse.ParseAs(text, format))
	}
	return apply(cr, parse.Parse(text))
}

// declaredFormats maps media types that pin a format. Anything else is
// detected from the content.
var declaredFormats = map[string]parse.Format{
	"application/json":          parse.FormatJSON,
	"text/csv":                  parse.FormatCSV,
	"text/tab-separated-values": parse.FormatTSV,
}

func apply(cr model.ComponentResult, res parse.Result) model.ComponentResult {
	cr.ParsedData = res.Data
	cr.DetectedFormat = string(res.Format)
	if !res.Success {
		cr.ParseError = res.Error
	}
	return cr
}

func splitContentType(ct string) (string, string) {
	if ct == "" {
		return "", ""
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct)), ""
	}
	return mediaType, params["charset"]
}

func isWorkbook(mediaType, name string) bool {
	return mediaType == ContentTypeXLSX || strings.EqualFold(path.Ext(name), ".xlsx")
}
