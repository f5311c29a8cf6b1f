package parse

import (
	"strings"

	"github.com/sells-group/feedback-cli/internal/payload"
)

// Result is the uniform outcome of parsing a raw payload. A failed parse is
// reported through Success and Error, never by panicking.
type Result struct {
	Success    bool          `json:"success"`
	Format     Format        `json:"format"`
	Confidence float64       `json:"confidence"`
	Data       payload.Value `json:"data"`
	RowCount   int           `json:"row_count,omitempty"`
	Headers    []string      `json:"headers,omitempty"`
	Errors     []LineError   `json:"errors,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Parse detects the format of text and dispatches to the matching parser.
func Parse(text string) Result {
	d := Detect(text)
	res := parseAs(text, d.Format, d.Delimiter)
	res.Confidence = d.Confidence
	return res
}

// ParseAs parses text as the claimed format, skipping detection. Delimited
// formats without an explicit delimiter use ',' for csv and tab for tsv.
func ParseAs(text string, format Format) Result {
	var delim rune
	switch format {
	case FormatCSV:
		delim = ','
	case FormatTSV:
		delim = '\t'
	}
	res := parseAs(text, format, delim)
	res.Confidence = 1.0
	return res
}

func parseAs(text string, format Format, delim rune) Result {
	switch format {
	case FormatJSON:
		v, err := DecodeJSON(strings.TrimSpace(text))
		if err != nil {
			return Result{Format: FormatJSON, Data: payload.Null(), Error: err.Error()}
		}
		return Result{Success: true, Format: FormatJSON, Data: v, RowCount: rowCount(v)}

	case FormatCSV, FormatTSV:
		header := true
		tab := ParseTabular(text, TabularOptions{Delimiter: delim, HasHeader: &header})
		res := Result{
			Success:  true,
			Format:   format,
			RowCount: tab.RowCount,
			Headers:  tab.Headers,
			Errors:   tab.Errors,
		}
		items := make([]payload.Value, len(tab.Data))
		for i, rec := range tab.Data {
			items[i] = payload.FromRecord(rec)
		}
		res.Data = payload.List(items)
		if tab.RowCount == 0 && len(tab.Errors) > 0 {
			res.Success = false
			res.Data = payload.Null()
			res.Error = joinErrors(tab.Errors)
		}
		return res

	default:
		return Result{Success: true, Format: FormatText, Data: payload.String(text)}
	}
}

func rowCount(v payload.Value) int {
	switch v.Kind() {
	case payload.KindList:
		return len(v.Items())
	case payload.KindRecord:
		return 1
	default:
		return 0
	}
}

func joinErrors(errs []LineError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
