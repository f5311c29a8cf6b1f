package parse

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feedback-cli/internal/payload"
)

// TabularOptions configures ParseTabular.
type TabularOptions struct {
	Delimiter rune  // 0 = auto-detect
	HasHeader *bool // nil = true
	QuoteChar rune  // 0 = '"'
}

// LineError is a parse problem scoped to one source line. Line 0 marks a
// problem with the whole input.
type LineError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e LineError) String() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// TabularResult holds parsed rows keyed by normalized header.
type TabularResult struct {
	Data      []*payload.Record `json:"data"`
	Headers   []string          `json:"headers"`
	Delimiter rune              `json:"delimiter"`
	RowCount  int               `json:"row_count"`
	Errors    []LineError       `json:"errors,omitempty"`
}

// ParseTabular parses CSV/TSV-style text into ordered records. Malformed
// lines are skipped and reported; it never aborts the whole parse.
func ParseTabular(text string, opts TabularOptions) TabularResult {
	var res TabularResult

	lines := splitLines(text)
	if len(lines) == 0 {
		res.Errors = append(res.Errors, LineError{Message: "no content"})
		return res
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = detectDelimiter(lines)
	}
	res.Delimiter = delim

	quote := opts.QuoteChar
	if quote == 0 {
		quote = '"'
	}
	hasHeader := opts.HasHeader == nil || *opts.HasHeader

	var rows [][]string
	for _, l := range lines {
		fields, err := splitFields(l.text, delim, quote)
		if err != nil {
			res.Errors = append(res.Errors, LineError{Line: l.num, Message: err.Error()})
			continue
		}
		rows = append(rows, fields)
	}
	if len(rows) == 0 {
		res.Errors = append(res.Errors, LineError{Message: "no valid rows"})
		return res
	}

	var raw []string
	if hasHeader {
		raw, rows = rows[0], rows[1:]
	} else {
		width := 0
		for _, r := range rows {
			width = max(width, len(r))
		}
		raw = make([]string, width)
		for i := range raw {
			raw[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	res.Headers = NormalizeHeaders(raw)

	if len(rows) == 0 {
		res.Errors = append(res.Errors, LineError{Message: "no valid rows"})
		return res
	}

	res.Data = make([]*payload.Record, 0, len(rows))
	for _, row := range rows {
		res.Data = append(res.Data, buildRecord(res.Headers, row))
	}
	res.RowCount = len(res.Data)
	return res
}

func buildRecord(headers, row []string) *payload.Record {
	rec := payload.NewRecord()
	for i, h := range headers {
		if i < len(row) {
			rec.Set(h, ParseValue(row[i]))
		} else {
			rec.Set(h, payload.Null())
		}
	}
	return rec
}

func detectDelimiter(lines []line) rune {
	texts := make([]string, 0, sampleLines)
	for i := 0; i < len(lines) && i < sampleLines; i++ {
		texts = append(texts, lines[i].text)
	}
	if best, ok := chooseDelimiter(ScoreDelimiters(texts)); ok && best.Average > 0 {
		return best.Delimiter
	}
	return ','
}

// splitFields splits one line on delim outside quotes. A doubled quote
// inside a quoted section is a literal quote.
func splitFields(s string, delim, quote rune) ([]string, error) {
	var (
		fields   []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == quote:
			if inQuotes && i+1 < len(runes) && runes[i+1] == quote {
				cur.WriteRune(quote)
				i++
				continue
			}
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, eris.New("unterminated quoted field")
	}
	return append(fields, strings.TrimSpace(cur.String())), nil
}

// NormalizeHeaders turns raw header cells into unique identifier-safe names.
func NormalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := sanitizeHeader(h)
		if seen[name] {
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d", name, n)
				if !seen[candidate] {
					name = candidate
					break
				}
			}
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

func sanitizeHeader(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return "unnamed"
	}
	var sb strings.Builder
	for _, r := range h {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// ParseValue coerces one cell: empty to null, true/false to booleans, finite
// numerics to numbers, anything else stays a string.
func ParseValue(s string) payload.Value {
	if s == "" {
		return payload.Null()
	}
	if strings.EqualFold(s, "true") {
		return payload.Bool(true)
	}
	if strings.EqualFold(s, "false") {
		return payload.Bool(false)
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return payload.Number(f)
	}
	return payload.String(s)
}
