// Package parse detects the format of raw experiment payloads and parses
// JSON, delimited text, and XLSX workbooks into payload values.
package parse

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// Format names a payload encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatText Format = "text"
	FormatXLSX Format = "xlsx"
)

const (
	sampleLines          = 10
	candidateConsistency = 0.8
	acceptConsistency    = 0.7
	maxTabularConfidence = 0.95
)

// candidateDelimiters is evaluated in order; a later delimiter must score a
// strictly higher average to displace an earlier one, so tab wins ties.
var candidateDelimiters = []rune{'\t', ',', ';', '|'}

// Detection is the outcome of Detect.
type Detection struct {
	Format     Format  `json:"format"`
	Confidence float64 `json:"confidence"`
	Delimiter  rune    `json:"delimiter,omitempty"`
	Message    string  `json:"message"`
}

// DelimiterScore summarizes how one delimiter is used across sampled lines.
type DelimiterScore struct {
	Delimiter   rune
	Average     float64
	Consistency float64
}

// Detect classifies text as JSON, CSV, TSV, or plain text. It is total over
// any input and never panics.
func Detect(text string) Detection {
	if strings.TrimSpace(text) == "" {
		return Detection{Format: FormatText, Confidence: 1.0, Message: "empty input"}
	}

	if d, ok := detectJSON(text); ok {
		return d
	}

	lines := sample(nonEmptyLines(text), sampleLines)
	best, ok := chooseDelimiter(ScoreDelimiters(lines))
	if ok && best.Consistency > acceptConsistency && best.Average > 0 {
		format := FormatCSV
		if best.Delimiter == '\t' {
			format = FormatTSV
		}
		return Detection{
			Format:     format,
			Confidence: math.Min(maxTabularConfidence, best.Consistency),
			Delimiter:  best.Delimiter,
			Message: fmt.Sprintf("delimiter %s used consistently across %d sampled lines",
				DelimiterName(best.Delimiter), len(lines)),
		}
	}

	return Detection{Format: FormatText, Confidence: 0.5, Message: "no consistent structure detected"}
}

func detectJSON(text string) (Detection, bool) {
	data := []byte(strings.TrimSpace(text))
	if !validJSON(data) {
		return Detection{}, false
	}
	if bytes.HasPrefix(data, []byte("{")) || bytes.HasPrefix(data, []byte("[")) {
		return Detection{Format: FormatJSON, Confidence: 1.0, Message: "valid JSON document"}, true
	}
	return Detection{Format: FormatJSON, Confidence: 0.9, Message: "valid JSON primitive"}, true
}

// ScoreDelimiters counts each candidate delimiter per line and scores its
// average and consistency over the lines where it occurs.
func ScoreDelimiters(lines []string) []DelimiterScore {
	scores := make([]DelimiterScore, 0, len(candidateDelimiters))
	for _, d := range candidateDelimiters {
		sep := string(d)
		var counts []float64
		for _, line := range lines {
			if n := strings.Count(line, sep); n > 0 {
				counts = append(counts, float64(n))
			}
		}
		score := DelimiterScore{Delimiter: d}
		if len(counts) > 0 {
			avg, sd := meanStddev(counts)
			score.Average = avg
			score.Consistency = math.Max(0, 1-sd/(avg+1))
		}
		scores = append(scores, score)
	}
	return scores
}

func chooseDelimiter(scores []DelimiterScore) (DelimiterScore, bool) {
	var best DelimiterScore
	found := false
	for _, s := range scores {
		if s.Consistency <= candidateConsistency {
			continue
		}
		if !found || s.Average > best.Average {
			best = s
			found = true
		}
	}
	return best, found
}

// DelimiterName returns a printable name for d.
func DelimiterName(d rune) string {
	switch d {
	case '\t':
		return "tab"
	case ',':
		return "comma"
	case ';':
		return "semicolon"
	case '|':
		return "pipe"
	default:
		return fmt.Sprintf("%q", d)
	}
}

func meanStddev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

type line struct {
	num  int
	text string
}

// splitLines trims every line and drops empty ones, keeping 1-based line
// numbers from the original text.
func splitLines(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var out []line
	for i, raw := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(raw); t != "" {
			out = append(out, line{num: i + 1, text: t})
		}
	}
	return out
}

func nonEmptyLines(text string) []string {
	ls := splitLines(text)
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.text
	}
	return out
}

func sample(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
