package model

import "github.com/sells-group/feedback-cli/internal/payload"

// ComponentResult is one experiment component's raw output after parsing.
// A failed parse keeps Raw and sets ParseError; ParsedData is then null.
type ComponentResult struct {
	ComponentID    string        `json:"component_id"`
	Name           string        `json:"name"`
	Raw            string        `json:"raw,omitempty"`
	ParsedData     payload.Value `json:"parsed_data"`
	DetectedFormat string        `json:"detected_format"`
	ParseError     string        `json:"parse_error,omitempty"`
}

// EnrichedResult is one participant's result with every component parsed.
type EnrichedResult struct {
	ResultID         string            `json:"result_id"`
	StudyID          string            `json:"study_id,omitempty"`
	ComponentResults []ComponentResult `json:"component_results"`
}

// Records returns every record contributed by every component, in component
// then row order.
func (r EnrichedResult) Records() []*payload.Record {
	var out []*payload.Record
	for _, c := range r.ComponentResults {
		out = append(out, payload.Records(c.ParsedData)...)
	}
	return out
}
