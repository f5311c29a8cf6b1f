package model

import "time"

// ExtractionSnapshot identifies one run of variable extraction for a study.
// Snapshots are append-only: a re-extraction creates a new snapshot rather
// than updating an existing one.
type ExtractionSnapshot struct {
	ID               string    `json:"id"`
	StudyID          string    `json:"study_id"`
	ExtractorVersion string    `json:"extractor_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// VariableExample is one observed value and where it was seen.
type VariableExample struct {
	Value any    `json:"value"`
	Path  string `json:"path"`
}

// VariableRecord is a variable observed in a snapshot. VariableKey is unique
// within its snapshot; VariableName is what templates reference.
type VariableRecord struct {
	ID           string            `json:"id"`
	SnapshotID   string            `json:"snapshot_id"`
	VariableKey  string            `json:"variable_key"`
	VariableName string            `json:"variable_name"`
	Type         string            `json:"type"`
	Examples     []VariableExample `json:"examples"`
	CreatedAt    time.Time         `json:"created_at"`
}

// VariableKeys returns the keys of vars in order.
func VariableKeys(vars []VariableRecord) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.VariableKey
	}
	return out
}
