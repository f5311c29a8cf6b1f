package model

import "time"

// ValidationStatus is the consistency classification of a codebook or
// feedback template against a snapshot.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "VALID"
	ValidationInvalid ValidationStatus = "INVALID"
)

// ValidationAudit records the outcome of the last consistency check. Status
// is empty until the first check has run.
type ValidationAudit struct {
	Status                ValidationStatus `json:"validation_status,omitempty"`
	MissingKeys           []string         `json:"missing_keys"`
	ExtraKeys             []string         `json:"extra_keys"`
	ValidatedExtractionID string           `json:"validated_extraction_id,omitempty"`
	ValidatedAt           *time.Time       `json:"validated_at,omitempty"`
	ExtractorVersion      string           `json:"extractor_version,omitempty"`
}

// CodebookEntry documents one variable.
type CodebookEntry struct {
	VariableKey string `json:"variable_key" yaml:"key"`
	Description string `json:"description" yaml:"description"`
}

// Codebook is the researcher-authored documentation of a study's variables.
type Codebook struct {
	ID         string          `json:"id"`
	StudyID    string          `json:"study_id"`
	Entries    []CodebookEntry `json:"entries"`
	Validation ValidationAudit `json:"validation"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Keys returns the entry keys in order.
func (c *Codebook) Keys() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.VariableKey
	}
	return out
}

// FeedbackTemplate holds a study's feedback DSL source plus the cached
// dependency set computed by the last consistency check.
type FeedbackTemplate struct {
	ID                   string          `json:"id"`
	StudyID              string          `json:"study_id"`
	Content              string          `json:"content"`
	RequiredVariableKeys []string        `json:"required_variable_keys"`
	RequiredKeysHash     string          `json:"required_keys_hash,omitempty"`
	Validation           ValidationAudit `json:"validation"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
