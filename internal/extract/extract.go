// Package extract infers a variable schema from parsed result payloads.
package extract

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/payload"
)

// Variable describes one top-level key observed across a payload's records.
type Variable struct {
	Name    string          `json:"variable_name"`
	Type    string          `json:"type"`
	Example payload.Value   `json:"example_value"`
	Values  []payload.Value `json:"all_values"`

	rows []int // record index of each entry in Values
}

// Extract returns the union of top-level keys across the records in v, in
// first-seen order. v may be a list of records or a single record; list
// elements that are not records are ignored and any other payload yields no
// variables.
//
// A key's type comes from its first non-null observation. A key only ever
// observed as null is typed string.
func Extract(v payload.Value) []Variable {
	var (
		vars  []Variable
		index = make(map[string]int)
	)
	for row, rec := range payload.Records(v) {
		for _, key := range rec.Keys() {
			val, _ := rec.Get(key)
			i, ok := index[key]
			if !ok {
				i = len(vars)
				index[key] = i
				vars = append(vars, Variable{Name: key, Example: payload.Null()})
			}
			vr := &vars[i]
			vr.Values = append(vr.Values, val)
			vr.rows = append(vr.rows, row)
			if vr.Type == "" && !val.IsNull() {
				vr.Type = val.TypeName()
				vr.Example = val
			}
		}
	}
	for i := range vars {
		if vars[i].Type == "" {
			vars[i].Type = payload.TypeString
		}
	}
	return vars
}

// Persistable reports whether a variable of type t is stored in a snapshot.
// Array and object variables are extracted but not persisted.
func Persistable(t string) bool {
	switch t {
	case payload.TypeString, payload.TypeNumber, payload.TypeBoolean:
		return true
	default:
		return false
	}
}

// VariableKey is the snapshot-unique key of a variable named name in the
// given component.
func VariableKey(component, name string) string {
	if component == "" {
		return name
	}
	return component + "." + name
}

// Builder turns extracted variables into snapshot variable records. It
// tracks keys across calls so the records of one snapshot stay unique.
type Builder struct {
	snapshotID  string
	maxExamples int
	seen        map[string]bool
	log         *zap.Logger
}

// NewBuilder returns a Builder for one snapshot.
func NewBuilder(snapshotID string, maxExamples int) *Builder {
	return &Builder{
		snapshotID:  snapshotID,
		maxExamples: maxExamples,
		seen:        make(map[string]bool),
		log:         zap.L().With(zap.String("component", "extract"), zap.String("snapshot_id", snapshotID)),
	}
}

// Add converts the persistable variables of one component. A key already
// produced by this builder is dropped.
func (b *Builder) Add(component string, vars []Variable) []model.VariableRecord {
	var out []model.VariableRecord
	for _, v := range vars {
		if !Persistable(v.Type) {
			continue
		}
		key := VariableKey(component, v.Name)
		if b.seen[key] {
			b.log.Debug("duplicate variable key dropped", zap.String("variable_key", key))
			continue
		}
		b.seen[key] = true
		out = append(out, model.VariableRecord{
			SnapshotID:   b.snapshotID,
			VariableKey:  key,
			VariableName: v.Name,
			Type:         v.Type,
			Examples:     examples(component, v, b.maxExamples),
		})
	}
	return out
}

// BuildRecords converts the variables of a single component.
func BuildRecords(snapshotID, component string, vars []Variable, maxExamples int) []model.VariableRecord {
	return NewBuilder(snapshotID, maxExamples).Add(component, vars)
}

func examples(component string, v Variable, limit int) []model.VariableExample {
	out := []model.VariableExample{}
	for i, val := range v.Values {
		if len(out) >= limit {
			break
		}
		if val.IsNull() {
			continue
		}
		row := i
		if i < len(v.rows) {
			row = v.rows[i]
		}
		out = append(out, model.VariableExample{
			Value: val.Interface(),
			Path:  examplePath(component, row, v.Name),
		})
	}
	return out
}

func examplePath(component string, row int, name string) string {
	if component == "" {
		return fmt.Sprintf("[%d].%s", row, name)
	}
	return fmt.Sprintf("%s[%d].%s", component, row, name)
}
