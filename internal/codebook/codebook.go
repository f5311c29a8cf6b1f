// Package codebook reads researcher-authored codebooks from YAML.
package codebook

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/feedback-cli/internal/model"
)

// file is the on-disk layout:
//
//	entries:
//	  - key: task.rt
//	    description: Reaction time in ms
type file struct {
	Entries []model.CodebookEntry `yaml:"entries"`
}

// LoadYAML decodes codebook entries from r. Keys are trimmed; blank and
// duplicate keys are rejected.
func LoadYAML(r io.Reader) ([]model.CodebookEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "codebook: read")
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "codebook: parse yaml")
	}

	seen := make(map[string]bool, len(f.Entries))
	entries := make([]model.CodebookEntry, 0, len(f.Entries))
	for i, e := range f.Entries {
		e.VariableKey = strings.TrimSpace(e.VariableKey)
		e.Description = strings.TrimSpace(e.Description)
		if e.VariableKey == "" {
			return nil, eris.Errorf("codebook: entry %d has no key", i+1)
		}
		if seen[e.VariableKey] {
			return nil, eris.Errorf("codebook: duplicate key %q", e.VariableKey)
		}
		seen[e.VariableKey] = true
		entries = append(entries, e)
	}
	return entries, nil
}

// LoadFile reads a codebook YAML file from path.
func LoadFile(path string) ([]model.CodebookEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "codebook: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadYAML(f)
}
