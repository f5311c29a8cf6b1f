package codebook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedback-cli/internal/model"
)

func TestLoadYAML(t *testing.T) {
	src := `
entries:
  - key: task.rt
    description: Reaction time in ms
  - key: " task.correct "
    description: Whether the response was correct
  - key: survey.age
`
	entries, err := LoadYAML(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []model.CodebookEntry{
		{VariableKey: "task.rt", Description: "Reaction time in ms"},
		{VariableKey: "task.correct", Description: "Whether the response was correct"},
		{VariableKey: "survey.age"},
	}, entries)
}

func TestLoadYAML_Empty(t *testing.T) {
	entries, err := LoadYAML(strings.NewReader("entries: []\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"blank key", "entries:\n  - key: task.rt\n  - description: orphan\n", "entry 2 has no key"},
		{"duplicate", "entries:\n  - key: task.rt\n  - key: task.rt\n", `duplicate key "task.rt"`},
		{"malformed", "entries: [", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebook.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - key: a.b\n"), 0o644))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.b", entries[0].VariableKey)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
