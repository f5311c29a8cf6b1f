package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/feedback-cli/internal/payload"
)

func trials() payload.Value {
	return payload.List([]payload.Value{
		payload.FromRecord(payload.RecordOf("rt", 412, "correct", true, "note", nil)),
		payload.FromRecord(payload.RecordOf("rt", 380, "correct", false, "block", "A")),
		payload.Number(7),
		payload.FromRecord(payload.RecordOf("rt", "slow", "tags", []any{"x"})),
	})
}

func TestExtract_Union(t *testing.T) {
	vars := Extract(trials())
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	assert.Equal(t, []string{"rt", "correct", "note", "block", "tags"}, names)
}

func TestExtract_FirstNonNullTypeWins(t *testing.T) {
	vars := Extract(trials())
	byName := map[string]Variable{}
	for _, v := range vars {
		byName[v.Name] = v
	}

	assert.Equal(t, payload.TypeNumber, byName["rt"].Type)
	assert.Equal(t, "412", byName["rt"].Example.Text())
	assert.Len(t, byName["rt"].Values, 3)

	assert.Equal(t, payload.TypeBoolean, byName["correct"].Type)
	assert.Equal(t, payload.TypeString, byName["note"].Type, "null-only key")
	assert.True(t, byName["note"].Example.IsNull())
	assert.Equal(t, payload.TypeArray, byName["tags"].Type)
}

func TestExtract_SingleRecord(t *testing.T) {
	vars := Extract(payload.FromRecord(payload.RecordOf("score", 9)))
	require.Len(t, vars, 1)
	assert.Equal(t, "score", vars[0].Name)
	assert.Equal(t, payload.TypeNumber, vars[0].Type)
}

func TestExtract_NonRecordPayload(t *testing.T) {
	assert.Empty(t, Extract(payload.String("free text")))
	assert.Empty(t, Extract(payload.Null()))
}

func TestBuildRecords(t *testing.T) {
	recs := BuildRecords("snap-1", "stroop", Extract(trials()), 1)

	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.VariableKey
	}
	assert.Equal(t, []string{"stroop.rt", "stroop.correct", "stroop.note", "stroop.block"}, keys)

	rt := recs[0]
	assert.Equal(t, "snap-1", rt.SnapshotID)
	assert.Equal(t, "rt", rt.VariableName)
	require.Len(t, rt.Examples, 1)
	assert.Equal(t, "stroop[0].rt", rt.Examples[0].Path)
	assert.InDelta(t, 412.0, rt.Examples[0].Value, 0.0001)

	assert.Empty(t, recs[2].Examples, "null values are not examples")
	require.Len(t, recs[3].Examples, 1)
	assert.Equal(t, "stroop[1].block", recs[3].Examples[0].Path)
}

func TestBuilder_DropsDuplicateKeys(t *testing.T) {
	b := NewBuilder("snap-1", 3)
	first := b.Add("", Extract(payload.FromRecord(payload.RecordOf("rt", 1))))
	second := b.Add("", Extract(payload.FromRecord(payload.RecordOf("rt", 2, "acc", 0.9))))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "acc", second[0].VariableKey)
}

func TestBuilder_DuplicateKeysLogAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	b := NewBuilder("snap-1", 3)
	for range 3 {
		b.Add("task", Extract(payload.FromRecord(payload.RecordOf("rt", 1))))
	}

	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	dropped := logs.FilterMessage("duplicate variable key dropped")
	assert.Equal(t, 2, dropped.Len())
	assert.Equal(t, zapcore.DebugLevel, dropped.All()[0].Level)
}

func TestVariableKey(t *testing.T) {
	assert.Equal(t, "rt", VariableKey("", "rt"))
	assert.Equal(t, "task.rt", VariableKey("task", "rt"))
}
