package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/feedback-cli/internal/payload"
)

func workbook(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	blob := workbook(t, map[string][][]string{
		"Trials": {
			{"trial", "reaction time", "correct"},
			{"1", "412", "true"},
			{"2", "388", ""},
		},
	})

	res := ParseXLSX(blob, "")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, FormatXLSX, res.Format)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"trial", "reaction_time", "correct"}, res.Headers)

	recs := payload.Records(res.Data)
	require.Len(t, recs, 2)
	rt, _ := recs[0].Get("reaction_time")
	n, ok := rt.Num()
	assert.True(t, ok)
	assert.InDelta(t, 412.0, n, 0.001)
	c, _ := recs[0].Get("correct")
	assert.Equal(t, payload.Bool(true), c)
	c, _ = recs[1].Get("correct")
	assert.True(t, c.IsNull())
}

func TestParseXLSX_NamedSheet(t *testing.T) {
	blob := workbook(t, map[string][][]string{
		"Survey": {{"age"}, {"30"}},
	})

	res := ParseXLSX(blob, "Survey")
	require.True(t, res.Success)
	assert.Equal(t, 1, res.RowCount)

	res = ParseXLSX(blob, "Missing")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `sheet "Missing" not found`)
}

func TestParseXLSX_HeaderOnly(t *testing.T) {
	blob := workbook(t, map[string][][]string{"Sheet1": {{"a", "b"}}})

	res := ParseXLSX(blob, "")
	assert.False(t, res.Success)
	assert.True(t, res.Data.IsNull())
}

func TestParseXLSX_NotAWorkbook(t *testing.T) {
	res := ParseXLSX([]byte("rt,correct\n1,true\n"), "")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "open workbook")
}
