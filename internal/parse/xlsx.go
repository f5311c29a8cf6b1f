package parse

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/feedback-cli/internal/payload"
)

// ParseXLSX reads one sheet of a workbook blob. The first row is the header;
// remaining rows become records with the same cell coercion as delimited text.
// An empty sheet name selects the first sheet.
func ParseXLSX(blob []byte, sheetName string) Result {
	res := Result{Format: FormatXLSX, Confidence: 1.0, Data: payload.Null()}

	f, err := xlsx.OpenBinary(blob)
	if err != nil {
		res.Error = eris.Wrap(err, "xlsx: open workbook").Error()
		return res
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	var rows [][]string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		empty := true
		for j, cell := range row.Cells {
			cells[j] = cell.String()
			if cells[j] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, cells)
		}
	}
	if len(rows) < 2 {
		res.Errors = append(res.Errors, LineError{Message: "no valid rows"})
		res.Error = "xlsx: sheet has no data rows"
		return res
	}

	res.Headers = NormalizeHeaders(rows[0])
	items := make([]payload.Value, 0, len(rows)-1)
	for _, row := range rows[1:] {
		items = append(items, payload.FromRecord(buildRecord(res.Headers, trimCells(row))))
	}
	res.Success = true
	res.Data = payload.List(items)
	res.RowCount = len(items)
	return res
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
