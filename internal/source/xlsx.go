package source

import (
	"errors"
	"iter"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// xlsxTable reads the first sheet of a workbook. The workbook is loaded
// whole, so Close has nothing to release.
type xlsxTable struct {
	sheet  *xlsx.Sheet
	header []string
}

func openXLSX(path string) (*xlsxTable, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(errors.Join(domain.ErrSourceUnavailable, err), "xlsx: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrapf(domain.ErrSourceUnavailable, "xlsx: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Wrapf(domain.ErrSourceUnavailable, "xlsx: %s has no header row", path)
	}

	return &xlsxTable{sheet: sheet, header: normalizeHeader(rowToStrings(sheet.Rows[0]))}, nil
}

func (t *xlsxTable) Header() []string { return t.header }

func (t *xlsxTable) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for i, row := range t.sheet.Rows[1:] {
			cells := rowToStrings(row)
			if isBlank(cells) {
				continue
			}
			if !yield(Row{Line: i + 1, Fields: zip(t.header, cells)}, nil) {
				return
			}
		}
	}
}

func (t *xlsxTable) Close() error { return nil }

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// isBlank reports whether every cell is empty. Workbooks often carry
// formatted but empty trailing rows.
func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
