package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
	"go.alis.build/alog"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

// maxScannedCells bounds how much of a recorded sheet dimension is scanned
// for formula cells. some writers record the whole grid.
const maxScannedCells = 1 << 20

// ImportOptions sets the minimum size of imported sheets. zero values fall
// back to the default sheet dimensions.
type ImportOptions struct {
	Rows    int
	Columns int
}

// ImportResult is an imported workbook plus the formulas that could not be
// kept. those cells hold the cached result stored in the file instead.
type ImportResult struct {
	Workbook    *spreadsheet.Workbook
	Unsupported []spreadsheet.CellAddress
}

// Import reads an xlsx document into a new workbook, one sheet per
// worksheet, in document order
func Import(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	result := &ImportResult{Workbook: &spreadsheet.Workbook{}}
	for _, name := range f.GetSheetList() {
		unsupported, err := importSheet(f, result.Workbook, name, opts)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		for _, addr := range unsupported {
			alog.Warnf(ctx, "sheet %q cell %s: formula references another sheet, imported its cached value", name, addr)
		}
		result.Unsupported = append(result.Unsupported, unsupported...)
	}

	if len(result.Workbook.Sheets) == 0 {
		return nil, spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, "xlsx document has no worksheets")
	}
	if active := f.GetSheetName(f.GetActiveSheetIndex()); active != "" {
		if sheet, ok := result.Workbook.SheetByName(active); ok {
			_ = result.Workbook.SetActive(sheet.ID)
		}
	}
	return result, nil
}

func importSheet(f *excelize.File, wb *spreadsheet.Workbook, name string, opts ImportOptions) ([]spreadsheet.CellAddress, error) {
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, err
	}

	rowCount, colCount := extent(f, name, rows)
	sheet, err := wb.AddSheet(name,
		max(rowCount, orDefault(opts.Rows, spreadsheet.DefaultRowCount)),
		max(colCount, orDefault(opts.Columns, spreadsheet.DefaultColumnCount)))
	if err != nil {
		return nil, err
	}

	var unsupported []spreadsheet.CellAddress
	for row := range rowCount {
		for col := range colCount {
			cell := spreadsheet.FormatAddress(row, col)
			cached := ""
			if row < len(rows) && col < len(rows[row]) {
				cached = rows[row][col]
			}

			formula, err := f.GetCellFormula(name, cell)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", cell, err)
			}

			input := cached
			if formula != "" {
				if referencesOtherSheet(formula) {
					unsupported = append(unsupported, spreadsheet.CellAddress{SheetID: sheet.ID, Row: row, Column: col})
				} else {
					input = "=" + strings.TrimPrefix(formula, "=")
				}
			}
			if err := sheet.SetInput(row, col, input); err != nil {
				return nil, err
			}
		}
	}
	return unsupported, nil
}

// extent is the number of rows and columns to scan: the larger of the value
// rows and the recorded sheet dimension, which also covers formula cells
// without a cached value
func extent(f *excelize.File, name string, rows [][]string) (int, int) {
	rowCount, colCount := len(rows), 0
	for _, row := range rows {
		colCount = max(colCount, len(row))
	}

	dimension, err := f.GetSheetDimension(name)
	if err != nil || dimension == "" {
		return rowCount, colCount
	}
	if !strings.Contains(dimension, ":") {
		dimension += ":" + dimension
	}
	if r, ok := spreadsheet.ParseRange(dimension); ok && r.Size() <= maxScannedCells {
		n := r.Normalize()
		rowCount = max(rowCount, n.EndRow+1)
		colCount = max(colCount, n.EndColumn+1)
	}
	return rowCount, colCount
}

// referencesOtherSheet reports whether an Excel formula has a "Sheet!A1"
// style operand
func referencesOtherSheet(formula string) bool {
	ps := efp.ExcelParser()
	for _, token := range ps.Parse(strings.TrimPrefix(formula, "=")) {
		if token.TType == efp.TokenTypeOperand && token.TSubType == efp.TokenSubTypeRange &&
			strings.Contains(token.TValue, "!") {
			return true
		}
	}
	return false
}

func orDefault(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
