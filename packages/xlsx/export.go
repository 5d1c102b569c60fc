// Package xlsx converts workbooks to and from Office Open XML spreadsheets.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"
	"go.alis.build/alog"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

// Mode selects what Export writes for formula cells
type Mode int

const (
	// ModeFormulas writes formula cells as formulas, without cached results
	ModeFormulas Mode = iota
	// ModeValues writes the evaluated value of every cell
	ModeValues
)

// defaultSheet is the sheet every new excelize file starts with
const defaultSheet = "Sheet1"

// Export writes wb as an xlsx document. literal cells keep their type,
// formula cells are written according to mode.
func Export(ctx context.Context, w io.Writer, wb *spreadsheet.Workbook, evaluator *spreadsheet.Evaluator, mode Mode) error {
	if len(wb.Sheets) == 0 {
		return spreadsheet.NewApplicationError(spreadsheet.FailedPrecondition, "workbook has no sheets")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range wb.Sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return fmt.Errorf("sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}

		written, err := exportSheet(f, sheet, evaluator, mode)
		if err != nil {
			return fmt.Errorf("sheet %q: %w", sheet.Name, err)
		}
		alog.Debugf(ctx, "exported %d cells of sheet %q", written, sheet.Name)
	}

	if active := wb.ActiveSheet(); active != nil {
		if idx, err := f.GetSheetIndex(active.Name); err == nil && idx >= 0 {
			f.SetActiveSheet(idx)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func exportSheet(f *excelize.File, sheet *spreadsheet.Sheet, evaluator *spreadsheet.Evaluator, mode Mode) (int, error) {
	written := 0
	for addr, input := range sheet.Populated() {
		cell := addr.String()

		var err error
		switch {
		case spreadsheet.IsFormula(input) && mode == ModeFormulas:
			err = f.SetCellFormula(sheet.Name, cell, input[1:])
		case spreadsheet.IsFormula(input):
			err = setValue(f, sheet.Name, cell, evaluator.EvaluateCell(sheet, addr.Row, addr.Column))
		default:
			err = setValue(f, sheet.Name, cell, evaluator.EvaluateFormula(sheet, input))
		}
		if err != nil {
			return written, fmt.Errorf("cell %s: %w", cell, err)
		}
		written++
	}
	return written, nil
}

// setValue writes a value with its natural cell type
func setValue(f *excelize.File, sheetName, cell string, value spreadsheet.Value) error {
	switch value.Kind() {
	case spreadsheet.KindEmpty:
		return nil
	case spreadsheet.KindNumber:
		n, _ := value.ToNumber()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return f.SetCellStr(sheetName, cell, value.Display())
		}
		return f.SetCellValue(sheetName, cell, n)
	case spreadsheet.KindBoolean:
		b, _ := value.Truthy()
		return f.SetCellValue(sheetName, cell, b)
	default:
		return f.SetCellStr(sheetName, cell, value.Display())
	}
}
