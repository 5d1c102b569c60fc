package store

import (
	"fmt"
	"os"

	json "github.com/bytedance/sonic"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

// Encode serializes a workbook to its persisted JSON shape. map keys are
// sorted so equal workbooks encode to equal bytes.
func Encode(wb *spreadsheet.Workbook) ([]byte, error) {
	if err := wb.Validate(); err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	data, err := json.ConfigStd.Marshal(wb)
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return data, nil
}

// Decode parses and validates the persisted JSON shape
func Decode(data []byte) (*spreadsheet.Workbook, error) {
	var wb spreadsheet.Workbook
	if err := json.ConfigStd.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("decode workbook: %w", err)
	}
	for _, sheet := range wb.Sheets {
		if sheet != nil && sheet.Cells == nil {
			sheet.Cells = make(map[string]spreadsheet.CellRecord)
		}
	}
	if err := wb.Validate(); err != nil {
		return nil, fmt.Errorf("decode workbook: %w", err)
	}
	return &wb, nil
}

// ReadFile decodes a workbook from a JSON file
func ReadFile(path string) (*spreadsheet.Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workbook %s: %w", path, err)
	}
	return Decode(data)
}

// WriteFile encodes a workbook into a JSON file, replacing it
func WriteFile(path string, wb *spreadsheet.Workbook) error {
	data, err := Encode(wb)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write workbook %s: %w", path, err)
	}
	return nil
}
