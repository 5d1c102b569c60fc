package spreadsheet

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultRowCount    = 100
	DefaultColumnCount = 26
)

// formulaPrefix marks cell input as a formula
const formulaPrefix = "="

// CellRecord is the stored state of one populated cell
type CellRecord struct {
	Input string `json:"input"`
}

// IsFormula reports whether the input is a formula
func (c CellRecord) IsFormula() bool {
	return IsFormula(c.Input)
}

// IsFormula reports whether raw cell input is a formula
func IsFormula(input string) bool {
	return strings.HasPrefix(input, formulaPrefix)
}

// Sheet is a fixed-size grid with a sparse cell store. only cells with
// non-empty input have an entry in Cells, keyed by "row:column".
//
// a Sheet is not safe for concurrent use.
type Sheet struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	RowCount    int                   `json:"rowCount"`
	ColumnCount int                   `json:"columnCount"`
	Cells       map[string]CellRecord `json:"cells"`
}

// NewSheet creates an empty sheet with the given dimensions
func NewSheet(id, name string, rows, columns int) *Sheet {
	return &Sheet{
		ID:          id,
		Name:        name,
		RowCount:    rows,
		ColumnCount: columns,
		Cells:       make(map[string]CellRecord),
	}
}

// CellKey returns the "row:column" key of a cell
func CellKey(row, col int) string {
	return strconv.Itoa(row) + ":" + strconv.Itoa(col)
}

// ParseCellKey is the inverse of CellKey
func ParseCellKey(key string) (row int, col int, ok bool) {
	rowText, colText, found := strings.Cut(key, ":")
	if !found {
		return 0, 0, false
	}
	row, err := strconv.Atoi(rowText)
	if err != nil {
		return 0, 0, false
	}
	col, err = strconv.Atoi(colText)
	if err != nil {
		return 0, 0, false
	}
	return row, col, true
}

// InBounds checks the coordinates against the sheet dimensions
func (s *Sheet) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < s.RowCount && col < s.ColumnCount
}

// GetInput returns the raw input of a cell, "" when the cell is absent
func (s *Sheet) GetInput(row, col int) string {
	return s.Cells[CellKey(row, col)].Input
}

// SetInput stores trimmed input. empty or whitespace-only input removes the
// cell.
func (s *Sheet) SetInput(row, col int, text string) error {
	if !s.InBounds(row, col) {
		return newApplicationErrorf(OutOfRange, "cell %s is outside sheet %q (%d rows x %d columns)",
			FormatAddress(row, col), s.Name, s.RowCount, s.ColumnCount)
	}

	key := CellKey(row, col)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		delete(s.Cells, key)
		return nil
	}

	if s.Cells == nil {
		s.Cells = make(map[string]CellRecord)
	}
	s.Cells[key] = CellRecord{Input: trimmed}
	return nil
}

// GetInputAt is GetInput for an A1-style address
func (s *Sheet) GetInputAt(address string) (string, error) {
	row, col, err := s.resolve(address)
	if err != nil {
		return "", err
	}
	return s.GetInput(row, col), nil
}

// SetInputAt is SetInput for an A1-style address
func (s *Sheet) SetInputAt(address string, text string) error {
	row, col, err := s.resolve(address)
	if err != nil {
		return err
	}
	return s.SetInput(row, col, text)
}

func (s *Sheet) resolve(address string) (int, int, error) {
	row, col := ParseAddress(address)
	if row < 0 || col < 0 {
		return 0, 0, newApplicationErrorf(InvalidArgument, "invalid cell address %q", address)
	}
	return row, col, nil
}

// PopulatedCount returns the number of stored cells
func (s *Sheet) PopulatedCount() int {
	return len(s.Cells)
}

// Populated iterates the stored cells in row-major order
func (s *Sheet) Populated() iter.Seq2[CellAddress, string] {
	return func(yield func(CellAddress, string) bool) {
		addresses := make([]CellAddress, 0, len(s.Cells))
		for key := range maps.Keys(s.Cells) {
			row, col, ok := ParseCellKey(key)
			if !ok {
				continue
			}
			addresses = append(addresses, CellAddress{SheetID: s.ID, Row: row, Column: col})
		}
		slices.SortFunc(addresses, func(a, b CellAddress) int {
			if c := cmp.Compare(a.Row, b.Row); c != 0 {
				return c
			}
			return cmp.Compare(a.Column, b.Column)
		})

		for _, addr := range addresses {
			if !yield(addr, s.GetInput(addr.Row, addr.Column)) {
				return
			}
		}
	}
}

// AppendRows grows the sheet by n rows
func (s *Sheet) AppendRows(n int) error {
	if n <= 0 {
		return newApplicationErrorf(InvalidArgument, "row count to append must be positive, got %d", n)
	}
	s.RowCount += n
	return nil
}

// AppendColumns grows the sheet by n columns
func (s *Sheet) AppendColumns(n int) error {
	if n <= 0 {
		return newApplicationErrorf(InvalidArgument, "column count to append must be positive, got %d", n)
	}
	s.ColumnCount += n
	return nil
}

// SheetStats summarizes the populated part of a sheet. MaxRow and MaxColumn
// are -1 for an empty sheet.
type SheetStats struct {
	Populated int `json:"populated"`
	Formulas  int `json:"formulas"`
	MaxRow    int `json:"maxRow"`
	MaxColumn int `json:"maxColumn"`
}

// Stats computes the used extent of the sheet
func (s *Sheet) Stats() SheetStats {
	stats := SheetStats{MaxRow: -1, MaxColumn: -1}
	for addr, input := range s.Populated() {
		stats.Populated++
		if IsFormula(input) {
			stats.Formulas++
		}
		stats.MaxRow = max(stats.MaxRow, addr.Row)
		stats.MaxColumn = max(stats.MaxColumn, addr.Column)
	}
	return stats
}

// Validate checks a sheet loaded from outside, e.g. decoded from JSON
func (s *Sheet) Validate() error {
	if s.ID == "" {
		return NewApplicationError(InvalidArgument, "sheet id must not be empty")
	}
	if s.RowCount <= 0 || s.ColumnCount <= 0 {
		return newApplicationErrorf(InvalidArgument, "sheet %q has invalid dimensions %dx%d", s.ID, s.RowCount, s.ColumnCount)
	}
	for key, record := range s.Cells {
		row, col, ok := ParseCellKey(key)
		if !ok {
			return newApplicationErrorf(InvalidArgument, "sheet %q has malformed cell key %q", s.ID, key)
		}
		if !s.InBounds(row, col) {
			return newApplicationErrorf(OutOfRange, "sheet %q has cell %s outside its bounds", s.ID, FormatAddress(row, col))
		}
		if record.Input == "" || strings.TrimSpace(record.Input) != record.Input {
			return newApplicationErrorf(InvalidArgument, "sheet %q has empty or untrimmed cell %s", s.ID, FormatAddress(row, col))
		}
	}
	return nil
}
