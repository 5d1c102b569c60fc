package spreadsheet

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultSheetName is the name of the sheet a new workbook starts with
	DefaultSheetName = "Sheet1"

	sheetIDPrefix = "sheet-"
)

// Selection is the cursor of the active sheet
type Selection struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// Workbook is an ordered list of sheets with an active sheet and a
// selection cursor. its JSON form is the persisted session shape.
//
// a Workbook is not safe for concurrent use.
type Workbook struct {
	Sheets        []*Sheet  `json:"sheets"`
	ActiveSheetID string    `json:"activeSheetId"`
	Selection     Selection `json:"selection"`
}

// NewWorkbook creates a workbook holding one empty default-sized sheet
func NewWorkbook() *Workbook {
	w := &Workbook{}
	// cannot fail on an empty workbook
	_, _ = w.AddSheet(DefaultSheetName, DefaultRowCount, DefaultColumnCount)
	return w
}

// AddSheet appends a new sheet. zero dimensions fall back to the defaults.
// the first sheet of a workbook becomes the active one.
func (w *Workbook) AddSheet(name string, rows, columns int) (*Sheet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewApplicationError(InvalidArgument, "sheet name must not be empty")
	}
	if rows < 0 || columns < 0 {
		return nil, newApplicationErrorf(InvalidArgument, "sheet dimensions must not be negative, got %dx%d", rows, columns)
	}
	if _, exists := w.SheetByName(name); exists {
		return nil, newApplicationErrorf(AlreadyExists, "sheet %q already exists", name)
	}
	if rows == 0 {
		rows = DefaultRowCount
	}
	if columns == 0 {
		columns = DefaultColumnCount
	}

	sheet := NewSheet(w.nextSheetID(), name, rows, columns)
	w.Sheets = append(w.Sheets, sheet)
	if w.ActiveSheetID == "" {
		w.ActiveSheetID = sheet.ID
		w.Selection = Selection{}
	}
	return sheet, nil
}

// nextSheetID returns "sheet-N" for an N above every existing numeric id
func (w *Workbook) nextSheetID() string {
	next := 1
	for _, sheet := range w.Sheets {
		suffix, ok := strings.CutPrefix(sheet.ID, sheetIDPrefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n >= next {
			next = n + 1
		}
	}
	for {
		id := fmt.Sprintf("%s%d", sheetIDPrefix, next)
		if _, taken := w.Sheet(id); !taken {
			return id
		}
		next++
	}
}

// Sheet returns the sheet with the given id
func (w *Workbook) Sheet(id string) (*Sheet, bool) {
	idx := w.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return w.Sheets[idx], true
}

// SheetByName looks a sheet up by name, case-insensitively
func (w *Workbook) SheetByName(name string) (*Sheet, bool) {
	name = strings.TrimSpace(name)
	for _, sheet := range w.Sheets {
		if strings.EqualFold(sheet.Name, name) {
			return sheet, true
		}
	}
	return nil, false
}

// Lookup finds a sheet by id first, then by name
func (w *Workbook) Lookup(idOrName string) (*Sheet, error) {
	if sheet, ok := w.Sheet(idOrName); ok {
		return sheet, nil
	}
	if sheet, ok := w.SheetByName(idOrName); ok {
		return sheet, nil
	}
	return nil, newApplicationErrorf(NotFound, "sheet %q not found", idOrName)
}

func (w *Workbook) indexOf(id string) int {
	for i, sheet := range w.Sheets {
		if sheet.ID == id {
			return i
		}
	}
	return -1
}

// RemoveSheet deletes a sheet. the last sheet cannot be removed. removing the
// active sheet activates its left neighbour.
func (w *Workbook) RemoveSheet(id string) error {
	idx := w.indexOf(id)
	if idx < 0 {
		return newApplicationErrorf(NotFound, "sheet %q not found", id)
	}
	if len(w.Sheets) == 1 {
		return NewApplicationError(FailedPrecondition, "cannot remove the only sheet of a workbook")
	}

	w.Sheets = append(w.Sheets[:idx], w.Sheets[idx+1:]...)
	if w.ActiveSheetID == id {
		w.ActiveSheetID = w.Sheets[max(idx-1, 0)].ID
		w.Selection = Selection{}
	}
	return nil
}

// RenameSheet changes the display name of a sheet
func (w *Workbook) RenameSheet(id string, name string) error {
	sheet, ok := w.Sheet(id)
	if !ok {
		return newApplicationErrorf(NotFound, "sheet %q not found", id)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return NewApplicationError(InvalidArgument, "sheet name must not be empty")
	}
	if other, exists := w.SheetByName(name); exists && other.ID != id {
		return newApplicationErrorf(AlreadyExists, "sheet %q already exists", name)
	}
	sheet.Name = name
	return nil
}

// SetActive activates a sheet and resets the selection
func (w *Workbook) SetActive(id string) error {
	if _, ok := w.Sheet(id); !ok {
		return newApplicationErrorf(NotFound, "sheet %q not found", id)
	}
	w.ActiveSheetID = id
	w.Selection = Selection{}
	return nil
}

// ActiveSheet returns the active sheet, falling back to the first sheet.
// it is nil only for a workbook without sheets.
func (w *Workbook) ActiveSheet() *Sheet {
	if sheet, ok := w.Sheet(w.ActiveSheetID); ok {
		return sheet
	}
	if len(w.Sheets) > 0 {
		return w.Sheets[0]
	}
	return nil
}

// Select moves the cursor within the active sheet
func (w *Workbook) Select(row, col int) error {
	sheet := w.ActiveSheet()
	if sheet == nil {
		return NewApplicationError(FailedPrecondition, "workbook has no sheets")
	}
	if !sheet.InBounds(row, col) {
		return newApplicationErrorf(OutOfRange, "cell %s is outside sheet %q", FormatAddress(row, col), sheet.Name)
	}
	w.Selection = Selection{Row: row, Column: col}
	return nil
}

// SheetNames lists the sheet names in order
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, sheet := range w.Sheets {
		names[i] = sheet.Name
	}
	return names
}

// Validate checks a workbook loaded from outside, e.g. decoded from JSON
func (w *Workbook) Validate() error {
	if len(w.Sheets) == 0 {
		return NewApplicationError(InvalidArgument, "workbook has no sheets")
	}

	ids := make(map[string]struct{}, len(w.Sheets))
	names := make(map[string]struct{}, len(w.Sheets))
	for _, sheet := range w.Sheets {
		if sheet == nil {
			return NewApplicationError(InvalidArgument, "workbook contains a null sheet")
		}
		if err := sheet.Validate(); err != nil {
			return err
		}
		if _, dup := ids[sheet.ID]; dup {
			return newApplicationErrorf(InvalidArgument, "duplicate sheet id %q", sheet.ID)
		}
		ids[sheet.ID] = struct{}{}

		folded := strings.ToLower(sheet.Name)
		if _, dup := names[folded]; dup {
			return newApplicationErrorf(InvalidArgument, "duplicate sheet name %q", sheet.Name)
		}
		names[folded] = struct{}{}
	}

	active, ok := w.Sheet(w.ActiveSheetID)
	if !ok {
		return newApplicationErrorf(InvalidArgument, "active sheet %q does not exist", w.ActiveSheetID)
	}
	if !active.InBounds(w.Selection.Row, w.Selection.Column) {
		return newApplicationErrorf(OutOfRange, "selection %d:%d is outside sheet %q", w.Selection.Row, w.Selection.Column, active.ID)
	}
	return nil
}
