package spreadsheet

import "fmt"

// ErrorCode represents the spreadsheet error sentinels a formula can
// evaluate to
type ErrorCode uint8

const (
	ErrorCodeValue ErrorCode = 1 // #VALUE! - value could not be coerced to the required type
	ErrorCodeRef   ErrorCode = 2 // #REF! - address or range did not resolve to in-range coordinates
	ErrorCodeCycle ErrorCode = 3 // #CYCLE! - evaluation revisited a cell on its own recursion path
	ErrorCodeOther ErrorCode = 4 // #ERROR! - all other evaluation failures
)

// ErrorMapper maps error codes to the sentinel strings shown in cells
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeValue: "#VALUE!",
	ErrorCodeRef:   "#REF!",
	ErrorCodeCycle: "#CYCLE!",
	ErrorCodeOther: "#ERROR!",
}

// errorMarker is the first character of every error sentinel
const errorMarker = '#'

// FormulaError is raised while evaluating a formula. it always renders as
// its sentinel, the message is kept for diagnostics only.
type FormulaError struct {
	ErrorCode ErrorCode
	Message   string
}

func (e *FormulaError) Error() string {
	return e.Sentinel()
}

// Sentinel returns the display string for the error
func (e *FormulaError) Sentinel() string {
	if s, ok := ErrorMapper[e.ErrorCode]; ok {
		return s
	}
	return ErrorMapper[ErrorCodeOther]
}

// Detail returns the sentinel followed by the diagnostic message, if any
func (e *FormulaError) Detail() string {
	if e.Message == "" {
		return e.Sentinel()
	}
	return fmt.Sprintf("%s %s", e.Sentinel(), e.Message)
}

func NewFormulaError(code ErrorCode, message string) *FormulaError {
	return &FormulaError{
		ErrorCode: code,
		Message:   message,
	}
}

// ParseSentinel reports whether s is exactly one of the error sentinels
func ParseSentinel(s string) (ErrorCode, bool) {
	if len(s) == 0 || s[0] != errorMarker {
		return 0, false
	}
	for code, sentinel := range ErrorMapper {
		if sentinel == s {
			return code, true
		}
	}
	return 0, false
}

// CellAddress identifies one cell of one sheet. it doubles as the key of the
// recursion path used for cycle detection.
type CellAddress struct {
	SheetID string
	Row     int // zero-based row index
	Column  int // zero-based column index
}

// Key returns the "sheetId:row:column" form of the address
func (a CellAddress) Key() string {
	return fmt.Sprintf("%s:%d:%d", a.SheetID, a.Row, a.Column)
}

// String returns the A1-style address without the sheet
func (a CellAddress) String() string {
	return FormatAddress(a.Row, a.Column)
}
