package spreadsheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind is the type tag of a Value
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNumber
	KindText
	KindBoolean
	KindDate
	KindError
)

var kindNames = map[Kind]string{
	KindEmpty:   "empty",
	KindNumber:  "number",
	KindText:    "text",
	KindBoolean: "boolean",
	KindDate:    "date",
	KindError:   "error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var (
	// numericTextPattern decides which text coerces to a number
	numericTextPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	// numericLiteralPattern decides which raw cell input is stored as a number
	numericLiteralPattern = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)$`)
)

// Value is the result of evaluating a cell or an expression. the zero Value
// is Empty.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	t    time.Time
	err  *FormulaError
}

// Empty returns the value of an absent cell
func Empty() Value { return Value{} }

// Number returns a numeric value
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Text returns a string value
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Boolean returns a boolean value
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Date returns a date-time value
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// ErrorValue returns a value carrying the given formula error
func ErrorValue(err *FormulaError) Value {
	if err == nil {
		err = NewFormulaError(ErrorCodeOther, "")
	}
	return Value{kind: KindError, err: err}
}

// ErrorOf returns a value for the sentinel with the given code
func ErrorOf(code ErrorCode) Value {
	return ErrorValue(NewFormulaError(code, ""))
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

func (v Value) IsError() bool { return v.kind == KindError }

// Err returns the carried formula error, or nil for non-error values
func (v Value) Err() *FormulaError { return v.err }

// ToNumber coerces the value to a float64. non-numeric text fails with
// #VALUE! and error values fail with their own error.
func (v Value) ToNumber() (float64, error) {
	switch v.kind {
	case KindEmpty:
		return 0, nil
	case KindNumber:
		return v.num, nil
	case KindText:
		return parseNumericText(v.str)
	case KindBoolean:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindDate:
		return float64(v.t.UnixMilli()), nil
	case KindError:
		return 0, v.err
	}
	return 0, NewFormulaError(ErrorCodeValue, "unknown value kind")
}

// ToText coerces the value to its textual form. error values fail with their
// own error.
func (v Value) ToText() (string, error) {
	switch v.kind {
	case KindEmpty:
		return "", nil
	case KindNumber:
		return formatNumber(v.num), nil
	case KindText:
		return v.str, nil
	case KindBoolean:
		if v.b {
			return "TRUE", nil
		}
		return "FALSE", nil
	case KindDate:
		return v.t.Format(time.RFC3339), nil
	case KindError:
		return "", v.err
	}
	return "", NewFormulaError(ErrorCodeValue, "unknown value kind")
}

// Truthy returns the raw truthiness of the value
func (v Value) Truthy() (bool, error) {
	switch v.kind {
	case KindEmpty:
		return false, nil
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num), nil
	case KindText:
		return v.str != "", nil
	case KindBoolean:
		return v.b, nil
	case KindDate:
		return true, nil
	case KindError:
		return false, v.err
	}
	return false, NewFormulaError(ErrorCodeValue, "unknown value kind")
}

// Display returns the string shown in a grid cell. errors display as their
// sentinel.
func (v Value) Display() string {
	if v.kind == KindError {
		return v.err.Sentinel()
	}
	s, _ := v.ToText()
	return s
}

func (v Value) String() string {
	return v.Display()
}

// finiteNumber reports the numeric form of values that AVERAGE, MIN and MAX
// take into account: numbers, numeric text and dates, if finite
func (v Value) finiteNumber() (float64, bool) {
	var n float64
	switch v.kind {
	case KindNumber:
		n = v.num
	case KindText:
		parsed, err := parseNumericText(v.str)
		if err != nil || strings.TrimSpace(v.str) == "" {
			return 0, false
		}
		n = parsed
	case KindDate:
		n = float64(v.t.UnixMilli())
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// isNumericText reports whether text coerces to a number
func (v Value) isNumericText() bool {
	if v.kind != KindText {
		return false
	}
	_, err := parseNumericText(v.str)
	return err == nil
}

// literalValue converts raw, non-formula cell input into a Value
func literalValue(input string) Value {
	if numericLiteralPattern.MatchString(input) {
		if n, err := strconv.ParseFloat(input, 64); err == nil {
			return Number(n)
		}
	}
	if code, ok := ParseSentinel(input); ok {
		return ErrorOf(code)
	}
	return Text(input)
}

func parseNumericText(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, nil
	}
	if !numericTextPattern.MatchString(trimmed) {
		return 0, NewFormulaError(ErrorCodeValue, "cannot convert '"+s+"' to number")
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		// out of float64 range, ParseFloat still returns ±Inf
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return n, nil
		}
		return 0, NewFormulaError(ErrorCodeValue, "cannot convert '"+s+"' to number")
	}
	return n, nil
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	abs := math.Abs(n)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
