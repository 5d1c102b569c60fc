package spreadsheet

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Clock interface provides time functionality for testing
type Clock interface {
	Now() time.Time
}

// WallClock is the default implementation using system time
type WallClock struct{}

func (w *WallClock) Now() time.Time {
	return time.Now()
}

// FixedClock always reports the same instant
type FixedClock struct {
	Time time.Time
}

func (f *FixedClock) Now() time.Time {
	return f.Time
}

// isoDateLayout is the calendar date layout returned by TODAY
const isoDateLayout = "2006-01-02"

// BuiltInFunctions contains all spreadsheet built-in functions. every
// function receives its arguments already evaluated and flattened, ranges
// expanded row-major.
type BuiltInFunctions struct {
	clock Clock
}

// NewDefaultBuiltInFunctions creates a BuiltInFunctions reading the wall
// clock
func NewDefaultBuiltInFunctions() *BuiltInFunctions {
	return NewBuiltInFunctions(&WallClock{})
}

func NewBuiltInFunctions(clock Clock) *BuiltInFunctions {
	if clock == nil {
		clock = &WallClock{}
	}
	return &BuiltInFunctions{clock: clock}
}

// FunctionNames lists every name Call dispatches
var FunctionNames = []string{
	"SUM", "AVERAGE", "MIN", "MAX", "COUNT", "COUNTA", "ROUND", "ABS",
	"IF", "AND", "OR", "NOT", "TODAY", "NOW", "TRUE", "FALSE",
}

// Call invokes a built-in function by name, case-insensitively
func (bf *BuiltInFunctions) Call(name string, args ...Value) (Value, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return bf.SUM(args...)
	case "AVERAGE":
		return bf.AVERAGE(args...)
	case "MIN":
		return bf.MIN(args...)
	case "MAX":
		return bf.MAX(args...)
	case "COUNT":
		return bf.COUNT(args...)
	case "COUNTA":
		return bf.COUNTA(args...)
	case "ROUND":
		return bf.ROUND(args...)
	case "ABS":
		return bf.ABS(args...)
	case "IF":
		return bf.IF(args...)
	case "AND":
		return bf.AND(args...)
	case "OR":
		return bf.OR(args...)
	case "NOT":
		return bf.NOT(args...)
	case "TODAY":
		return bf.TODAY(args...)
	case "NOW":
		return bf.NOW(args...)
	case "TRUE":
		return bf.constant(true, args...)
	case "FALSE":
		return bf.constant(false, args...)
	default:
		return Value{}, NewFormulaError(ErrorCodeOther, fmt.Sprintf("unknown function: %s", name))
	}
}

// SUM adds the numeric coercion of every argument. arguments that fail to
// coerce, error values included, contribute 0.
func (bf *BuiltInFunctions) SUM(args ...Value) (Value, error) {
	sum := 0.0
	for _, arg := range args {
		if num, err := arg.ToNumber(); err == nil && !math.IsNaN(num) {
			sum += num
		}
	}
	return Number(sum), nil
}

// AVERAGE is the mean of the finite numeric arguments, 0 when there are none
func (bf *BuiltInFunctions) AVERAGE(args ...Value) (Value, error) {
	sum := 0.0
	count := 0
	for _, arg := range args {
		if num, ok := arg.finiteNumber(); ok {
			sum += num
			count++
		}
	}
	if count == 0 {
		return Number(0), nil
	}
	return Number(sum / float64(count)), nil
}

func (bf *BuiltInFunctions) MIN(args ...Value) (Value, error) {
	return bf.extreme(func(a, b float64) bool { return a < b }, args...)
}

func (bf *BuiltInFunctions) MAX(args ...Value) (Value, error) {
	return bf.extreme(func(a, b float64) bool { return a > b }, args...)
}

func (bf *BuiltInFunctions) extreme(better func(a, b float64) bool, args ...Value) (Value, error) {
	found := false
	result := 0.0
	for _, arg := range args {
		num, ok := arg.finiteNumber()
		if !ok {
			continue
		}
		if !found || better(num, result) {
			result = num
			found = true
		}
	}
	return Number(result), nil
}

// COUNT counts the non-empty arguments
func (bf *BuiltInFunctions) COUNT(args ...Value) (Value, error) {
	count := 0
	for _, arg := range args {
		if arg.IsEmpty() || (arg.Kind() == KindText && arg.str == "") {
			continue
		}
		count++
	}
	return Number(float64(count)), nil
}

// COUNTA is the same as COUNT
func (bf *BuiltInFunctions) COUNTA(args ...Value) (Value, error) {
	return bf.COUNT(args...)
}

// ROUND rounds half away from zero to the given number of decimal digits
func (bf *BuiltInFunctions) ROUND(args ...Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return Value{}, NewFormulaError(ErrorCodeOther, "ROUND requires 1 or 2 arguments")
	}

	num, err := args[0].ToNumber()
	if err != nil {
		return Value{}, err
	}

	places := 0.0
	if len(args) == 2 {
		places, err = args[1].ToNumber()
		if err != nil {
			return Value{}, err
		}
	}

	if math.IsNaN(num) || math.IsInf(num, 0) || math.IsNaN(places) || math.IsInf(places, 0) {
		return Value{}, NewFormulaError(ErrorCodeValue, "ROUND requires finite arguments")
	}

	multiplier := math.Pow(10, places)
	return Number(math.Round(num*multiplier) / multiplier), nil
}

func (bf *BuiltInFunctions) ABS(args ...Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, NewFormulaError(ErrorCodeOther, "ABS requires exactly 1 argument")
	}
	num, err := args[0].ToNumber()
	if err != nil {
		return Value{}, err
	}
	return Number(math.Abs(num)), nil
}

// IF returns one of its branches unchanged. a missing else branch is Empty.
func (bf *BuiltInFunctions) IF(args ...Value) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, NewFormulaError(ErrorCodeOther, "IF requires 2 or 3 arguments")
	}

	condition, err := args[0].Truthy()
	if err != nil {
		return Value{}, err
	}
	if condition {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return Empty(), nil
}

func (bf *BuiltInFunctions) AND(args ...Value) (Value, error) {
	result := true
	for _, arg := range args {
		truth, err := arg.Truthy()
		if err != nil {
			return Value{}, err
		}
		result = result && truth
	}
	return Boolean(result), nil
}

func (bf *BuiltInFunctions) OR(args ...Value) (Value, error) {
	result := false
	for _, arg := range args {
		truth, err := arg.Truthy()
		if err != nil {
			return Value{}, err
		}
		result = result || truth
	}
	return Boolean(result), nil
}

func (bf *BuiltInFunctions) NOT(args ...Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, NewFormulaError(ErrorCodeOther, "NOT requires exactly 1 argument")
	}
	truth, err := args[0].Truthy()
	if err != nil {
		return Value{}, err
	}
	return Boolean(!truth), nil
}

// TODAY returns the current calendar date as YYYY-MM-DD text
func (bf *BuiltInFunctions) TODAY(args ...Value) (Value, error) {
	if len(args) != 0 {
		return Value{}, NewFormulaError(ErrorCodeOther, "TODAY takes no arguments")
	}
	return Text(bf.clock.Now().Format(isoDateLayout)), nil
}

// NOW returns the current date-time
func (bf *BuiltInFunctions) NOW(args ...Value) (Value, error) {
	if len(args) != 0 {
		return Value{}, NewFormulaError(ErrorCodeOther, "NOW takes no arguments")
	}
	return Date(bf.clock.Now()), nil
}

func (bf *BuiltInFunctions) constant(b bool, args ...Value) (Value, error) {
	if len(args) != 0 {
		return Value{}, NewFormulaError(ErrorCodeOther, "TRUE and FALSE take no arguments")
	}
	return Boolean(b), nil
}
