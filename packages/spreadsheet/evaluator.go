package spreadsheet

import (
	"errors"
	"fmt"
	"iter"
)

// Evaluator computes cell values on demand. nothing is cached: every request
// re-evaluates the whole dependency tree of the cell from the raw inputs, so
// a shared dependency is recomputed once per dependent.
type Evaluator struct {
	functions *BuiltInFunctions
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithClock sets the clock used by NOW and TODAY
func WithClock(clock Clock) EvaluatorOption {
	return func(e *Evaluator) {
		e.functions = NewBuiltInFunctions(clock)
	}
}

// NewEvaluator creates an evaluator reading the wall clock unless configured
// otherwise
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		functions: NewDefaultBuiltInFunctions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateCell returns the value of a cell. errors are returned as error
// values, never as panics.
func (e *Evaluator) EvaluateCell(sheet *Sheet, row, col int) Value {
	if !sheet.InBounds(row, col) {
		return ErrorOf(ErrorCodeRef)
	}
	return e.newEvaluation(sheet).evaluateCell(row, col)
}

// EvaluateAddress is EvaluateCell for an A1-style address
func (e *Evaluator) EvaluateAddress(sheet *Sheet, address string) Value {
	row, col := ParseAddress(address)
	return e.EvaluateCell(sheet, row, col)
}

// EvaluateFormula evaluates input as if it were stored in a cell of the
// sheet, without storing it. the input itself takes no part in cycle
// detection.
func (e *Evaluator) EvaluateFormula(sheet *Sheet, input string) Value {
	x := e.newEvaluation(sheet)
	return x.evaluateInput(input)
}

// Render returns the display string of every cell of the sheet, each
// evaluated independently
func (e *Evaluator) Render(sheet *Sheet) [][]string {
	grid := make([][]string, sheet.RowCount)
	for row := range sheet.RowCount {
		grid[row] = make([]string, sheet.ColumnCount)
		for col := range sheet.ColumnCount {
			grid[row][col] = e.EvaluateCell(sheet, row, col).Display()
		}
	}
	return grid
}

// Values iterates the populated cells of the sheet in row-major order with
// their evaluated values
func (e *Evaluator) Values(sheet *Sheet) iter.Seq2[CellAddress, Value] {
	return func(yield func(CellAddress, Value) bool) {
		for addr := range sheet.Populated() {
			if !yield(addr, e.EvaluateCell(sheet, addr.Row, addr.Column)) {
				return
			}
		}
	}
}

func (e *Evaluator) newEvaluation(sheet *Sheet) *evaluation {
	return &evaluation{
		sheet:     sheet,
		functions: e.functions,
		stack:     NewCalculationStack(),
	}
}

// CalculationStack holds the formula cells currently being evaluated, the
// recursion path of one evaluation request
type CalculationStack struct {
	items      []CellAddress
	processing map[CellAddress]struct{}
}

// NewCalculationStack creates a new calculation stack
func NewCalculationStack() *CalculationStack {
	return &CalculationStack{
		items:      make([]CellAddress, 0),
		processing: make(map[CellAddress]struct{}),
	}
}

// push adds a cell to the path
func (cs *CalculationStack) push(addr CellAddress) {
	cs.items = append(cs.items, addr)
	cs.processing[addr] = struct{}{}
}

// pop removes and returns the most recently pushed cell
func (cs *CalculationStack) pop() (CellAddress, bool) {
	if len(cs.items) == 0 {
		return CellAddress{}, false
	}
	addr := cs.items[len(cs.items)-1]
	cs.items = cs.items[:len(cs.items)-1]
	delete(cs.processing, addr)
	return addr, true
}

// isProcessing checks if a cell is on the current path
func (cs *CalculationStack) isProcessing(addr CellAddress) bool {
	_, exists := cs.processing[addr]
	return exists
}

// depth returns the length of the current path
func (cs *CalculationStack) depth() int {
	return len(cs.items)
}

// evaluation is one evaluation request: a sheet, the function library and
// the recursion path shared by every nested cell resolution
type evaluation struct {
	sheet     *Sheet
	functions *BuiltInFunctions
	stack     *CalculationStack
}

// evaluateCell computes the value of an in-bounds cell
func (x *evaluation) evaluateCell(row, col int) Value {
	input := x.sheet.GetInput(row, col)
	if input == "" {
		return Empty()
	}
	if !IsFormula(input) {
		return literalValue(input)
	}

	addr := CellAddress{SheetID: x.sheet.ID, Row: row, Column: col}
	if x.stack.isProcessing(addr) {
		return ErrorValue(NewFormulaError(ErrorCodeCycle, "circular reference through "+addr.String()))
	}

	x.stack.push(addr)
	defer x.stack.pop()

	return x.evaluateFormula(input[len(formulaPrefix):])
}

// evaluateInput evaluates raw input that is not stored in the sheet
func (x *evaluation) evaluateInput(input string) Value {
	switch {
	case input == "":
		return Empty()
	case IsFormula(input):
		return x.evaluateFormula(input[len(formulaPrefix):])
	default:
		return literalValue(input)
	}
}

// evaluateFormula parses and evaluates a formula body. raised formula
// errors become the result, anything else becomes #ERROR!.
func (x *evaluation) evaluateFormula(body string) (result Value) {
	defer func() {
		if r := recover(); r != nil {
			result = ErrorValue(NewFormulaError(ErrorCodeOther, fmt.Sprintf("panic: %v", r)))
		}
	}()

	node, err := ParseFormula(body)
	if err != nil {
		return toErrorValue(err)
	}

	value, err := node.Eval(x)
	if err != nil {
		return toErrorValue(err)
	}
	// sentinel text produced by a formula is that error, as for literals
	if value.kind == KindText {
		if code, ok := ParseSentinel(value.str); ok {
			return ErrorOf(code)
		}
	}
	return value
}

// resolveCell returns the value of a referenced cell. unparseable and
// out-of-bounds references raise #REF!.
func (x *evaluation) resolveCell(row, col int) (Value, error) {
	if !x.sheet.InBounds(row, col) {
		return Value{}, NewFormulaError(ErrorCodeRef, fmt.Sprintf("reference %s is outside the sheet", describeAddress(row, col)))
	}
	return x.evaluateCell(row, col), nil
}

// resolveRange returns the values of every cell of a range, row-major. each
// cell goes through the same cycle check as a single reference.
func (x *evaluation) resolveRange(r RangeAddress) ([]Value, error) {
	if !x.sheet.InBounds(r.StartRow, r.StartColumn) || !x.sheet.InBounds(r.EndRow, r.EndColumn) {
		return nil, NewFormulaError(ErrorCodeRef, "range is outside the sheet")
	}

	values := make([]Value, 0, r.Size())
	for row, col := range r.Cells() {
		values = append(values, x.evaluateCell(row, col))
	}
	return values, nil
}

func describeAddress(row, col int) string {
	if row < 0 || col < 0 {
		return fmt.Sprintf("(%d, %d)", row, col)
	}
	return FormatAddress(row, col)
}

func toErrorValue(err error) Value {
	var formulaErr *FormulaError
	if errors.As(err, &formulaErr) {
		return ErrorValue(formulaErr)
	}
	return ErrorValue(NewFormulaError(ErrorCodeOther, err.Error()))
}
