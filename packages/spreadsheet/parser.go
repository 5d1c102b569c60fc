package spreadsheet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type NodePosition struct {
	Start int
	End   int
}

// ASTNode is a node of a parsed formula. reference and range nodes are
// resolved through the evaluation they run in, call nodes dispatch to the
// function library.
type ASTNode interface {
	Eval(e *evaluation) (Value, error)
	GetPosition() NodePosition
	ToString() string
}

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
}

// StringNode represents a string literal
type StringNode struct {
	Value    string
	Position NodePosition
}

func (n *StringNode) Eval(e *evaluation) (Value, error) {
	return Text(n.Value), nil
}

func (n *StringNode) GetPosition() NodePosition {
	return n.Position
}

func (n *StringNode) ToString() string {
	escaped := strings.ReplaceAll(n.Value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf("\"%s\"", escaped)
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    float64
	Position NodePosition
}

func (n *NumberNode) Eval(e *evaluation) (Value, error) {
	return Number(n.Value), nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return formatNumber(n.Value)
}

// BooleanNode represents a boolean literal
type BooleanNode struct {
	Value    bool
	Position NodePosition
}

func (n *BooleanNode) Eval(e *evaluation) (Value, error) {
	return Boolean(n.Value), nil
}

func (n *BooleanNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BooleanNode) ToString() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

// CellRefNode represents a single cell reference. Row and Column are -1
// when the address text did not parse.
type CellRefNode struct {
	Address  string
	Row      int
	Column   int
	Position NodePosition
}

func (n *CellRefNode) Eval(e *evaluation) (Value, error) {
	return e.resolveCell(n.Row, n.Column)
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return n.Address
}

// RangeNode represents a rectangular range of cells. ranges only have a
// meaning as function arguments, where they expand to their cells.
type RangeNode struct {
	Text     string
	Range    RangeAddress
	Position NodePosition
}

func (n *RangeNode) Eval(e *evaluation) (Value, error) {
	return Value{}, NewFormulaError(ErrorCodeValue, fmt.Sprintf("range %s used as a single value", n.Text))
}

// Expand resolves every cell of the range, row-major
func (n *RangeNode) Expand(e *evaluation) ([]Value, error) {
	return e.resolveRange(n.Range)
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return n.Text
}

// IdentifierNode represents a bare name that is neither a reference, a
// boolean nor a call
type IdentifierNode struct {
	Name     string
	Position NodePosition
}

func (n *IdentifierNode) Eval(e *evaluation) (Value, error) {
	return Value{}, NewFormulaError(ErrorCodeOther, fmt.Sprintf("unknown identifier '%s'", n.Name))
}

func (n *IdentifierNode) GetPosition() NodePosition {
	return n.Position
}

func (n *IdentifierNode) ToString() string {
	return n.Name
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

var binaryOpSymbols = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpModulo:       "%",
	BinOpPower:        "^",
	BinOpConcat:       "&",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
	BinOpAnd:          "&&",
	BinOpOr:           "||",
}

func (n *BinaryOpNode) Eval(e *evaluation) (Value, error) {
	// operands are always both evaluated, a raised error short-circuits the
	// whole formula
	leftVal, err := n.Left.Eval(e)
	if err != nil {
		return Value{}, err
	}
	rightVal, err := n.Right.Eval(e)
	if err != nil {
		return Value{}, err
	}

	switch n.Op {
	case BinOpAdd, BinOpSubtract, BinOpMultiply, BinOpDivide, BinOpModulo, BinOpPower:
		return arithmetic(n.Op, leftVal, rightVal)

	case BinOpConcat:
		leftText, err := leftVal.ToText()
		if err != nil {
			return Value{}, err
		}
		rightText, err := rightVal.ToText()
		if err != nil {
			return Value{}, err
		}
		return Text(leftText + rightText), nil

	case BinOpEqual, BinOpNotEqual, BinOpLess, BinOpLessEqual, BinOpGreater, BinOpGreaterEqual:
		return compare(n.Op, leftVal, rightVal)

	case BinOpAnd, BinOpOr:
		leftTruth, err := leftVal.Truthy()
		if err != nil {
			return Value{}, err
		}
		rightTruth, err := rightVal.Truthy()
		if err != nil {
			return Value{}, err
		}
		if n.Op == BinOpAnd {
			return Boolean(leftTruth && rightTruth), nil
		}
		return Boolean(leftTruth || rightTruth), nil

	default:
		return Value{}, NewFormulaError(ErrorCodeOther, "unknown operator")
	}
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binaryOpSymbols[n.Op], n.Right.ToString())
}

// arithmetic follows IEEE-754: division by zero gives an infinity and
// invalid operations give NaN, neither is an error
func arithmetic(op BinaryOp, leftVal, rightVal Value) (Value, error) {
	leftNum, err := leftVal.ToNumber()
	if err != nil {
		return Value{}, err
	}
	rightNum, err := rightVal.ToNumber()
	if err != nil {
		return Value{}, err
	}

	switch op {
	case BinOpAdd:
		return Number(leftNum + rightNum), nil
	case BinOpSubtract:
		return Number(leftNum - rightNum), nil
	case BinOpMultiply:
		return Number(leftNum * rightNum), nil
	case BinOpDivide:
		return Number(leftNum / rightNum), nil
	case BinOpModulo:
		return Number(math.Mod(leftNum, rightNum)), nil
	case BinOpPower:
		return Number(math.Pow(leftNum, rightNum)), nil
	}
	return Value{}, NewFormulaError(ErrorCodeOther, "unknown arithmetic operator")
}

// compare compares as text when either side is non-numeric text, otherwise
// numerically. comparisons involving NaN are false, except not-equal.
func compare(op BinaryOp, leftVal, rightVal Value) (Value, error) {
	if leftVal.IsError() {
		return Value{}, leftVal.Err()
	}
	if rightVal.IsError() {
		return Value{}, rightVal.Err()
	}

	var cmp int
	if isPlainText(leftVal) || isPlainText(rightVal) {
		leftText, _ := leftVal.ToText()
		rightText, _ := rightVal.ToText()
		cmp = strings.Compare(leftText, rightText)
	} else {
		leftNum, _ := leftVal.ToNumber()
		rightNum, _ := rightVal.ToNumber()
		if math.IsNaN(leftNum) || math.IsNaN(rightNum) {
			return Boolean(op == BinOpNotEqual), nil
		}
		switch {
		case leftNum < rightNum:
			cmp = -1
		case leftNum > rightNum:
			cmp = 1
		}
	}

	switch op {
	case BinOpEqual:
		return Boolean(cmp == 0), nil
	case BinOpNotEqual:
		return Boolean(cmp != 0), nil
	case BinOpLess:
		return Boolean(cmp < 0), nil
	case BinOpLessEqual:
		return Boolean(cmp <= 0), nil
	case BinOpGreater:
		return Boolean(cmp > 0), nil
	case BinOpGreaterEqual:
		return Boolean(cmp >= 0), nil
	}
	return Value{}, NewFormulaError(ErrorCodeOther, "unknown comparison operator")
}

func isPlainText(v Value) bool {
	return v.Kind() == KindText && !v.isNumericText()
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(e *evaluation) (Value, error) {
	val, err := n.Operand.Eval(e)
	if err != nil {
		return Value{}, err
	}

	switch n.Op {
	case UnaryOpPlus:
		num, err := val.ToNumber()
		if err != nil {
			return Value{}, err
		}
		return Number(num), nil

	case UnaryOpMinus:
		num, err := val.ToNumber()
		if err != nil {
			return Value{}, err
		}
		return Number(-num), nil

	case UnaryOpNot:
		truth, err := val.Truthy()
		if err != nil {
			return Value{}, err
		}
		return Boolean(!truth), nil

	default:
		return Value{}, NewFormulaError(ErrorCodeOther, "unknown unary operator")
	}
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	opStr := ""
	switch n.Op {
	case UnaryOpPlus:
		opStr = "+"
	case UnaryOpMinus:
		opStr = "-"
	case UnaryOpNot:
		opStr = "!"
	}
	return fmt.Sprintf("%s%s", opStr, n.Operand.ToString())
}

// FunctionCallNode represents a function call
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(e *evaluation) (Value, error) {
	// flatten arguments, ranges expand row-major in place
	args := make([]Value, 0, len(n.Args))
	for _, argNode := range n.Args {
		if rangeNode, ok := argNode.(*RangeNode); ok {
			values, err := rangeNode.Expand(e)
			if err != nil {
				return Value{}, err
			}
			args = append(args, values...)
			continue
		}

		argVal, err := argNode.Eval(e)
		if err != nil {
			return Value{}, err
		}
		args = append(args, argVal)
	}

	return e.functions.Call(n.Name, args...)
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// ParseFormula tokenizes and parses a formula body, the text after the
// leading '='
func ParseFormula(body string) (ASTNode, error) {
	tokens, err := NewLexer(body).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse()
}

// NewParser creates a new parser over the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens: tokens,
		pos:    0,
	}
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 || p.tokens[0].Type == TokenEOF {
		return nil, NewFormulaError(ErrorCodeOther, "empty formula")
	}

	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.pos < len(p.tokens) && p.tokens[p.pos].Type != TokenEOF {
		return nil, NewFormulaError(ErrorCodeOther, fmt.Sprintf("unexpected token after expression: %s", p.tokens[p.pos].Value))
	}

	return node, nil
}

func (p *Parser) parseExpression() (ASTNode, error) {
	return p.parseOr()
}

// binaryLevel parses one left-associative precedence level
func (p *Parser) binaryLevel(next func() (ASTNode, error), ops map[string]BinaryOp) (ASTNode, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if tok.Type != TokenBinaryOp {
			break
		}
		op, ok := ops[tok.Value]
		if !ok {
			break
		}

		p.pos++
		right, err := next()
		if err != nil {
			return nil, err
		}

		left = &BinaryOpNode{
			Op:       op,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}
	}

	return left, nil
}

// operator tables per precedence level, lowest first
var (
	orOps         = map[string]BinaryOp{"||": BinOpOr}
	andOps        = map[string]BinaryOp{"&&": BinOpAnd}
	comparisonOps = map[string]BinaryOp{
		"=":  BinOpEqual,
		"==": BinOpEqual,
		"<>": BinOpNotEqual,
		"!=": BinOpNotEqual,
		"<":  BinOpLess,
		"<=": BinOpLessEqual,
		">":  BinOpGreater,
		">=": BinOpGreaterEqual,
	}
	concatenationOps  = map[string]BinaryOp{"&": BinOpConcat}
	additionOps       = map[string]BinaryOp{"+": BinOpAdd, "-": BinOpSubtract}
	multiplicationOps = map[string]BinaryOp{"*": BinOpMultiply, "/": BinOpDivide, "%": BinOpModulo}
)

// parseOr handles || (lowest precedence)
func (p *Parser) parseOr() (ASTNode, error) {
	return p.binaryLevel(p.parseAnd, orOps)
}

// parseAnd handles &&
func (p *Parser) parseAnd() (ASTNode, error) {
	return p.binaryLevel(p.parseComparison, andOps)
}

// parseComparison handles comparison operators
func (p *Parser) parseComparison() (ASTNode, error) {
	return p.binaryLevel(p.parseConcatenation, comparisonOps)
}

// parseConcatenation handles string concatenation
func (p *Parser) parseConcatenation() (ASTNode, error) {
	return p.binaryLevel(p.parseAddition, concatenationOps)
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	return p.binaryLevel(p.parseMultiplication, additionOps)
}

// parseMultiplication handles multiplication, division, and modulo
func (p *Parser) parseMultiplication() (ASTNode, error) {
	return p.binaryLevel(p.parsePower, multiplicationOps)
}

// parsePower handles exponentiation
func (p *Parser) parsePower() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	// right-associative
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenBinaryOp && p.tokens[p.pos].Value == "^" {
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}

		return &BinaryOpNode{
			Op:       BinOpPower,
			Left:     left,
			Right:    right,
			Position: NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End},
		}, nil
	}

	return left, nil
}

// parseUnary handles unary operators
func (p *Parser) parseUnary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewFormulaError(ErrorCodeOther, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePrimary()
	}

	var op UnaryOp
	switch tok.Value {
	case "+":
		op = UnaryOpPlus
	case "-":
		op = UnaryOpMinus
	case "!":
		op = UnaryOpNot
	default:
		return nil, NewFormulaError(ErrorCodeOther, fmt.Sprintf("unknown unary operator: %s", tok.Value))
	}

	p.pos++
	operand, err := p.parseUnary() // recurse for chained unary operators
	if err != nil {
		return nil, err
	}

	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePrimary handles literals, references, functions and parentheses
func (p *Parser) parsePrimary() (ASTNode, error) {
	if p.pos >= len(p.tokens) {
		return nil, NewFormulaError(ErrorCodeOther, "unexpected end of expression")
	}

	tok := p.tokens[p.pos]
	position := NodePosition{Start: tok.Pos, End: tok.Pos + len([]rune(tok.Value))}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, NewFormulaError(ErrorCodeOther, fmt.Sprintf("invalid number: %s", tok.Value))
		}
		return &NumberNode{Value: val, Position: position}, nil

	case TokenString:
		p.pos++
		return &StringNode{Value: tok.Value, Position: position}, nil

	case TokenBoolean:
		p.pos++
		return &BooleanNode{Value: tok.Value == "TRUE", Position: position}, nil

	case TokenCell:
		p.pos++
		row, col := ParseAddress(tok.Value)
		return &CellRefNode{Address: tok.Value, Row: row, Column: col, Position: position}, nil

	case TokenRange:
		p.pos++
		return p.parseRange(tok, position)

	case TokenIdentifier:
		p.pos++
		return &IdentifierNode{Name: tok.Value, Position: position}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseExpression()
		if err != nil {
			return nil, err
		}

		if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenRightParen {
			return nil, NewFormulaError(ErrorCodeOther, "expected closing parenthesis")
		}
		p.pos++

		return node, nil

	default:
		return nil, NewFormulaError(ErrorCodeOther, fmt.Sprintf("unexpected token: %s", tok.Value))
	}
}

// parseRange parses a range token. endpoints that do not parse keep -1
// coordinates and fail with #REF! when resolved.
func (p *Parser) parseRange(tok Token, position NodePosition) (ASTNode, error) {
	parts := strings.Split(tok.Value, ":")
	if len(parts) != 2 {
		return nil, NewFormulaError(ErrorCodeOther, fmt.Sprintf("invalid range format: %s", tok.Value))
	}

	startRow, startCol := ParseAddress(parts[0])
	endRow, endCol := ParseAddress(parts[1])

	return &RangeNode{
		Text: tok.Value,
		Range: RangeAddress{
			StartRow:    startRow,
			StartColumn: startCol,
			EndRow:      endRow,
			EndColumn:   endCol,
		},
		Position: position,
	}, nil
}

// parseFunctionCall parses a function call
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.tokens[p.pos]
	p.pos++

	if p.pos >= len(p.tokens) || p.tokens[p.pos].Type != TokenLeftParen {
		return nil, NewFormulaError(ErrorCodeOther, "expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}

	// empty argument list
	if p.pos < len(p.tokens) && p.tokens[p.pos].Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:     funcTok.Value,
			Args:     args,
			Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].Pos + 1},
		}, nil
	}

	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.pos >= len(p.tokens) {
			return nil, NewFormulaError(ErrorCodeOther, "unexpected end in function arguments")
		}

		if p.tokens[p.pos].Type == TokenRightParen {
			p.pos++
			break
		}

		if p.tokens[p.pos].Type != TokenComma {
			return nil, NewFormulaError(ErrorCodeOther, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].Pos + 1},
	}, nil
}
