package spreadsheet

import (
	"fmt"
	"strings"
)

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenBoolean
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenIdentifier
	TokenError
)

var tokenTypeNames = map[TokenType]string{
	TokenEOF:           "EOF",
	TokenNumber:        "Number",
	TokenString:        "String",
	TokenBoolean:       "Boolean",
	TokenCell:          "Cell",
	TokenRange:         "Range",
	TokenFunction:      "Function",
	TokenUnaryPrefixOp: "UnaryPrefixOp",
	TokenBinaryOp:      "BinaryOp",
	TokenComma:         "Comma",
	TokenLeftParen:     "LeftParen",
	TokenRightParen:    "RightParen",
	TokenIdentifier:    "Identifier",
	TokenError:         "Error",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpModulo
	BinOpPower
	BinOpConcat
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
	BinOpAnd
	BinOpOr
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpNot
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charQuote      = '"'
	charBackslash  = '\\'
	charDollar     = '$'
	charPercent    = '%'
	charAmpersand  = '&'
	charPipe       = '|'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charCaret      = '^'
	charUnderscore = '_'
	charExclaim    = '!'
)

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterIdentifier
	StateAfterFunction
)

// valueTokens may start an operand
var valueTokens = map[TokenType]bool{
	TokenNumber:        true,
	TokenString:        true,
	TokenBoolean:       true,
	TokenCell:          true,
	TokenRange:         true,
	TokenFunction:      true,
	TokenIdentifier:    true,
	TokenLeftParen:     true,
	TokenUnaryPrefixOp: true,
}

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart:         valueTokens,
	StateAfterOperator: valueTokens,
	StateAfterComma:    valueTokens,
	StateAfterLeftParen: merge(valueTokens, map[TokenType]bool{
		TokenRightParen: true, // empty parens for arg-less functions like NOW()
	}),
	StateAfterValue: { // after number, string, boolean, cell, range
		TokenBinaryOp:   true,
		TokenRightParen: true,
		TokenComma:      true,
		TokenEOF:        true,
	},
	StateAfterRightParen: {
		TokenBinaryOp:   true,
		TokenRightParen: true,
		TokenComma:      true,
		TokenEOF:        true,
	},
	StateAfterIdentifier: {
		TokenBinaryOp:   true,
		TokenRightParen: true,
		TokenComma:      true,
		TokenEOF:        true,
	},
	StateAfterFunction: {
		TokenLeftParen: true,
	},
}

func merge(maps ...map[TokenType]bool) map[TokenType]bool {
	out := map[TokenType]bool{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in the formula body
}

// Lexer tokenizes the body of a formula, everything after the leading '='.
// string literals become single tokens, '$' markers are stripped from
// references, ranges are recognized before single cells and references are
// uppercased.
type Lexer struct {
	input      string
	runes      []rune
	pos        int
	state      TokenState
	parenDepth int
	tokens     []Token
}

// NewLexer creates a new lexer for the given formula body
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		pos:    0,
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input. the returned slice always ends with
// a TokenEOF on success.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok := l.nextToken()
		if tok.Type == TokenError {
			return nil, NewFormulaError(ErrorCodeOther, tok.Value)
		}
		if !l.validateTransition(tok.Type) {
			if tok.Type == TokenEOF {
				return nil, NewFormulaError(ErrorCodeOther, "unexpected end of formula")
			}
			return nil, NewFormulaError(ErrorCodeOther, "unexpected token: "+tok.Value)
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		return nil, NewFormulaError(ErrorCodeOther, "unbalanced parentheses: missing closing parenthesis")
	}

	return l.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenNumber, TokenString, TokenBoolean, TokenCell, TokenRange:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenIdentifier:
		l.state = StateAfterIdentifier
	case TokenFunction:
		l.state = StateAfterFunction
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	if ch == charQuote {
		return l.scanString()
	}

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charExclaim:
		if l.peek(1) != charEqual && l.isUnaryContext() {
			l.pos++
			return Token{Type: TokenUnaryPrefixOp, Value: "!", Pos: startPos}
		}
		return l.scanBinaryOp()
	case charAsterisk, charSlash, charPercent, charCaret, charAmpersand, charPipe,
		charEqual, charLess, charGreater:
		return l.scanBinaryOp()
	}

	if l.isAlpha(ch) || ch == charUnderscore || ch == charDollar {
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isReferenceChar(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch) || ch == charUnderscore || ch == charDollar
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod {
		l.pos++ // consume '.'
		for l.isDigit(l.current()) {
			l.pos++
		}
	}

	// scientific notation (e or E)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++

		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		if !l.isDigit(l.current()) {
			// not an exponent, restore position
			l.pos = savedPos
		} else {
			for l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanString scans a double-quoted string literal with backslash escapes.
// \n, \t and \r are control characters, any other escaped character stands
// for itself.
func (l *Lexer) scanString() Token {
	startPos := l.pos
	l.pos++ // consume opening quote

	var result strings.Builder

	for l.pos < len(l.runes) {
		ch := l.current()

		switch ch {
		case charQuote:
			l.pos++
			return Token{Type: TokenString, Value: result.String(), Pos: startPos}
		case charBackslash:
			if l.pos+1 >= len(l.runes) {
				l.pos++
				continue
			}
			escaped := l.peek(1)
			switch escaped {
			case 'n':
				result.WriteRune(charNewline)
			case 't':
				result.WriteRune(charTab)
			case 'r':
				result.WriteRune(charReturn)
			default:
				result.WriteRune(escaped)
			}
			l.pos += 2
		default:
			result.WriteRune(ch)
			l.pos++
		}
	}

	return Token{Type: TokenError, Value: "unclosed string literal", Pos: startPos}
}

// scanIdentifierOrCell scans functions, cells, ranges, booleans and bare
// identifiers
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos
	raw := l.scanReferenceRun()
	value := strings.ReplaceAll(raw, "$", "")
	upperValue := strings.ToUpper(value)

	// a name directly followed by '(' is always a call
	if l.nextNonSpace() == charLParen {
		if value != raw || value == "" {
			return Token{Type: TokenError, Value: "unexpected character: $", Pos: startPos}
		}
		return Token{Type: TokenFunction, Value: upperValue, Pos: startPos}
	}

	if l.isCell(value) {
		if l.current() == charColon {
			savedPos := l.pos
			l.pos++ // consume ':'

			second := strings.ReplaceAll(l.scanReferenceRun(), "$", "")
			if l.isCell(second) {
				return Token{Type: TokenRange, Value: upperValue + ":" + strings.ToUpper(second), Pos: startPos}
			}

			// not a valid range, restore position and return just the cell
			l.pos = savedPos
		}
		return Token{Type: TokenCell, Value: upperValue, Pos: startPos}
	}

	if value != raw || value == "" {
		return Token{Type: TokenError, Value: "unexpected character: $", Pos: startPos}
	}

	if upperValue == "TRUE" || upperValue == "FALSE" {
		return Token{Type: TokenBoolean, Value: upperValue, Pos: startPos}
	}

	return Token{Type: TokenIdentifier, Value: value, Pos: startPos}
}

func (l *Lexer) scanReferenceRun() string {
	start := l.pos
	for l.pos < len(l.runes) && l.isReferenceChar(l.current()) {
		l.pos++
	}
	return l.substring(start, l.pos)
}

func (l *Lexer) nextNonSpace() rune {
	for i := l.pos; i < len(l.runes); i++ {
		switch l.runes[i] {
		case charSpace, charTab, charNewline, charReturn:
			continue
		}
		return l.runes[i]
	}
	return charNull
}

// isCell checks if a string is a cell reference of the form LETTERS+DIGITS+
func (l *Lexer) isCell(s string) bool {
	letterEnd := 0
	for i, ch := range s {
		if l.isAlpha(ch) {
			letterEnd = i + 1
		} else {
			break
		}
	}

	// must have at least one letter and one digit
	if letterEnd == 0 || letterEnd == len(s) {
		return false
	}

	for i := letterEnd; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanBinaryOp scans binary operators, two-character ones first
func (l *Lexer) scanBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	next := l.peek(1)

	two := func(value string) Token {
		l.pos += 2
		return Token{Type: TokenBinaryOp, Value: value, Pos: startPos}
	}
	one := func() Token {
		l.pos++
		return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
	}

	switch ch {
	case charLess:
		if next == charEqual {
			return two("<=")
		} else if next == charGreater {
			return two("<>")
		}
		return one()
	case charGreater:
		if next == charEqual {
			return two(">=")
		}
		return one()
	case charEqual:
		if next == charEqual {
			return two("==")
		}
		return one()
	case charExclaim:
		if next == charEqual {
			return two("!=")
		}
		l.pos++
		return Token{Type: TokenError, Value: "unexpected '!'", Pos: startPos}
	case charAmpersand:
		if next == charAmpersand {
			return two("&&")
		}
		return one()
	case charPipe:
		if next == charPipe {
			return two("||")
		}
		l.pos++
		return Token{Type: TokenError, Value: "unexpected '|'", Pos: startPos}
	case charAsterisk, charSlash, charPercent, charCaret:
		return one()
	}

	l.pos++
	return Token{Type: TokenError, Value: "unknown operator", Pos: startPos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	switch l.state {
	case StateStart, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}
