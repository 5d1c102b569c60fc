package spreadsheet

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// addressPattern matches a bare A1-style address once absolute markers are
// stripped and the text is uppercased
var addressPattern = regexp.MustCompile(`^([A-Z]+)([0-9]+)$`)

// ColumnIndexToName converts a zero-based column index to its letter name.
// the encoding is bijective base-26: 0->"A", 25->"Z", 26->"AA", 701->"ZZ",
// 702->"AAA". negative indices have no name.
func ColumnIndexToName(index int) string {
	if index < 0 {
		return ""
	}

	var name []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		name = append(name, byte('A'+(n-1)%26))
	}

	// digits were produced least significant first
	for i, j := 0, len(name)-1; i < j; i, j = i+1, j-1 {
		name[i], name[j] = name[j], name[i]
	}
	return string(name)
}

// NameToColumnIndex is the inverse of ColumnIndexToName. it is
// case-insensitive and returns -1 for empty names, names containing anything
// but letters, and names too long to index.
func NameToColumnIndex(name string) int {
	if name == "" {
		return -1
	}

	col := 0
	for _, ch := range strings.ToUpper(name) {
		if ch < 'A' || ch > 'Z' {
			return -1
		}
		if col > (math.MaxInt32-26)/26 {
			return -1
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1
}

// ParseAddress parses text like "B3", "$B$3" or "b3" into zero-based row and
// column indices. it returns (-1, -1) when the text is not an address. a row
// of "0" parses to row -1, which no sheet contains.
func ParseAddress(text string) (row int, column int) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(text), "$", ""))
	match := addressPattern.FindStringSubmatch(normalized)
	if match == nil {
		return -1, -1
	}

	column = NameToColumnIndex(match[1])
	rowNum, err := strconv.Atoi(match[2])
	if column < 0 || err != nil || rowNum > math.MaxInt32 {
		return -1, -1
	}

	return rowNum - 1, column
}

// FormatAddress converts zero-based indices back to A1 notation
func FormatAddress(row, column int) string {
	return ColumnIndexToName(column) + strconv.Itoa(row+1)
}
