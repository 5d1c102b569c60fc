package spreadsheet

import (
	"iter"
	"strings"
)

// RangeAddress represents a rectangle of cells within a single sheet. the
// endpoints may be given in any order, Normalize orders them.
type RangeAddress struct {
	StartRow    int
	StartColumn int
	EndRow      int
	EndColumn   int
}

// ParseRange parses "A1:B10" style text. endpoints may carry '$' markers
// and any letter case.
func ParseRange(text string) (RangeAddress, bool) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return RangeAddress{}, false
	}

	startRow, startCol := ParseAddress(parts[0])
	endRow, endCol := ParseAddress(parts[1])
	if startRow < 0 || startCol < 0 || endRow < 0 || endCol < 0 {
		return RangeAddress{}, false
	}

	return RangeAddress{
		StartRow:    startRow,
		StartColumn: startCol,
		EndRow:      endRow,
		EndColumn:   endCol,
	}, true
}

// Normalize returns the range with start <= end on both axes
func (r RangeAddress) Normalize() RangeAddress {
	return RangeAddress{
		StartRow:    min(r.StartRow, r.EndRow),
		StartColumn: min(r.StartColumn, r.EndColumn),
		EndRow:      max(r.StartRow, r.EndRow),
		EndColumn:   max(r.StartColumn, r.EndColumn),
	}
}

// Contains checks whether the cell lies in the normalized range
func (r RangeAddress) Contains(row, col int) bool {
	n := r.Normalize()
	return row >= n.StartRow && row <= n.EndRow &&
		col >= n.StartColumn && col <= n.EndColumn
}

// Size returns the number of cells in the range
func (r RangeAddress) Size() int {
	n := r.Normalize()
	return (n.EndRow - n.StartRow + 1) * (n.EndColumn - n.StartColumn + 1)
}

func (r RangeAddress) String() string {
	return FormatAddress(r.StartRow, r.StartColumn) + ":" + FormatAddress(r.EndRow, r.EndColumn)
}

// Cells returns an iterator over every coordinate of the normalized range,
// row-major
func (r RangeAddress) Cells() iter.Seq2[int, int] {
	n := r.Normalize()
	return func(yield func(int, int) bool) {
		for row := n.StartRow; row <= n.EndRow; row++ {
			for col := n.StartColumn; col <= n.EndColumn; col++ {
				if !yield(row, col) {
					return
				}
			}
		}
	}
}
