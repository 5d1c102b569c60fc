package spreadsheet

import (
	"fmt"
	"testing"
)

func BenchmarkLargeCellPopulation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := NewSheet("sheet-1", "Sheet1", 100, 26)
		for row := 0; row < 100; row++ {
			for col := 0; col < 26; col++ {
				_ = s.SetInput(row, col, fmt.Sprint((row+1)*(col+1)))
			}
		}
	}
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 100, 26)
	_ = s.SetInput(0, 0, "1")
	for row := 1; row < 100; row++ {
		_ = s.SetInput(row, 0, fmt.Sprintf("=A%d+1", row))
	}
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.EvaluateCell(s, 99, 0)
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 500, 26)
	_ = s.SetInput(0, 0, "100")
	for row := 1; row < 500; row++ {
		_ = s.SetInput(row, 1, "=A1*2")
	}
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.SetInput(0, 0, fmt.Sprint(i))
		for range e.Values(s) {
		}
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 1000, 26)
	for row := 0; row < 1000; row++ {
		_ = s.SetInput(row, 0, fmt.Sprint(row+1))
	}
	_ = s.SetInput(0, 1, "=SUM(A1:A1000)")
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.EvaluateCell(s, 0, 1)
	}
}

func BenchmarkComplexNestedFormulas(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 100, 26)
	for row := 0; row < 20; row++ {
		_ = s.SetInput(row, 0, fmt.Sprint(row+1))
		_ = s.SetInput(row, 1, fmt.Sprint((row+1)*2))
	}
	_ = s.SetInputAt("C1", "=IF(AVERAGE(A1:A20)>10, SUM(B1:B20), MAX(A1:A20))")
	_ = s.SetInputAt("D1", "=ROUND(C1^0.5*3.14159, 2)")
	_ = s.SetInputAt("E1", "=IF(D1>100, MIN(A1:A20), MIN(B1:B20))")
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.EvaluateAddress(s, "E1")
	}
}

// each cell is the sum of its left and upper neighbours, which without
// caching makes the bottom-right cell exponential in the grid size
func BenchmarkDiamondDependencies(b *testing.B) {
	const grid = 8
	s := NewSheet("sheet-1", "Sheet1", grid, grid)
	for row := 0; row < grid; row++ {
		for col := 0; col < grid; col++ {
			var input string
			switch {
			case row == 0 && col == 0:
				input = "1"
			case row == 0:
				input = "=" + FormatAddress(row, col-1) + "+1"
			case col == 0:
				input = "=" + FormatAddress(row-1, col) + "+1"
			default:
				input = "=" + FormatAddress(row, col-1) + "+" + FormatAddress(row-1, col)
			}
			_ = s.SetInput(row, col, input)
		}
	}
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.EvaluateCell(s, grid-1, grid-1)
	}
}

func BenchmarkCircularReferenceDetection(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 10, 10)
	inputs := map[string]string{
		"A1": "=B1+C1",
		"B1": "=C1+D1",
		"C1": "=D1+E1",
		"D1": "=E1+F1",
		"E1": "=F1+G1",
		"F1": "=G1+H1",
		"G1": "=H1+A1",
		"H1": "=A1",
	}
	for address, input := range inputs {
		_ = s.SetInputAt(address, input)
	}
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.EvaluateAddress(s, "A1")
	}
}

func BenchmarkStringConcatenation(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 100, 26)
	for row := 0; row < 100; row++ {
		_ = s.SetInput(row, 0, fmt.Sprintf("text%d", row+1))
		_ = s.SetInput(row, 1, fmt.Sprintf(`=A%d&"-suffix"`, row+1))
	}
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for range e.Values(s) {
		}
	}
}

func BenchmarkRender(b *testing.B) {
	s := NewSheet("sheet-1", "Sheet1", 100, 26)
	for row := 0; row < 100; row++ {
		_ = s.SetInput(row, 0, fmt.Sprint(row+1))
		_ = s.SetInput(row, 1, fmt.Sprintf("=IF(A%d>50, A%d*2, A%d/2)", row+1, row+1, row+1))
		_ = s.SetInput(row, 2, fmt.Sprintf("=AND(A%d>25, A%d<75)", row+1, row+1))
	}
	e := NewEvaluator(WithClock(&FixedClock{}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Render(s)
	}
}

func BenchmarkTokenize(b *testing.B) {
	body := `IF(AND(A1>=10, B$2<>"x"), SUM($A$1:C20) * -2^2, "small" & TODAY())`
	for i := 0; i < b.N; i++ {
		if _, err := NewLexer(body).Tokenize(); err != nil {
			b.Fatal(err)
		}
	}
}
