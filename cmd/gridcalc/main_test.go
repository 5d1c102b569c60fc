package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/gridcalc/packages/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "gridcalc %s", strings.Join(args, " "))
	return out
}

func TestWorkbookFileCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")

	mustRun(t, "new", "-w", path, "--rows", "5", "--columns", "3")
	assert.Equal(t, "5\n", mustRun(t, "set", "-w", path, "A1", "5"))
	assert.Equal(t, "10\n", mustRun(t, "set", "-w", path, "b1", "=A1*2"))
	assert.Equal(t, "#CYCLE!\n", mustRun(t, "set", "-w", path, "C2", "=C2+1"))

	assert.Equal(t, "10\n", mustRun(t, "get", "-w", path, "B1"))
	assert.Equal(t, "=A1*2\n", mustRun(t, "get", "-w", path, "--raw", "B1"))
	assert.Equal(t, "15\n", mustRun(t, "eval", "-w", path, "SUM(A1:B1)"))
	assert.Equal(t, "\tA\tB\tC\n1\t5\t10\t\n2\t\t\t#CYCLE!\n", mustRun(t, "render", "-w", path))

	assert.Equal(t, "\n", mustRun(t, "set", "-w", path, "C2", ""))
	wb, err := store.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, wb.ActiveSheet().PopulatedCount())
	assert.Equal(t, 5, wb.ActiveSheet().RowCount)

	_, err = run(t, "set", "-w", path, "D1", "1")
	assert.Error(t, err, "D1 is outside a three-column sheet")
}

func TestSheetCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	mustRun(t, "new", "-w", path)

	assert.Equal(t, "sheet-2\n", mustRun(t, "sheet", "add", "-w", path, "Data", "--rows", "4"))
	mustRun(t, "set", "-w", path, "-s", "data", "A1", "=1+1")
	mustRun(t, "sheet", "activate", "-w", path, "Data")
	mustRun(t, "sheet", "rename", "-w", path, "sheet-1", "Inputs")

	out := mustRun(t, "sheet", "list", "-w", path)
	assert.Equal(t, "  sheet-1\tInputs\t100x26\t0 cells\t0 formulas\n* sheet-2\tData\t4x26\t1 cells\t1 formulas\n", out)

	assert.Equal(t, "2\n", mustRun(t, "get", "-w", path, "A1"))

	mustRun(t, "sheet", "remove", "-w", path, "Inputs")
	_, err := run(t, "sheet", "remove", "-w", path, "Data")
	assert.Error(t, err, "the last sheet cannot be removed")
}

func TestEvalWithoutWorkbook(t *testing.T) {
	assert.Equal(t, "3\n", mustRun(t, "eval", "1+2"))
	assert.Equal(t, "#ERROR!\n", mustRun(t, "eval", "=NOPE()"))
}

func TestMissingWorkbook(t *testing.T) {
	_, err := run(t, "get", "A1")
	assert.ErrorIs(t, err, errNoWorkbook)
}

func TestDatabaseCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "gridcalc.db")

	mustRun(t, "new", "--db", db, "--id", "budget")
	mustRun(t, "set", "--db", db, "--id", "budget", "A1", "40")
	assert.Equal(t, "42\n", mustRun(t, "set", "--db", db, "--id", "budget", "A2", "=A1+2"))

	_, err := run(t, "get", "--db", db, "--id", "other", "A1")
	assert.ErrorIs(t, err, store.ErrWorkbookNotFound)
}

func TestXlsxCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.json")
	xlsxPath := filepath.Join(dir, "book.xlsx")
	copyPath := filepath.Join(dir, "copy.json")

	mustRun(t, "new", "-w", path)
	mustRun(t, "set", "-w", path, "A1", "3")
	mustRun(t, "set", "-w", path, "B1", "=A1^2")
	mustRun(t, "set", "-w", path, "C1", "done")

	mustRun(t, "export", "-w", path, xlsxPath)
	mustRun(t, "import", "-w", copyPath, xlsxPath)

	assert.Equal(t, "=A1^2\n", mustRun(t, "get", "-w", copyPath, "--raw", "B1"))
	assert.Equal(t, "9\n", mustRun(t, "get", "-w", copyPath, "B1"))
}
