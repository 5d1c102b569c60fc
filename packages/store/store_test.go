package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

func sampleWorkbook(t *testing.T) *spreadsheet.Workbook {
	t.Helper()
	wb := spreadsheet.NewWorkbook()
	sheet := wb.ActiveSheet()
	require.NoError(t, sheet.SetInputAt("A1", "5"))
	require.NoError(t, sheet.SetInputAt("B1", "=A1*2"))
	require.NoError(t, sheet.SetInputAt("C3", `="a\"b" & "ü"`))

	data, err := wb.AddSheet("Data", 10, 4)
	require.NoError(t, err)
	require.NoError(t, data.SetInputAt("D10", "#REF!"))
	require.NoError(t, wb.Select(2, 2))
	return wb
}

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "gridcalc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	wb := sampleWorkbook(t)

	data, err := Encode(wb)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, wb, decoded)

	again, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again), "encoding is deterministic")
}

func TestDecodePersistedShape(t *testing.T) {
	data := []byte(`{
		"sheets": [
			{"id": "sheet-1", "name": "Sheet1", "rowCount": 3, "columnCount": 2,
			 "cells": {"0:0": {"input": "1"}, "2:1": {"input": "=A1+1"}}},
			{"id": "sheet-7", "name": "Empty", "rowCount": 1, "columnCount": 1}
		],
		"activeSheetId": "sheet-1",
		"selection": {"row": 2, "column": 1}
	}`)

	wb, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, "=A1+1", wb.Sheets[0].GetInput(2, 1))
	assert.NotNil(t, wb.Sheets[1].Cells)
	assert.Equal(t, spreadsheet.Selection{Row: 2, Column: 1}, wb.Selection)

	value := spreadsheet.NewEvaluator().EvaluateCell(wb.Sheets[0], 2, 1)
	assert.Equal(t, "2", value.Display())
}

func TestDecodeRejectsInvalidWorkbooks(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `{"sheets": [`,
		"no sheets":      `{"sheets": [], "activeSheetId": ""}`,
		"unknown active": `{"sheets": [{"id": "sheet-1", "name": "A", "rowCount": 1, "columnCount": 1}], "activeSheetId": "sheet-2"}`,
		"cell outside":   `{"sheets": [{"id": "sheet-1", "name": "A", "rowCount": 1, "columnCount": 1, "cells": {"5:5": {"input": "x"}}}], "activeSheetId": "sheet-1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	wb := sampleWorkbook(t)

	require.NoError(t, WriteFile(path, wb))
	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wb, loaded)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBoltStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	wb := sampleWorkbook(t)

	_, err := s.Load(ctx, "budget")
	assert.ErrorIs(t, err, ErrWorkbookNotFound)

	require.NoError(t, s.Save(ctx, "budget", wb))
	require.NoError(t, s.Save(ctx, "archive", spreadsheet.NewWorkbook()))

	loaded, err := s.Load(ctx, "budget")
	require.NoError(t, err)
	assert.Equal(t, wb, loaded)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "budget"}, ids)

	require.NoError(t, s.Delete(ctx, "archive"))
	assert.ErrorIs(t, s.Delete(ctx, "archive"), ErrWorkbookNotFound)

	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"budget"}, ids)

	assert.ErrorIs(t, s.Save(ctx, "", wb), ErrInvalidID)
}

func TestBoltStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gridcalc.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "budget", sampleWorkbook(t)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.Load(ctx, "budget")
	require.NoError(t, err)
	assert.Equal(t, "Data", loaded.Sheets[1].Name)
	assert.Equal(t, "#REF!", loaded.Sheets[1].GetInput(9, 3))
}

func TestBoltStoreHonoursCancelledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, "budget", sampleWorkbook(t)), context.Canceled)
	_, err := s.Load(ctx, "budget")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSaveRejectsInvalidWorkbook(t *testing.T) {
	s := openStore(t)
	err := s.Save(context.Background(), "broken", &spreadsheet.Workbook{})
	assert.Equal(t, spreadsheet.InvalidArgument, spreadsheet.CodeOf(err))
}
