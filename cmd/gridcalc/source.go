package main

import (
	"context"
	"errors"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
	"github.com/vogtb/gridcalc/packages/store"
)

var errNoWorkbook = errors.New("no workbook given, use --workbook FILE or --id ID")

// load reads the workbook named by --id or --workbook
func (c *cli) load(ctx context.Context) (*spreadsheet.Workbook, error) {
	switch {
	case c.workbookID != "":
		s, err := store.Open(ctx, c.cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.Load(ctx, c.workbookID)
	case c.workbookPath != "":
		return store.ReadFile(c.workbookPath)
	}
	return nil, errNoWorkbook
}

// save writes the workbook back to where load read it from
func (c *cli) save(ctx context.Context, wb *spreadsheet.Workbook) error {
	switch {
	case c.workbookID != "":
		s, err := store.Open(ctx, c.cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Save(ctx, c.workbookID, wb)
	case c.workbookPath != "":
		return store.WriteFile(c.workbookPath, wb)
	}
	return errNoWorkbook
}

// edit loads the workbook, applies fn and saves it when fn succeeds
func (c *cli) edit(ctx context.Context, fn func(wb *spreadsheet.Workbook) error) error {
	wb, err := c.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(wb); err != nil {
		return err
	}
	return c.save(ctx, wb)
}
