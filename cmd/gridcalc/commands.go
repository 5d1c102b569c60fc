package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.alis.build/alog"

	"github.com/vogtb/gridcalc/packages/server"
	"github.com/vogtb/gridcalc/packages/spreadsheet"
	"github.com/vogtb/gridcalc/packages/store"
	"github.com/vogtb/gridcalc/packages/xlsx"
)

func (c *cli) newCmd() *cobra.Command {
	var rows, columns int
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create an empty workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wb := &spreadsheet.Workbook{}
			if _, err := wb.AddSheet(spreadsheet.DefaultSheetName, orConfig(rows, c.cfg.DefaultRows), orConfig(columns, c.cfg.DefaultColumns)); err != nil {
				return err
			}
			if err := c.save(cmd.Context(), wb); err != nil {
				return err
			}
			alog.Infof(cmd.Context(), "created workbook with sheet %s", spreadsheet.DefaultSheetName)
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 0, "row count of the first sheet (default from config)")
	cmd.Flags().IntVar(&columns, "columns", 0, "column count of the first sheet (default from config)")
	return cmd
}

func (c *cli) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set ADDRESS INPUT",
		Short: "Store raw input in a cell and print its value",
		Long:  "Store raw input in a cell. input starting with = is a formula, empty input clears the cell.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value spreadsheet.Value
			err := c.edit(cmd.Context(), func(wb *spreadsheet.Workbook) error {
				sheet, err := c.sheet(wb)
				if err != nil {
					return err
				}
				if err := sheet.SetInputAt(args[0], args[1]); err != nil {
					return err
				}
				value = c.evaluator.EvaluateAddress(sheet, args[0])
				return nil
			})
			if err != nil {
				return err
			}
			c.printf("%s\n", value.Display())
			return nil
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "get ADDRESS",
		Short: "Print the value of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			sheet, err := c.sheet(wb)
			if err != nil {
				return err
			}
			input, err := sheet.GetInputAt(args[0])
			if err != nil {
				return err
			}
			if raw {
				c.printf("%s\n", input)
				return nil
			}
			c.printf("%s\n", c.evaluator.EvaluateAddress(sheet, args[0]).Display())
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored input instead of the value")
	return cmd
}

func (c *cli) evalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval FORMULA",
		Short: "Evaluate a formula against a sheet without storing it",
		Long:  "Evaluate a formula against a sheet without storing it. without a workbook, the formula runs against an empty sheet.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb := spreadsheet.NewWorkbook()
			if c.workbookID != "" || c.workbookPath != "" {
				var err error
				if wb, err = c.load(cmd.Context()); err != nil {
					return err
				}
			}
			sheet, err := c.sheet(wb)
			if err != nil {
				return err
			}

			formula := args[0]
			if !spreadsheet.IsFormula(formula) {
				formula = "=" + formula
			}
			c.printf("%s\n", c.evaluator.EvaluateFormula(sheet, formula).Display())
			return nil
		},
	}
}

func (c *cli) renderCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the evaluated grid as tab-separated values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wb, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			sheet, err := c.sheet(wb)
			if err != nil {
				return err
			}

			grid := c.evaluator.Render(sheet)
			rows, columns := sheet.RowCount, sheet.ColumnCount
			if !full {
				stats := sheet.Stats()
				rows, columns = stats.MaxRow+1, stats.MaxColumn+1
			}

			header := make([]string, 0, columns+1)
			header = append(header, "")
			for col := range columns {
				header = append(header, spreadsheet.ColumnIndexToName(col))
			}
			c.printf("%s\n", strings.Join(header, "\t"))
			for row := range rows {
				c.printf("%d\t%s\n", row+1, strings.Join(grid[row][:columns], "\t"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print every cell of the sheet, not only the used extent")
	return cmd
}

func (c *cli) sheetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "List and manage sheets",
	}

	var rows, columns int
	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Append a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd.Context(), func(wb *spreadsheet.Workbook) error {
				sheet, err := wb.AddSheet(args[0], orConfig(rows, c.cfg.DefaultRows), orConfig(columns, c.cfg.DefaultColumns))
				if err != nil {
					return err
				}
				c.printf("%s\n", sheet.ID)
				return nil
			})
		},
	}
	add.Flags().IntVar(&rows, "rows", 0, "row count (default from config)")
	add.Flags().IntVar(&columns, "columns", 0, "column count (default from config)")

	remove := &cobra.Command{
		Use:   "remove SHEET",
		Short: "Remove a sheet by id or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd.Context(), func(wb *spreadsheet.Workbook) error {
				sheet, err := wb.Lookup(args[0])
				if err != nil {
					return err
				}
				return wb.RemoveSheet(sheet.ID)
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename SHEET NAME",
		Short: "Rename a sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd.Context(), func(wb *spreadsheet.Workbook) error {
				sheet, err := wb.Lookup(args[0])
				if err != nil {
					return err
				}
				return wb.RenameSheet(sheet.ID, args[1])
			})
		},
	}

	activate := &cobra.Command{
		Use:   "activate SHEET",
		Short: "Make a sheet the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.edit(cmd.Context(), func(wb *spreadsheet.Workbook) error {
				sheet, err := wb.Lookup(args[0])
				if err != nil {
					return err
				}
				return wb.SetActive(sheet.ID)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sheets with their size and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wb, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			for _, sheet := range wb.Sheets {
				marker := " "
				if sheet.ID == wb.ActiveSheetID {
					marker = "*"
				}
				stats := sheet.Stats()
				c.printf("%s %s\t%s\t%dx%d\t%d cells\t%d formulas\n",
					marker, sheet.ID, sheet.Name, sheet.RowCount, sheet.ColumnCount, stats.Populated, stats.Formulas)
			}
			return nil
		},
	}

	cmd.AddCommand(add, remove, rename, activate, list)
	return cmd
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.xlsx",
		Short: "Replace the workbook with the content of an xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := xlsx.Import(ctx, f, xlsx.ImportOptions{Rows: c.cfg.DefaultRows, Columns: c.cfg.DefaultColumns})
			if err != nil {
				return err
			}
			if err := c.save(ctx, result.Workbook); err != nil {
				return err
			}
			alog.Infof(ctx, "imported %d sheets from %s, %d formulas kept as values",
				len(result.Workbook.Sheets), args[0], len(result.Unsupported))
			return nil
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var values bool
	cmd := &cobra.Command{
		Use:   "export FILE.xlsx",
		Short: "Write the workbook as an xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			wb, err := c.load(ctx)
			if err != nil {
				return err
			}

			mode := xlsx.ModeFormulas
			if values {
				mode = xlsx.ModeValues
			}

			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := xlsx.Export(ctx, f, wb, c.evaluator, mode); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", args[0], err)
			}
			alog.Infof(ctx, "exported %d sheets to %s", len(wb.Sheets), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&values, "values", false, "write evaluated values instead of formulas")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbooks of the database over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			gin.SetMode(gin.ReleaseMode)
			if listen == "" {
				listen = c.cfg.ListenAddress
			}

			s, err := store.Open(ctx, c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer s.Close()

			srv := server.New(s, c.evaluator, server.Options{
				DefaultRows:    c.cfg.DefaultRows,
				DefaultColumns: c.cfg.DefaultColumns,
			})
			return srv.Run(ctx, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

func orConfig(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}
