// Command gridcalc edits and evaluates workbooks from the command line and
// serves them over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.alis.build/alog"

	"github.com/vogtb/gridcalc/packages/config"
	"github.com/vogtb/gridcalc/packages/spreadsheet"
)

// cli holds the persistent flags and the state every subcommand shares
type cli struct {
	configPath   string
	workbookPath string
	databasePath string
	workbookID   string
	sheetName    string

	cfg       config.Config
	evaluator *spreadsheet.Evaluator
	out       io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		alog.Errorf(ctx, "%v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	rootCmd := &cobra.Command{
		Use:   "gridcalc",
		Short: "Evaluate spreadsheet formulas over sparse workbooks",
		Long: `gridcalc stores workbooks as JSON files or in a bbolt database, evaluates
their formulas on demand and converts them to and from xlsx.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file")
	flags.StringVarP(&c.workbookPath, "workbook", "w", "", "workbook JSON file")
	flags.StringVar(&c.databasePath, "db", "", "bbolt database path (default from config)")
	flags.StringVar(&c.workbookID, "id", "", "workbook id in the database, used instead of --workbook")
	flags.StringVarP(&c.sheetName, "sheet", "s", "", "sheet id or name (default: active sheet)")

	rootCmd.AddCommand(
		c.newCmd(),
		c.setCmd(),
		c.getCmd(),
		c.evalCmd(),
		c.renderCmd(),
		c.sheetCmd(),
		c.importCmd(),
		c.exportCmd(),
		c.serveCmd(),
	)
	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.databasePath != "" {
		cfg.DatabasePath = c.databasePath
	}
	cfg.ApplyLogging()

	c.cfg = cfg
	c.evaluator = spreadsheet.NewEvaluator()
	alog.Debugf(cmd.Context(), "config: %+v", cfg)
	return nil
}

// sheet resolves --sheet against wb
func (c *cli) sheet(wb *spreadsheet.Workbook) (*spreadsheet.Sheet, error) {
	if c.sheetName == "" {
		if sheet := wb.ActiveSheet(); sheet != nil {
			return sheet, nil
		}
		return nil, spreadsheet.NewApplicationError(spreadsheet.FailedPrecondition, "workbook has no sheets")
	}
	return wb.Lookup(c.sheetName)
}

func (c *cli) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
