package cli

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SubratDash67/iplauctionbot/internal/export"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Out      string

	// now allows tests to pin the report timestamp.
	now func() time.Time
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts, now: time.Now}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export auction results",
		Long: `Export the auction results: sales, unsold players, and per-team
squads with remaining purses. Rolled-back settlements are excluded.

The --format flag selects JSON or a human-readable table.

Example:
  auctiond export --db ./auction.db
  auctiond export --db ./auction.db --format json --out results.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := export.Build(cmd.Context(), st, opts.now().UTC())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build report", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}

	if opts.Format == "json" {
		if err := report.WriteJSON(w); err != nil {
			return WrapExitError(ExitFailure, "failed to write report", err)
		}
		return nil
	}
	if err := report.WriteText(w); err != nil {
		return WrapExitError(ExitFailure, "failed to write report", err)
	}
	return nil
}
