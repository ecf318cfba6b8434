package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SubratDash67/iplauctionbot/internal/importer"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database  string
	BasePrice int64
	Grouped   bool
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load [list] <csv-file>",
		Short: "Import players from a CSV file",
		Long: `Import players from a CSV file into the named auction list.

The CSV must have a "name" column; a "base_price" column is optional
and falls back to the configured base price when blank. With --grouped
the file instead uses the set-grouped roster format (First Name,
Surname, Set, Base Price in lakh) and each set becomes its own list,
so no list argument is given. Players whose normalized name already
exists in the database are skipped, so re-running an import is safe.

Example:
  auctiond load marquee ./players.csv --db ./auction.db
  auctiond load ./roster.csv --grouped --db ./auction.db`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().Int64Var(&opts.BasePrice, "base-price", 0, "default base price for rows without one (overrides config)")
	cmd.Flags().BoolVar(&opts.Grouped, "grouped", false, "treat the file as a set-grouped roster")

	return cmd
}

func runLoad(opts *LoadOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var listName, csvPath string
	switch {
	case opts.Grouped && len(args) == 1:
		csvPath = args[0]
	case !opts.Grouped && len(args) == 2:
		listName, csvPath = args[0], args[1]
	case opts.Grouped:
		return NewExitError(ExitCommandError, "a grouped import takes only the CSV path")
	default:
		return NewExitError(ExitCommandError, "usage: load <list> <csv-file>")
	}

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	basePrice := cfg.BasePrice
	if opts.BasePrice > 0 {
		basePrice = opts.BasePrice
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open CSV file", err)
	}
	defer f.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Grouped {
		formatter.VerboseLog("importing grouped roster %s", csvPath)
		reports, err := importer.LoadGroupedCSV(cmd.Context(), st, f, basePrice)
		if err != nil {
			return WrapExitError(ExitCommandError, "import failed", err)
		}
		if opts.Format == "json" {
			return formatter.Success(reports)
		}
		for _, r := range reports {
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d players into %q (%d skipped).\n", r.Added, r.List, r.Skipped)
		}
		return nil
	}

	formatter.VerboseLog("importing %s into list %q", csvPath, listName)
	report, err := importer.LoadCSV(cmd.Context(), st, listName, f, basePrice)
	if err != nil {
		return WrapExitError(ExitCommandError, "import failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	return formatter.Success(fmt.Sprintf("Imported %d players into %q (%d skipped).", report.Added, report.List, report.Skipped))
}
