package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent bids from the ledger",
		Long: `Show the most recent accepted bids, newest first.

Example:
  auctiond history --db ./auction.db
  auctiond history --db ./auction.db --limit 50 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of bids to show")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	bids, err := st.RecentBids(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read bids", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(bids)
	}

	if len(bids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No bids recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tPLAYER\tTEAM\tAMOUNT\tPLACED")
	for _, b := range bids {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			b.Seq, b.Player, b.Team, auction.FormatAmount(b.Amount),
			b.PlacedAt.UTC().Format("15:04:05"))
	}
	return tw.Flush()
}
