package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// ListsOptions holds flags for the lists command family.
type ListsOptions struct {
	*RootOptions
	Database string
}

// listRow is the JSON shape for one list in the lists output.
type listRow struct {
	Name     string `json:"name"`
	Position int64  `json:"position"`
	Enabled  bool   `json:"enabled"`
}

// NewListsCommand creates the lists command and its enable/disable
// subcommands.
func NewListsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show auction lists and toggle them",
		Long: `Show every auction list with its rotation position and whether it
is enabled. Disabled lists are skipped when the next lot is announced.

Example:
  auctiond lists --db ./auction.db
  auctiond lists enable marquee --db ./auction.db
  auctiond lists disable uncapped --db ./auction.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLists(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(newListsToggleCommand(opts, "enable", true))
	cmd.AddCommand(newListsToggleCommand(opts, "disable", false))

	return cmd
}

func newListsToggleCommand(opts *ListsOptions, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <list>",
		Short:         verb + " a list in the rotation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListsToggle(opts, args[0], enabled, cmd)
		},
	}
}

func runLists(opts *ListsOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	lists, err := st.Lists(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read lists", err)
	}

	rows := make([]listRow, 0, len(lists))
	for _, l := range lists {
		rows = append(rows, listRow{Name: l.Name, Position: l.Position, Enabled: l.Enabled})
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No lists loaded.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LIST\tPOSITION\tENABLED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%t\n", r.Name, r.Position, r.Enabled)
	}
	return tw.Flush()
}

func runListsToggle(opts *ListsOptions, name string, enabled bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetListEnabled(cmd.Context(), name, enabled); err != nil {
		return WrapExitError(ExitCommandError, "failed to update list", err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return formatter.Success(fmt.Sprintf("List %q %s.", name, state))
}
