package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
)

// TeamsOptions holds flags for the teams command.
type TeamsOptions struct {
	*RootOptions
	Database string
}

// teamRow is the JSON shape for one team in the teams listing.
type teamRow struct {
	Code          string `json:"code"`
	Purse         int64  `json:"purse"`
	PurseDisplay  string `json:"purse_display"`
	OriginalPurse int64  `json:"original_purse"`
	SquadSize     int    `json:"squad_size"`
}

// NewTeamsCommand creates the teams command.
func NewTeamsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TeamsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "teams",
		Short: "Show team purses and squad sizes",
		Long: `Show every franchise with its remaining purse, original purse,
and squad size.

Example:
  auctiond teams --db ./auction.db
  auctiond teams --db ./auction.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTeams(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runTeams(opts *TeamsOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if err := st.SeedTeams(ctx, cfg.Teams); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed teams", err)
	}
	teams, err := st.ListTeams(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read teams", err)
	}

	rows := make([]teamRow, 0, len(teams))
	for _, t := range teams {
		squad, err := st.TeamSquad(ctx, t.Code)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read squad", err)
		}
		rows = append(rows, teamRow{
			Code:          t.Code,
			Purse:         t.Purse,
			PurseDisplay:  auction.FormatAmount(t.Purse),
			OriginalPurse: t.OriginalPurse,
			SquadSize:     len(squad),
		})
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(rows)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM\tPURSE\tSQUAD")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Code, r.PurseDisplay, r.SquadSize)
	}
	return tw.Flush()
}

// AssignOptions holds flags for the assign command.
type AssignOptions struct {
	*RootOptions
	Database string
	Remove   bool
}

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "assign <user> [team]",
		Short: "Bind a user to a team, or remove the binding",
		Long: `Bind a bidder's user ID to a franchise. Bids from that user
debit the bound team's purse. With --remove the binding is deleted and
the team argument is not required.

Example:
  auctiond assign u-rohit MI --db ./auction.db
  auctiond assign u-rohit --remove --db ./auction.db`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssign(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "remove the user's team binding")

	return cmd
}

func runAssign(opts *AssignOptions, args []string, cmd *cobra.Command) error {
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

	ctx := cmd.Context()
	if err := st.SeedTeams(ctx, cfg.Teams); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed teams", err)
	}
	userID := args[0]

	if opts.Remove {
		if err := st.UnassignUser(ctx, userID); err != nil {
			return WrapExitError(ExitCommandError, "failed to unassign user", err)
		}
		return formatter.Success(fmt.Sprintf("Removed binding for %s.", userID))
	}

	if len(args) != 2 {
		return NewExitError(ExitCommandError, "team argument required unless --remove is set")
	}
	team := args[1]
	if err := st.AssignUser(ctx, userID, team); err != nil {
		return WrapExitError(ExitCommandError, "failed to assign user", err)
	}
	return formatter.Success(fmt.Sprintf("Bound %s to %s.", userID, team))
}
