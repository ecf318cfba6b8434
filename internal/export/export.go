// Package export renders auction results for distribution after a
// session: the sale ledger, unsold players, and per-team squad sheets
// with purse accounting.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/auction"
	"github.com/SubratDash67/iplauctionbot/internal/store"
)

// SaleRow is one concluded sale. Rolled-back settlements are excluded;
// only the standing outcome appears.
type SaleRow struct {
	Player       string    `json:"player"`
	Team         string    `json:"team"`
	Price        int64     `json:"price"`
	PriceDisplay string    `json:"price_display"`
	Trigger      string    `json:"trigger"`
	SettledAt    time.Time `json:"settled_at"`
}

// UnsoldRow is one player who went on the block and found no buyer.
type UnsoldRow struct {
	Player    string    `json:"player"`
	SettledAt time.Time `json:"settled_at"`
}

// SquadRow is one player on a team sheet.
type SquadRow struct {
	Player       string `json:"player"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"price_display"`
}

// TeamReport is one team's final sheet.
type TeamReport struct {
	Code      string     `json:"code"`
	Purse     int64      `json:"purse"`
	Spent     int64      `json:"spent"`
	SquadSize int        `json:"squad_size"`
	Squad     []SquadRow `json:"squad"`
}

// Report is the complete results document.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Sales       []SaleRow    `json:"sales"`
	Unsold      []UnsoldRow  `json:"unsold"`
	Teams       []TeamReport `json:"teams"`
}

// Build assembles a report from the store. The generation timestamp is
// passed in rather than read from the wall clock.
func Build(ctx context.Context, st *store.Store, generatedAt time.Time) (*Report, error) {
	report := &Report{
		GeneratedAt: generatedAt.UTC(),
		Sales:       []SaleRow{},
		Unsold:      []UnsoldRow{},
		Teams:       []TeamReport{},
	}

	settlements, err := st.Settlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	for _, s := range settlements {
		if s.RolledBack {
			continue
		}
		if s.Sold() {
			report.Sales = append(report.Sales, SaleRow{
				Player:       s.Player,
				Team:         s.Team,
				Price:        s.Price,
				PriceDisplay: auction.FormatAmount(s.Price),
				Trigger:      string(s.Trigger),
				SettledAt:    s.SettledAt.UTC(),
			})
		} else {
			report.Unsold = append(report.Unsold, UnsoldRow{
				Player:    s.Player,
				SettledAt: s.SettledAt.UTC(),
			})
		}
	}

	teams, err := st.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	for _, team := range teams {
		entries, err := st.TeamSquad(ctx, team.Code)
		if err != nil {
			return nil, fmt.Errorf("build report: squad %s: %w", team.Code, err)
		}
		tr := TeamReport{
			Code:      team.Code,
			Purse:     team.Purse,
			SquadSize: len(entries),
			Squad:     []SquadRow{},
		}
		for _, e := range entries {
			tr.Spent += e.Price
			tr.Squad = append(tr.Squad, SquadRow{
				Player:       e.Player.Name,
				Price:        e.Price,
				PriceDisplay: auction.FormatAmount(e.Price),
			})
		}
		report.Teams = append(report.Teams, tr)
	}

	return report, nil
}

// WriteJSON emits the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteText emits the report as aligned plain text.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "PLAYER\tTEAM\tPRICE\tTRIGGER\tTIME")
	for _, s := range r.Sales {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.Player, s.Team, s.PriceDisplay, s.Trigger,
			s.SettledAt.Format(time.RFC3339))
	}
	for _, u := range r.Unsold {
		fmt.Fprintf(tw, "%s\t-\tunsold\t\t%s\n",
			u.Player, u.SettledAt.Format(time.RFC3339))
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TEAM\tSQUAD\tSPENT\tPURSE LEFT")
	for _, t := range r.Teams {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			t.Code, t.SquadSize,
			auction.FormatAmount(t.Spent), auction.FormatAmount(t.Purse))
	}

	return tw.Flush()
}
