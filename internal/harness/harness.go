// Package harness runs scripted auction scenarios against a real
// engine and store, driven by a manual clock. Scenario results are
// deterministic, so golden-file comparison catches behavioral drift.
package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/SubratDash67/iplauctionbot/internal/config"
	"github.com/SubratDash67/iplauctionbot/internal/engine"
	"github.com/SubratDash67/iplauctionbot/internal/importer"
	"github.com/SubratDash67/iplauctionbot/internal/store"
)

// epoch is the fixed start instant for every scenario clock.
var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const defaultList = "auction"

// Run executes a scenario in a throwaway database under workDir and
// returns its result. The error covers harness failures (bad scenario,
// store trouble); step expectation mismatches land in Result.Errors
// with Pass=false instead.
func Run(ctx context.Context, workDir string, scenario *Scenario) (*Result, error) {
	cfg, err := config.Default()
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	st, err := store.Open(filepath.Join(workDir, scenario.Name+".db"))
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	defer st.Close()

	for _, p := range scenario.Players {
		list := p.List
		if list == "" {
			list = defaultList
		}
		price := p.BasePrice
		if price == 0 {
			price = cfg.BasePrice
		}
		_, err := st.AddPlayers(ctx, list, []store.PlayerSeed{{
			Name: p.Name, NameKey: importer.NameKey(p.Name), BasePrice: price,
		}})
		if err != nil {
			return nil, fmt.Errorf("harness: seed player %s: %w", p.Name, err)
		}
	}

	tk := engine.NewManualTimekeeper(epoch)
	eng, err := engine.New(ctx, st, cfg,
		engine.WithTimekeeper(tk),
		engine.WithIDGenerator(engine.NewSeqGenerator("ev")),
	)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	for user, team := range scenario.Users {
		if err := st.AssignUser(ctx, user, team); err != nil {
			return nil, fmt.Errorf("harness: assign %s to %s: %w", user, team, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	result := &Result{Scenario: scenario.Name, Pass: true, Trace: []TraceEvent{}}
	for i, step := range scenario.Steps {
		ev, err := applyStep(ctx, eng, st, tk, step)
		if err != nil {
			return nil, fmt.Errorf("harness: step %d: %w", i+1, err)
		}
		result.Trace = append(result.Trace, ev)

		want := step.Expect
		if want == "" {
			want = "ok"
		}
		if ev.Outcome != want {
			result.AddError(fmt.Sprintf("step %d (%s): want %s, got %s", i+1, ev.Step, want, ev.Outcome))
		}
	}

	if err := eng.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("harness: drain: %w", err)
	}
	final, err := captureFinal(ctx, eng, st)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	result.Final = final
	return result, nil
}

func applyStep(ctx context.Context, eng *engine.Engine, st *store.Store, tk *engine.ManualTimekeeper, step Step) (TraceEvent, error) {
	switch {
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return TraceEvent{}, fmt.Errorf("bad advance %q: %w", step.Advance, err)
		}
		tk.Advance(d)
		// Timer firings are queued; the barrier makes them visible.
		if err := eng.Barrier(ctx); err != nil {
			return TraceEvent{}, err
		}
		return TraceEvent{Step: "advance " + step.Advance, Outcome: "ok"}, nil

	case step.Bid != nil:
		label := "bid " + step.Bid.User
		if step.Bid.Amount > 0 {
			label = fmt.Sprintf("%s %d", label, step.Bid.Amount)
		}
		bid, err := eng.SubmitBid(ctx, step.Bid.User, step.Bid.Amount)
		if err != nil {
			return TraceEvent{Step: label, Outcome: outcome(err)}, nil
		}
		return TraceEvent{
			Step:    label,
			Outcome: "ok",
			Detail:  fmt.Sprintf("%s %d", bid.Team, bid.Amount),
		}, nil

	case step.Admin != "":
		return applyAdmin(ctx, eng, st, step)
	}
	return TraceEvent{}, fmt.Errorf("step has no action")
}

func applyAdmin(ctx context.Context, eng *engine.Engine, st *store.Store, step Step) (TraceEvent, error) {
	label := step.Admin
	var err error
	switch step.Admin {
	case "start":
		err = eng.Start(ctx)
	case "stop":
		err = eng.StopSession(ctx)
	case "pause":
		err = eng.Pause(ctx)
	case "resume":
		err = eng.Resume(ctx)
	case "sell":
		label = "sell " + step.Team
		err = eng.SellTo(ctx, step.Team)
	case "unsold":
		err = eng.MarkUnsold(ctx)
	case "skip":
		err = eng.Skip(ctx)
	case "rollback":
		err = eng.Rollback(ctx)
	case "release":
		label = "release " + step.Player
		player, ferr := st.FindPlayerByKey(ctx, importer.NameKey(step.Player))
		if ferr != nil {
			return TraceEvent{}, fmt.Errorf("release: unknown player %q", step.Player)
		}
		err = eng.Release(ctx, player.ID)
	case "set_purse":
		label = fmt.Sprintf("set_purse %s %d", step.Team, step.Amount)
		err = eng.SetPurse(ctx, step.Team, step.Amount)
	case "set_countdown":
		label = fmt.Sprintf("set_countdown %ds", step.Seconds)
		err = eng.SetCountdown(ctx, time.Duration(step.Seconds)*time.Second)
	case "clear":
		err = eng.Clear(ctx)
	case "enable_list":
		label = "enable_list " + step.List
		err = eng.SetListEnabled(ctx, step.List, true)
	case "disable_list":
		label = "disable_list " + step.List
		err = eng.SetListEnabled(ctx, step.List, false)
	default:
		return TraceEvent{}, fmt.Errorf("unknown admin verb %q", step.Admin)
	}
	if err != nil {
		return TraceEvent{Step: label, Outcome: outcome(err)}, nil
	}
	return TraceEvent{Step: label, Outcome: "ok"}, nil
}

// outcome maps an error to its trace form: the rejection code, or
// "error" for anything unstructured.
func outcome(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

func captureFinal(ctx context.Context, eng *engine.Engine, st *store.Store) (FinalState, error) {
	final := FinalState{
		Status:      string(eng.Snapshot().Status),
		Settlements: []string{},
	}

	settlements, err := st.Settlements(ctx)
	if err != nil {
		return final, err
	}
	for _, s := range settlements {
		var line string
		if s.Sold() {
			line = fmt.Sprintf("%s sold %s %d %s", s.Player, s.Team, s.Price, s.Trigger)
		} else {
			line = fmt.Sprintf("%s unsold %s", s.Player, s.Trigger)
		}
		if s.RolledBack {
			line += " rolled_back"
		}
		final.Settlements = append(final.Settlements, line)
	}

	teams, err := st.ListTeams(ctx)
	if err != nil {
		return final, err
	}
	for _, t := range teams {
		if t.Purse != t.OriginalPurse {
			final.Purses = append(final.Purses, fmt.Sprintf("%s %d", t.Code, t.Purse))
		}
	}
	return final, nil
}
