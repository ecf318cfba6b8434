package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	require.Equal(t, 60*time.Second, cfg.IdleTimeout)
	require.Equal(t, 120*time.Second, cfg.ExtensionTimeout)
	require.Equal(t, 20*time.Second, cfg.GapTimeout)
	require.Equal(t, 15*time.Second, cfg.Cooldown)
	require.Equal(t, int64(2_000_000), cfg.BasePrice)
	require.Equal(t, int64(1_200_000_000), cfg.DefaultPurse)
	require.Len(t, cfg.Teams, 10)
	require.Equal(t, cfg.DefaultPurse, cfg.Teams["CSK"])
	require.Equal(t, ReleaseNextStart, cfg.ReleasePolicy)
	require.Empty(t, cfg.Admins)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.cue")
	src := `
timers: extensionSeconds: 30
teams: {ALPHA: 500_000_000, BETA: 500_000_000}
admins: ["u-1"]
releasePolicy: "immediate"
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.ExtensionTimeout)
	// Untouched fields keep their defaults.
	require.Equal(t, 60*time.Second, cfg.IdleTimeout)
	require.Equal(t, map[string]int64{"ALPHA": 500_000_000, "BETA": 500_000_000}, cfg.Teams)
	require.True(t, cfg.IsAdmin("u-1"))
	require.False(t, cfg.IsAdmin("u-2"))
	require.Equal(t, ReleaseImmediate, cfg.ReleasePolicy)
}

func TestLoadRejectsConstraintViolations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.cue")
	require.NoError(t, os.WriteFile(path, []byte(`timers: extensionSeconds: 3`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestIncrementLadder(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cases := []struct {
		current int64
		step    int64
	}{
		{2_000_000, 500_000},
		{9_500_000, 500_000},
		{10_000_000, 1_000_000},
		{19_000_000, 1_000_000},
		{20_000_000, 2_000_000},
		{49_000_000, 2_000_000},
		{50_000_000, 2_500_000},
		{200_000_000, 2_500_000},
	}
	for _, tc := range cases {
		require.Equal(t, tc.step, cfg.IncrementFor(tc.current), "current=%d", tc.current)
	}

	// A first bid floors at the lot's own base price, not the default.
	require.Equal(t, int64(50_000_000), cfg.MinimumBid(50_000_000, 0))
	require.Equal(t, int64(10_500_000), cfg.MinimumBid(cfg.BasePrice, 10_000_000))
}

func TestLadderValidation(t *testing.T) {
	_, err := fromRaw(&rawConfig{
		Teams:      map[string]int64{"A": 1},
		Increments: []IncrementSlab{{Below: 100, Step: 10}},
	})
	require.ErrorContains(t, err, "open-ended")

	_, err = fromRaw(&rawConfig{
		Teams: map[string]int64{"A": 1},
		Increments: []IncrementSlab{
			{Below: 100, Step: 10},
			{Below: 50, Step: 20},
			{Below: 0, Step: 30},
		},
	})
	require.ErrorContains(t, err, "ascending")
}
