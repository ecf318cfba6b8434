package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SubratDash67/iplauctionbot/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNameKey(t *testing.T) {
	require.Equal(t, "ms dhoni", NameKey("MS Dhoni"))
	require.Equal(t, "ms dhoni", NameKey("  MS   DHONI  "))
	require.Equal(t, "ms dhoni", NameKey("ms\tdhoni"))
	// Composed and decomposed accents normalize to the same key.
	require.Equal(t, NameKey("andré russell"), NameKey("andré russell"))
	require.Equal(t, "", NameKey("   "))
}

func TestLoadCSV(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	csv := strings.Join([]string{
		"name,base_price",
		"Virat Kohli,20000000",
		"Jasprit Bumrah,",
		"MS  Dhoni,15000000",
		"ms dhoni,9999",
	}, "\n")

	report, err := LoadCSV(ctx, st, "marquee", strings.NewReader(csv), 2_000_000)
	require.NoError(t, err)
	require.Equal(t, 3, report.Added)
	require.Equal(t, 1, report.Skipped)

	p, err := st.FindPlayerByKey(ctx, "jasprit bumrah")
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000), p.BasePrice)

	p, err = st.FindPlayerByKey(ctx, "ms dhoni")
	require.NoError(t, err)
	require.Equal(t, "MS  Dhoni", p.Name)
	require.Equal(t, int64(15_000_000), p.BasePrice)
}

func TestLoadCSVReimportSkipsKnownPlayers(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	first := "name\nPlayer A\nPlayer B\n"
	report, err := LoadCSV(ctx, st, "marquee", strings.NewReader(first), 2_000_000)
	require.NoError(t, err)
	require.Equal(t, 2, report.Added)

	second := "name\nPlayer B\nPlayer C\n"
	report, err = LoadCSV(ctx, st, "marquee", strings.NewReader(second), 2_000_000)
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)
	require.Equal(t, 1, report.Skipped)
}

func TestLoadCSVHeaderIsFlexible(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	csv := "Base_Price,Name\n5000000,Player A\n"
	report, err := LoadCSV(ctx, st, "marquee", strings.NewReader(csv), 2_000_000)
	require.NoError(t, err)
	require.Equal(t, 1, report.Added)

	p, err := st.FindPlayerByKey(ctx, "player a")
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), p.BasePrice)
}

func TestLoadGroupedCSV(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	csv := strings.Join([]string{
		"First Name,Surname,Set,Base Price",
		"Virat,Kohli,Marquee,200",
		"Rohit,Sharma,Marquee,",
		"Rinku,Singh,Uncapped,20",
		"virat,kohli,Uncapped,20",
	}, "\n")

	reports, err := LoadGroupedCSV(ctx, st, strings.NewReader(csv), 2_000_000)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	require.Equal(t, "Marquee", reports[0].List)
	require.Equal(t, 2, reports[0].Added)
	require.Equal(t, "Uncapped", reports[1].List)
	require.Equal(t, 1, reports[1].Added)
	require.Equal(t, 1, reports[1].Skipped)

	// Prices arrive in lakh.
	p, err := st.FindPlayerByKey(ctx, "virat kohli")
	require.NoError(t, err)
	require.Equal(t, "Virat Kohli", p.Name)
	require.Equal(t, int64(20_000_000), p.BasePrice)

	// Blank price falls back to the rupee default.
	p, err = st.FindPlayerByKey(ctx, "rohit sharma")
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000), p.BasePrice)

	lists, err := st.Lists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 2)
	require.Equal(t, "Marquee", lists[0].Name)
	require.Equal(t, "Uncapped", lists[1].Name)
}

func TestLoadGroupedCSVRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	cases := []struct {
		name string
		csv  string
	}{
		{"empty file", ""},
		{"missing set column", "First Name,Surname\nVirat,Kohli\n"},
		{"blank set", "First Name,Set\nVirat,\n"},
		{"bad price", "First Name,Set,Base Price\nVirat,Marquee,two\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadGroupedCSV(ctx, st, strings.NewReader(tc.csv), 2_000_000)
			require.Error(t, err)
		})
	}
}

func TestLoadCSVRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	cases := []struct {
		name string
		csv  string
	}{
		{"empty file", ""},
		{"no name column", "team,price\nMI,5\n"},
		{"no rows", "name\n"},
		{"blank name", "name\n   \n"},
		{"bad price", "name,base_price\nPlayer A,cheap\n"},
		{"zero price", "name,base_price\nPlayer A,0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCSV(ctx, st, "marquee", strings.NewReader(tc.csv), 2_000_000)
			require.Error(t, err)
		})
	}
}
