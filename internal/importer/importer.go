// Package importer loads player lists from CSV into the store.
//
// Duplicate detection runs on a normalized name key, so "MS Dhoni",
// "ms dhoni" and "MS  Dhoni" all collide. Re-importing a file is safe:
// already-known players are skipped, new ones are appended behind the
// list's existing rotation order.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/SubratDash67/iplauctionbot/internal/store"
)

// NameKey produces the canonical lookup key for a player name:
// NFC normalized, case folded, inner whitespace collapsed to single
// spaces, outer whitespace trimmed.
func NameKey(name string) string {
	normalized := norm.NFC.String(name)
	return strings.Join(strings.Fields(strings.ToLower(normalized)), " ")
}

// Report summarizes one import.
type Report struct {
	List    string `json:"list"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
}

// LoadCSV reads player rows from r and appends them to listName.
//
// The first record must be a header naming at least a "name" column;
// a "base_price" column is optional and falls back to defaultBasePrice
// when absent or empty. Column order does not matter and header
// matching is case-insensitive.
func LoadCSV(ctx context.Context, st *store.Store, listName string, r io.Reader, defaultBasePrice int64) (Report, error) {
	report := Report{List: listName}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return report, fmt.Errorf("import %s: empty file", listName)
	}
	if err != nil {
		return report, fmt.Errorf("import %s: read header: %w", listName, err)
	}

	nameCol, priceCol := -1, -1
	for i, col := range header {
		switch NameKey(col) {
		case "name":
			nameCol = i
		case "base_price", "base price":
			priceCol = i
		}
	}
	if nameCol < 0 {
		return report, fmt.Errorf("import %s: header has no name column", listName)
	}

	var seeds []store.PlayerSeed
	seen := make(map[string]bool)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return report, fmt.Errorf("import %s: line %d: %w", listName, line, err)
		}

		name := strings.TrimSpace(record[nameCol])
		key := NameKey(name)
		if key == "" {
			return report, fmt.Errorf("import %s: line %d: blank player name", listName, line)
		}
		if seen[key] {
			report.Skipped++
			continue
		}
		seen[key] = true

		price := defaultBasePrice
		if priceCol >= 0 && priceCol < len(record) {
			raw := strings.TrimSpace(record[priceCol])
			if raw != "" {
				price, err = strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return report, fmt.Errorf("import %s: line %d: bad base price %q", listName, line, raw)
				}
			}
		}
		if price <= 0 {
			return report, fmt.Errorf("import %s: line %d: base price must be positive, got %d", listName, line, price)
		}

		seeds = append(seeds, store.PlayerSeed{Name: name, NameKey: key, BasePrice: price})
	}

	if len(seeds) == 0 {
		return report, fmt.Errorf("import %s: no player rows", listName)
	}

	added, err := st.AddPlayers(ctx, listName, seeds)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", listName, err)
	}
	report.Added = added
	report.Skipped += len(seeds) - added
	return report, nil
}

// LoadGroupedCSV reads the set-grouped roster format: a header naming
// "first name", "surname", "set" and optionally "base price", with
// prices given in lakh. Each distinct set becomes its own list, in
// first-appearance order. Returns one Report per list.
func LoadGroupedCSV(ctx context.Context, st *store.Store, r io.Reader, defaultBasePrice int64) ([]Report, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("import: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("import: read header: %w", err)
	}

	firstCol, surnameCol, setCol, priceCol := -1, -1, -1, -1
	for i, col := range header {
		switch NameKey(col) {
		case "first name":
			firstCol = i
		case "surname":
			surnameCol = i
		case "set":
			setCol = i
		case "base_price", "base price":
			priceCol = i
		}
	}
	if firstCol < 0 || setCol < 0 {
		return nil, fmt.Errorf("import: header needs first name and set columns")
	}

	var order []string
	seedsBySet := make(map[string][]store.PlayerSeed)
	skippedBySet := make(map[string]int)
	seen := make(map[string]bool)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("import: line %d: %w", line, err)
		}

		name := strings.TrimSpace(record[firstCol])
		if surnameCol >= 0 && surnameCol < len(record) {
			if sur := strings.TrimSpace(record[surnameCol]); sur != "" {
				name = name + " " + sur
			}
		}
		key := NameKey(name)
		if key == "" {
			return nil, fmt.Errorf("import: line %d: blank player name", line)
		}

		set := strings.TrimSpace(record[setCol])
		if set == "" {
			return nil, fmt.Errorf("import: line %d: blank set", line)
		}
		if _, ok := seedsBySet[set]; !ok {
			order = append(order, set)
			seedsBySet[set] = nil
		}

		if seen[key] {
			skippedBySet[set]++
			continue
		}
		seen[key] = true

		price := defaultBasePrice
		if priceCol >= 0 && priceCol < len(record) {
			raw := strings.TrimSpace(record[priceCol])
			if raw != "" {
				lakh, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("import: line %d: bad base price %q", line, raw)
				}
				price = lakh * 100_000
			}
		}
		if price <= 0 {
			return nil, fmt.Errorf("import: line %d: base price must be positive, got %d", line, price)
		}

		seedsBySet[set] = append(seedsBySet[set], store.PlayerSeed{Name: name, NameKey: key, BasePrice: price})
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("import: no player rows")
	}

	reports := make([]Report, 0, len(order))
	for _, set := range order {
		report := Report{List: set, Skipped: skippedBySet[set]}
		seeds := seedsBySet[set]
		if len(seeds) > 0 {
			added, err := st.AddPlayers(ctx, set, seeds)
			if err != nil {
				return nil, fmt.Errorf("import %s: %w", set, err)
			}
			report.Added = added
			report.Skipped += len(seeds) - added
		}
		reports = append(reports, report)
	}
	return reports, nil
}
