package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted auction run loaded from YAML. Scenarios drive
// the engine through a manual clock, so a step like "advance: 60s"
// deterministically fires whatever timers fall due.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are keyed
	// on it.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Players seeds the rotation in order before the first step.
	Players []PlayerSpec `yaml:"players"`

	// Users maps user IDs to the team they bid for.
	Users map[string]string `yaml:"users,omitempty"`

	// Steps runs in order. Each step is exactly one of advance, bid, or
	// admin.
	Steps []Step `yaml:"steps"`
}

// PlayerSpec seeds one player.
type PlayerSpec struct {
	Name      string `yaml:"name"`
	BasePrice int64  `yaml:"base_price,omitempty"`
	List      string `yaml:"list,omitempty"`
}

// BidStep is a bid submission. A zero amount is a minimum raise.
type BidStep struct {
	User   string `yaml:"user"`
	Amount int64  `yaml:"amount,omitempty"`
}

// Step is one scripted action.
type Step struct {
	// Advance moves the manual clock, e.g. "60s" or "2m".
	Advance string `yaml:"advance,omitempty"`

	// Bid submits a bid.
	Bid *BidStep `yaml:"bid,omitempty"`

	// Admin names an admin command: start, stop, pause, resume, sell,
	// unsold, skip, rollback, release, set_purse, set_countdown, clear,
	// enable_list, disable_list.
	Admin string `yaml:"admin,omitempty"`

	// Command arguments, used per admin verb.
	Team    string `yaml:"team,omitempty"`
	Player  string `yaml:"player,omitempty"`
	List    string `yaml:"list,omitempty"`
	Amount  int64  `yaml:"amount,omitempty"`
	Seconds int64  `yaml:"seconds,omitempty"`

	// Expect is the rejection code this step must produce; empty means
	// the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// Load parses one scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if len(s.Players) == 0 {
		return nil, fmt.Errorf("scenario %s: no players", path)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: no steps", path)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario under dir, sorted by filename.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := Load(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
