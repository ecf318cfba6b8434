// Package config loads auction daemon configuration from a CUE file
// unified against the embedded schema, so partial files inherit defaults
// and malformed files fail with a precise constraint error.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// ReleasePolicy controls when a released player becomes biddable again.
type ReleasePolicy string

const (
	// ReleaseNextStart parks released players on a disabled list until an
	// admin re-enables it.
	ReleaseNextStart ReleasePolicy = "nextStart"
	// ReleaseImmediate returns released players straight to the rotation.
	ReleaseImmediate ReleasePolicy = "immediate"
)

// IncrementSlab is one rung of the bid increment ladder. Below is an
// exclusive upper bound on the current bid; a zero Below marks the
// open-ended top slab.
type IncrementSlab struct {
	Below int64 `json:"below"`
	Step  int64 `json:"step"`
}

// Config is the fully resolved daemon configuration.
type Config struct {
	DBPath     string
	ListenAddr string

	IdleTimeout      time.Duration
	ExtensionTimeout time.Duration
	GapTimeout       time.Duration
	Cooldown         time.Duration

	BasePrice    int64
	DefaultPurse int64

	Teams      map[string]int64
	Increments []IncrementSlab
	Admins     []string

	ReleasePolicy ReleasePolicy
}

// rawConfig mirrors the CUE schema shape for decoding.
type rawConfig struct {
	DBPath     string `json:"dbPath"`
	ListenAddr string `json:"listenAddr"`
	Timers     struct {
		IdleSeconds      int64 `json:"idleSeconds"`
		ExtensionSeconds int64 `json:"extensionSeconds"`
		GapSeconds       int64 `json:"gapSeconds"`
		CooldownSeconds  int64 `json:"cooldownSeconds"`
	} `json:"timers"`
	BasePrice     int64            `json:"basePrice"`
	DefaultPurse  int64            `json:"defaultPurse"`
	Teams         map[string]int64 `json:"teams"`
	Increments    []IncrementSlab  `json:"increments"`
	Admins        []string         `json:"admins"`
	ReleasePolicy string           `json:"releasePolicy"`
}

// Default returns the configuration produced by the schema defaults alone.
func Default() (*Config, error) {
	return load(nil)
}

// Load reads path and unifies it with the embedded schema. An empty path
// is equivalent to Default.
func Load(path string) (*Config, error) {
	if path == "" {
		return load(nil)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := load(src)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func load(userSource []byte) (*Config, error) {
	cctx := cuecontext.New()

	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}

	merged := schema
	if len(userSource) > 0 {
		user := cctx.CompileBytes(userSource, cue.Filename("config.cue"))
		if err := user.Err(); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		merged = schema.Unify(user)
	}
	if err := merged.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var raw rawConfig
	if err := merged.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return fromRaw(&raw)
}

func fromRaw(raw *rawConfig) (*Config, error) {
	if len(raw.Teams) == 0 {
		return nil, fmt.Errorf("at least one team is required")
	}
	if len(raw.Increments) == 0 {
		return nil, fmt.Errorf("increment ladder must not be empty")
	}
	last := raw.Increments[len(raw.Increments)-1]
	if last.Below != 0 {
		return nil, fmt.Errorf("increment ladder must end with an open-ended slab (below: 0)")
	}
	prev := int64(0)
	for _, slab := range raw.Increments[:len(raw.Increments)-1] {
		if slab.Below <= prev {
			return nil, fmt.Errorf("increment slab bounds must be strictly ascending")
		}
		prev = slab.Below
	}

	cfg := &Config{
		DBPath:           raw.DBPath,
		ListenAddr:       raw.ListenAddr,
		IdleTimeout:      time.Duration(raw.Timers.IdleSeconds) * time.Second,
		ExtensionTimeout: time.Duration(raw.Timers.ExtensionSeconds) * time.Second,
		GapTimeout:       time.Duration(raw.Timers.GapSeconds) * time.Second,
		Cooldown:         time.Duration(raw.Timers.CooldownSeconds) * time.Second,
		BasePrice:        raw.BasePrice,
		DefaultPurse:     raw.DefaultPurse,
		Teams:            raw.Teams,
		Increments:       raw.Increments,
		Admins:           raw.Admins,
		ReleasePolicy:    ReleasePolicy(raw.ReleasePolicy),
	}
	return cfg, nil
}

// IncrementFor returns the minimum raise above the given current bid.
func (c *Config) IncrementFor(current int64) int64 {
	for _, slab := range c.Increments {
		if slab.Below == 0 || current < slab.Below {
			return slab.Step
		}
	}
	// Unreachable: fromRaw guarantees an open-ended final slab.
	return c.Increments[len(c.Increments)-1].Step
}

// MinimumBid returns the lowest acceptable amount given the lot's base
// price and the current high bid, or the base price itself when no bid
// has been placed yet. The caller passes the player's own base price;
// c.BasePrice is only the default assigned at import time.
func (c *Config) MinimumBid(basePrice, currentHigh int64) int64 {
	if currentHigh == 0 {
		return basePrice
	}
	return currentHigh + c.IncrementFor(currentHigh)
}

// IsAdmin reports whether the user ID appears in the admin list.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
