// Package api defines the pattern-configuration schema shared by the
// generator, the CLI and any embedding application. The configuration
// maps each position of a rotation cycle to shift/team assignments.
package api

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"go.uber.org/zap"
)

// ErrInvalidConfig marks a pattern configuration rejected at load time.
// Generation never fails per-date; all config problems surface here.
var ErrInvalidConfig = errors.New("invalid pattern configuration")

// DateLayout is the wire format for dates in configuration files.
const DateLayout = "2006-01-02"

// Config is the root of a rotation-pattern configuration.
//
// The cycle position of a date is (epochDay - epochDay(reference_date))
// mod cycle_length, and the matching position block supplies that day's
// shift/team assignments.
type Config struct {
	// ReferenceDate anchors cycle position 0, formatted as DateLayout.
	ReferenceDate string `hcl:"reference_date"`
	// CycleLength is the rotation period in days. Must be positive.
	CycleLength int        `hcl:"cycle_length"`
	Teams       []Team     `hcl:"team,block"`
	Shifts      []ShiftDef `hcl:"shift,block"`
	Positions   []Position `hcl:"position,block"`
}

// Team declares a rotation group. Identity is the name, nothing else.
type Team struct {
	Name string `hcl:"name,label"`
}

// ShiftDef declares a named work period, e.g. Morning 06:00-14:00.
type ShiftDef struct {
	Name  string `hcl:"name,label"`
	Start string `hcl:"start,optional"`
	End   string `hcl:"end,optional"`
}

// Position maps one cycle position to its assignments.
type Position struct {
	// Index in [0, cycle_length).
	Index  int          `hcl:"index"`
	Assign []Assignment `hcl:"assign,block"`
	// Off lists teams with no shift at this position.
	Off []string `hcl:"off,optional"`
}

// Assignment places teams into one shift at a given cycle position.
type Assignment struct {
	Shift string   `hcl:"shift,label"`
	Teams []string `hcl:"teams"`
}

// Load reads and validates an HCL configuration file through the given
// filesystem. Tests pass a memfs; the CLI passes osfs.
func Load(fsys billy.Filesystem, path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // safe to ignore

	src, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := hclsimple.Decode(filepath.Base(path), src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("pattern configuration loaded",
		zap.String("path", path),
		zap.Int("cycle_length", cfg.CycleLength),
		zap.Int("teams", len(cfg.Teams)),
		zap.Int("shifts", len(cfg.Shifts)))
	return &cfg, nil
}

// Validate checks structural consistency. Any failure here is fatal for
// the whole configuration; the generator refuses to start on it.
func (c *Config) Validate() error {
	if c.CycleLength <= 0 {
		return fmt.Errorf("%w: cycle_length must be positive, got %d", ErrInvalidConfig, c.CycleLength)
	}
	if _, err := time.Parse(DateLayout, c.ReferenceDate); err != nil {
		return fmt.Errorf("%w: reference_date %q: %v", ErrInvalidConfig, c.ReferenceDate, err)
	}
	if len(c.Shifts) == 0 {
		return fmt.Errorf("%w: at least one shift must be declared", ErrInvalidConfig)
	}

	teams := make(map[string]bool, len(c.Teams))
	for _, t := range c.Teams {
		if t.Name == "" {
			return fmt.Errorf("%w: team with empty name", ErrInvalidConfig)
		}
		if teams[t.Name] {
			return fmt.Errorf("%w: duplicate team %q", ErrInvalidConfig, t.Name)
		}
		teams[t.Name] = true
	}

	shifts := make(map[string]bool, len(c.Shifts))
	for _, s := range c.Shifts {
		if s.Name == "" {
			return fmt.Errorf("%w: shift with empty name", ErrInvalidConfig)
		}
		if shifts[s.Name] {
			return fmt.Errorf("%w: duplicate shift %q", ErrInvalidConfig, s.Name)
		}
		shifts[s.Name] = true
	}

	seen := make(map[int]bool, len(c.Positions))
	for _, p := range c.Positions {
		if p.Index < 0 || p.Index >= c.CycleLength {
			return fmt.Errorf("%w: position index %d outside cycle of length %d", ErrInvalidConfig, p.Index, c.CycleLength)
		}
		if seen[p.Index] {
			return fmt.Errorf("%w: duplicate position index %d", ErrInvalidConfig, p.Index)
		}
		seen[p.Index] = true

		for _, a := range p.Assign {
			if !shifts[a.Shift] {
				return fmt.Errorf("%w: position %d assigns undeclared shift %q", ErrInvalidConfig, p.Index, a.Shift)
			}
			for _, tm := range a.Teams {
				if !teams[tm] {
					return fmt.Errorf("%w: position %d assigns undeclared team %q to shift %q", ErrInvalidConfig, p.Index, tm, a.Shift)
				}
			}
		}
		for _, tm := range p.Off {
			if !teams[tm] {
				return fmt.Errorf("%w: position %d marks undeclared team %q off", ErrInvalidConfig, p.Index, tm)
			}
		}
	}
	if len(seen) != c.CycleLength {
		return fmt.Errorf("%w: %d of %d cycle positions defined", ErrInvalidConfig, len(seen), c.CycleLength)
	}
	return nil
}

// Default returns a built-in four-team continental rotation so the CLI
// works with zero setup: each day one team per shift, one team off,
// rotating by one position per day.
func Default() *Config {
	teams := []string{"A", "B", "C", "D"}
	cfg := &Config{
		ReferenceDate: "2019-01-01",
		CycleLength:   len(teams),
		Shifts: []ShiftDef{
			{Name: "Morning", Start: "06:00", End: "14:00"},
			{Name: "Afternoon", Start: "14:00", End: "22:00"},
			{Name: "Night", Start: "22:00", End: "06:00"},
		},
	}
	for _, t := range teams {
		cfg.Teams = append(cfg.Teams, Team{Name: t})
	}
	for i := range teams {
		cfg.Positions = append(cfg.Positions, Position{
			Index: i,
			Assign: []Assignment{
				{Shift: "Morning", Teams: []string{teams[i]}},
				{Shift: "Afternoon", Teams: []string{teams[(i+1)%len(teams)]}},
				{Shift: "Night", Teams: []string{teams[(i+2)%len(teams)]}},
			},
			Off: []string{teams[(i+3)%len(teams)]},
		})
	}
	return cfg
}
