package calendar

import (
	"time"

	"github.com/agentic-research/rota/api"
)

// positionTemplate is one precomputed cycle position: the shifts to
// stamp out and the teams off work.
type positionTemplate struct {
	shifts []shiftTemplate
	off    []string
}

type shiftTemplate struct {
	name, start, end string
	teams            []string
}

// Generator maps dates to base pattern days. It is immutable after
// construction and safe for concurrent use from any goroutine.
type Generator struct {
	refDay int64 // epoch day of the reference date
	cycle  int64
	table  []positionTemplate // indexed by cycle position
}

// NewGenerator validates the configuration and precomputes the
// per-position assignment table.
func NewGenerator(cfg *api.Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Validate guarantees this parses.
	ref, _ := time.Parse(api.DateLayout, cfg.ReferenceDate)

	g := &Generator{
		refDay: EpochDay(ref),
		cycle:  int64(cfg.CycleLength),
		table:  make([]positionTemplate, cfg.CycleLength),
	}
	for _, p := range cfg.Positions {
		tmpl := positionTemplate{off: append([]string(nil), p.Off...)}
		for _, s := range cfg.Shifts {
			st := shiftTemplate{name: s.Name, start: s.Start, end: s.End}
			for _, a := range p.Assign {
				if a.Shift == s.Name {
					st.teams = append(st.teams, a.Teams...)
				}
			}
			tmpl.shifts = append(tmpl.shifts, st)
		}
		g.table[p.Index] = tmpl
	}
	return g, nil
}

// Position returns the cycle position of a date.
func (g *Generator) Position(date time.Time) int {
	return int(floorMod(EpochDay(date)-g.refDay, g.cycle))
}

// Generate produces a fresh base Day for the given date. Same date,
// same output, structurally equal every time; callers own the result.
func (g *Generator) Generate(date time.Time) *Day {
	tmpl := g.table[g.Position(date)]

	shifts := make([]*Shift, len(tmpl.shifts))
	for i, st := range tmpl.shifts {
		shifts[i] = &Shift{
			Name:  st.name,
			Start: st.start,
			End:   st.end,
			Teams: NewTeamSet(st.teams...),
		}
	}
	day := NewDay(date, shifts)
	for _, t := range tmpl.off {
		day.OffWork.Add(t)
	}
	return day
}

// GenerateMonth produces the base days of a month in date order.
func (g *Generator) GenerateMonth(key MonthKey) []*Day {
	first := key.Time()
	days := make([]*Day, key.Days())
	for i := range days {
		days[i] = g.Generate(first.AddDate(0, 0, i))
	}
	return days
}

// floorMod is the non-negative remainder, correct for dates before the
// reference date.
func floorMod(a, n int64) int64 {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
