// Package calendar holds the shift-calendar data model and the
// deterministic base-pattern generator. Everything here is pure data:
// no I/O, no hidden state.
package calendar

import (
	"sort"
	"time"
)

// TeamSet is a set of team names. Add is idempotent, so applying the
// same override twice never produces duplicates.
type TeamSet map[string]struct{}

// NewTeamSet builds a set from the given names.
func NewTeamSet(names ...string) TeamSet {
	s := make(TeamSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s TeamSet) Add(name string)    { s[name] = struct{}{} }
func (s TeamSet) Remove(name string) { delete(s, name) }

func (s TeamSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s TeamSet) Len() int { return len(s) }

// Names returns the members in sorted order for stable output.
func (s TeamSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independently mutable copy.
func (s TeamSet) Clone() TeamSet {
	c := make(TeamSet, len(s))
	for n := range s {
		c[n] = struct{}{}
	}
	return c
}

// Equal reports whether both sets hold exactly the same names.
func (s TeamSet) Equal(other TeamSet) bool {
	if len(s) != len(other) {
		return false
	}
	for n := range s {
		if !other.Has(n) {
			return false
		}
	}
	return true
}

// Shift is a named work period with the teams assigned to it on one day.
type Shift struct {
	Name  string
	Start string // clock string like "06:00", may be empty
	End   string
	Teams TeamSet
}

// Clone returns a deep copy with an independent team set.
func (sh *Shift) Clone() *Shift {
	return &Shift{
		Name:  sh.Name,
		Start: sh.Start,
		End:   sh.End,
		Teams: sh.Teams.Clone(),
	}
}

// Day is one calendar day's shift assignments. The date is fixed at
// construction and never changes; shifts and the off-work set are the
// mutable payload the merge engine works on (always on clones).
type Day struct {
	date    time.Time
	Shifts  []*Shift
	OffWork TeamSet
}

// NewDay creates a day keyed by the given date, normalized to UTC
// midnight.
func NewDay(date time.Time, shifts []*Shift) *Day {
	return &Day{
		date:    Normalize(date),
		Shifts:  shifts,
		OffWork: NewTeamSet(),
	}
}

// Date returns the immutable date key (UTC midnight).
func (d *Day) Date() time.Time { return d.date }

// ShiftByName returns the shift with the given name, or nil.
func (d *Day) ShiftByName(name string) *Shift {
	for _, sh := range d.Shifts {
		if sh.Name == name {
			return sh
		}
	}
	return nil
}

// Clone returns a deep copy: same date, independently mutable shift
// team-sets and off-work set.
func (d *Day) Clone() *Day {
	shifts := make([]*Shift, len(d.Shifts))
	for i, sh := range d.Shifts {
		shifts[i] = sh.Clone()
	}
	return &Day{
		date:    d.date,
		Shifts:  shifts,
		OffWork: d.OffWork.Clone(),
	}
}

// Equal reports structural equality: same date, same shifts in the same
// order with equal team sets, same off-work set.
func (d *Day) Equal(other *Day) bool {
	if !d.date.Equal(other.date) || len(d.Shifts) != len(other.Shifts) {
		return false
	}
	for i, sh := range d.Shifts {
		o := other.Shifts[i]
		if sh.Name != o.Name || sh.Start != o.Start || sh.End != o.End || !sh.Teams.Equal(o.Teams) {
			return false
		}
	}
	return d.OffWork.Equal(other.OffWork)
}

// Normalize truncates a timestamp to its UTC calendar date.
func Normalize(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EpochDay returns the number of days since 1970-01-01 UTC. Negative
// before the epoch.
func EpochDay(t time.Time) int64 {
	return Normalize(t).Unix() / 86400
}
