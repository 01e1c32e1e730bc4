// Package merge implements the exception-merge engine: it overlays
// sparse per-user exception records onto base pattern days. The engine
// is pure with respect to its inputs; every returned day is a clone.
package merge

import (
	"errors"
	"fmt"
	"time"

	"github.com/agentic-research/rota/internal/calendar"
	"go.uber.org/zap"
)

// ErrDateMismatch is returned when an exception is validated against a
// day with a different date. That is a caller error and is never
// silently coerced.
var ErrDateMismatch = errors.New("exception date does not match day")

// Engine applies exception override semantics to base days.
type Engine struct {
	log *zap.Logger
}

// NewEngine returns an engine logging through the given logger.
// A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{log: logger}
}

// Merge overlays exceptions onto base days for one team and returns a
// new day list. Inputs are never mutated. Complexity is O(D+E): the
// exception map is built once, then each day is visited once.
func (e *Engine) Merge(base []*calendar.Day, exceptions []calendar.Exception, team string) []*calendar.Day {
	byDate := e.indexByDate(exceptions)

	out := make([]*calendar.Day, len(base))
	for i, day := range base {
		merged := day.Clone()
		if exc, ok := byDate[merged.Date()]; ok {
			if err := e.ValidateException(merged, exc, team); err != nil {
				e.log.Warn("skipping invalid exception",
					zap.String("exception_id", exc.ID.String()),
					zap.Time("day", merged.Date()),
					zap.Error(err))
			} else if exc.Active {
				e.apply(merged, exc, team)
			}
		}
		out[i] = merged
	}
	return out
}

// indexByDate builds the date→exception map for one merge pass. At most
// one exception survives per date; a later record for the same date
// replaces the earlier one with a warning.
func (e *Engine) indexByDate(exceptions []calendar.Exception) map[time.Time]calendar.Exception {
	byDate := make(map[time.Time]calendar.Exception, len(exceptions))
	for _, exc := range exceptions {
		date := calendar.Normalize(exc.Date)
		if prev, ok := byDate[date]; ok {
			e.log.Warn("multiple exceptions on one date, keeping the latest",
				zap.Time("date", date),
				zap.String("dropped", prev.ID.String()),
				zap.String("kept", exc.ID.String()))
		}
		byDate[date] = exc
	}
	return byDate
}

// ValidateException checks that the exception belongs on the given day.
func (e *Engine) ValidateException(day *calendar.Day, exc calendar.Exception, team string) error {
	if team == "" {
		return fmt.Errorf("empty team name")
	}
	if !calendar.Normalize(exc.Date).Equal(day.Date()) {
		return fmt.Errorf("%w: exception %s, day %s",
			ErrDateMismatch,
			calendar.Normalize(exc.Date).Format("2006-01-02"),
			day.Date().Format("2006-01-02"))
	}
	return nil
}

// apply dispatches on exception type. day is already a clone owned by
// the engine; mutation here is safe.
func (e *Engine) apply(day *calendar.Day, exc calendar.Exception, team string) {
	switch {
	case exc.Type.IsAbsence():
		e.applyAbsence(day, team)

	case exc.Type.IsReassignment():
		// Blank replacement degrades to a plain absence.
		if exc.ReplacementShift == "" {
			e.applyAbsence(day, team)
			return
		}
		e.applyReassignment(day, exc, team)

	case exc.Type == calendar.Compensation:
		// Additive: the team joins the replacement shift without
		// leaving the shifts it already works.
		if exc.ReplacementShift == "" {
			e.applyAbsence(day, team)
			return
		}
		sh := day.ShiftByName(exc.ReplacementShift)
		if sh == nil {
			e.warnUnknownShift(day, exc)
			return
		}
		sh.Teams.Add(team)

	default:
		e.log.Warn("unrecognized exception type, day left unmodified",
			zap.String("type", string(exc.Type)),
			zap.String("exception_id", exc.ID.String()),
			zap.Time("day", day.Date()))
	}
}

// applyAbsence removes the team from every shift and records it off
// work. Idempotent: applying twice yields the same day.
func (e *Engine) applyAbsence(day *calendar.Day, team string) {
	for _, sh := range day.Shifts {
		sh.Teams.Remove(team)
	}
	day.OffWork.Add(team)
}

// applyReassignment moves the team exclusively into the replacement
// shift. An unknown replacement name is non-fatal: the team stays off
// work and a warning is logged.
func (e *Engine) applyReassignment(day *calendar.Day, exc calendar.Exception, team string) {
	e.applyAbsence(day, team)
	sh := day.ShiftByName(exc.ReplacementShift)
	if sh == nil {
		e.warnUnknownShift(day, exc)
		return
	}
	sh.Teams.Add(team)
	day.OffWork.Remove(team)
}

func (e *Engine) warnUnknownShift(day *calendar.Day, exc calendar.Exception) {
	e.log.Warn("replacement shift not present on day",
		zap.String("replacement", exc.ReplacementShift),
		zap.String("exception_id", exc.ID.String()),
		zap.Time("day", day.Date()))
}
