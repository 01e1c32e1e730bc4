package calendar

import (
	"time"

	"github.com/google/uuid"
)

// ExceptionType classifies a date-scoped override of the base pattern.
type ExceptionType string

const (
	Vacation      ExceptionType = "VACATION"
	SickLeave     ExceptionType = "SICK_LEAVE"
	PersonalLeave ExceptionType = "PERSONAL_LEAVE"
	Permit104     ExceptionType = "PERMIT_104"
	Overtime      ExceptionType = "OVERTIME"
	Training      ExceptionType = "TRAINING"
	Emergency     ExceptionType = "EMERGENCY"
	ShiftSwap     ExceptionType = "SHIFT_SWAP"
	Compensation  ExceptionType = "COMPENSATION"
	Other         ExceptionType = "OTHER"
)

// exceptionTypes is the closed set of recognized values.
var exceptionTypes = map[ExceptionType]bool{
	Vacation: true, SickLeave: true, PersonalLeave: true, Permit104: true,
	Overtime: true, Training: true, Emergency: true, ShiftSwap: true,
	Compensation: true, Other: true,
}

// Valid reports whether t is a recognized exception type.
func (t ExceptionType) Valid() bool { return exceptionTypes[t] }

// IsAbsence reports whether t always removes the team from all shifts.
func (t ExceptionType) IsAbsence() bool {
	switch t {
	case Vacation, SickLeave, PersonalLeave, Permit104:
		return true
	}
	return false
}

// IsReassignment reports whether t moves the team to a replacement
// shift when one is named. SHIFT_SWAP is single-team reassignment, not
// a bilateral exchange.
func (t ExceptionType) IsReassignment() bool {
	switch t {
	case Overtime, Training, Emergency, ShiftSwap, Other:
		return true
	}
	return false
}

// Exception is a per-user, per-date override record.
type Exception struct {
	ID     uuid.UUID
	UserID string
	Date   time.Time
	Type   ExceptionType
	// ReplacementShift names the shift the team moves to (reassignment
	// and compensation types). Blank means plain absence.
	ReplacementShift string
	Active           bool
}
