package agenda

import (
	"time"

	"github.com/google/uuid"

	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
)

// Scope selects whose agenda a day grid covers.
type Scope string

const (
	// ScopeProfessional builds the grid from one professional's rules,
	// exceptions and bookings.
	ScopeProfessional Scope = "PROFESSIONAL"
	// ScopeAllProfessionals builds a clinic-wide occupancy board on a fixed
	// half-hour grid, ignoring rules and exceptions.
	ScopeAllProfessionals Scope = "ALL_PROFESSIONALS"
)

// Occupancy board bounds, minutes since midnight. 07:00 through 20:30
// inclusive, half-hour steps.
const (
	boardStartMinute = 7 * 60
	boardEndMinute   = 20*60 + 30
	boardStepMinutes = 30
)

// TimeSlot is one entry of a computed day grid. Slots are ephemeral: they
// are derived on demand and never stored.
type TimeSlot struct {
	Time         string                     `json:"time"`
	IsAvailable  bool                       `json:"is_available"`
	Appointments []*appointment.Appointment `json:"appointments,omitempty"`
	IsBlocked    bool                       `json:"is_blocked"`
	BlockReason  *string                    `json:"block_reason,omitempty"`
}

// BiweeklyHint marks a time on an off-week date of a biweekly series. When
// the alternate-week slot is already taken by a sibling occurrence the hint
// carries its id; otherwise the slot is offered for one-click creation.
type BiweeklyHint struct {
	Time                string     `json:"time"`
	IsAvailable         bool       `json:"is_available"`
	PairedAppointmentID *uuid.UUID `json:"paired_appointment_id,omitempty"`
}

// DayGrid is the full computed view for one date.
type DayGrid struct {
	Date          string         `json:"date"`
	Scope         Scope          `json:"scope"`
	Slots         []TimeSlot     `json:"slots"`
	BiweeklyHints []BiweeklyHint `json:"biweekly_hints,omitempty"`
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}
