package groupsession

import (
	"time"

	"github.com/google/uuid"

	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

// Status is the lifecycle state of one session occurrence.
type Status string

const (
	StatusAgendada  Status = "AGENDADA"
	StatusRealizada Status = "REALIZADA"
	StatusCancelada Status = "CANCELADA"
)

func ValidStatus(s Status) bool {
	return s == StatusAgendada || s == StatusRealizada || s == StatusCancelada
}

// AttendanceStatus records whether a member showed up for one occurrence.
type AttendanceStatus string

const (
	AttendancePresente    AttendanceStatus = "PRESENTE"
	AttendanceAusente     AttendanceStatus = "AUSENTE"
	AttendanceJustificada AttendanceStatus = "JUSTIFICADA"
)

func ValidAttendanceStatus(s AttendanceStatus) bool {
	return s == AttendancePresente || s == AttendanceAusente || s == AttendanceJustificada
}

// Session is one dated occurrence of a group. SeriesID links occurrences of
// the same recurring group; one-off sessions leave it nil.
type Session struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	FacilitatorID   uuid.UUID  `json:"facilitator_id"`
	CoFacilitatorID *uuid.UUID `json:"co_facilitator_id,omitempty"`
	Status          Status     `json:"status"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	EndAt           time.Time  `json:"end_at"`
	Location        *string    `json:"location,omitempty"`
	MaxParticipants *int       `json:"max_participants,omitempty"`
	Topic           *string    `json:"topic,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	SeriesID        *uuid.UUID `json:"series_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Member is one patient enrolled in a session occurrence. Attendance starts
// empty and is filled in when the session happens.
type Member struct {
	ID        uuid.UUID         `json:"id"`
	SessionID uuid.UUID         `json:"session_id"`
	PatientID uuid.UUID         `json:"patient_id"`
	Status    *AttendanceStatus `json:"status,omitempty"`
	Note      *string           `json:"note,omitempty"`
}

// Series is the stored recurrence of a group, with the same per-occurrence
// skip set the appointment series carry: ISO dates whose occurrences are
// suppressed without touching the session rows.
type Series struct {
	ID          uuid.UUID     `json:"id"`
	Type        recur.Type    `json:"type"`
	EndType     recur.EndType `json:"end_type"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     *time.Time    `json:"end_date"`
	Occurrences *int          `json:"occurrences"`
	IsActive    bool          `json:"is_active"`
	Exceptions  []string      `json:"exceptions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Definition rebuilds the pure expander input from the stored series.
func (s *Series) Definition() recur.Definition {
	return recur.Definition{
		Type:        s.Type,
		EndType:     s.EndType,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		Occurrences: s.Occurrences,
	}
}

// Skipped reports whether the given ISO date is in the exception set.
func (s *Series) Skipped(isoDate string) bool {
	for _, d := range s.Exceptions {
		if d == isoDate {
			return true
		}
	}
	return false
}
