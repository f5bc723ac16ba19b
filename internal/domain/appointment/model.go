package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

// Status is the appointment lifecycle state. Values are kept in Portuguese
// as they appear in the clinic's records.
type Status string

const (
	StatusAgendado              Status = "AGENDADO"
	StatusConfirmado            Status = "CONFIRMADO"
	StatusCanceladoPaciente     Status = "CANCELADO_PACIENTE"
	StatusCanceladoProfissional Status = "CANCELADO_PROFISSIONAL"
	StatusNaoCompareceu         Status = "NAO_COMPARECEU"
	StatusFinalizado            Status = "FINALIZADO"
)

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusAgendado || s == StatusConfirmado
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCanceladoPaciente, StatusCanceladoProfissional, StatusNaoCompareceu, StatusFinalizado:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusAgendado, StatusConfirmado, StatusCanceladoPaciente,
		StatusCanceladoProfissional, StatusNaoCompareceu, StatusFinalizado:
		return true
	}
	return false
}

// Modality is how the session is delivered.
type Modality string

const (
	ModalityOnline     Modality = "ONLINE"
	ModalityPresencial Modality = "PRESENCIAL"
)

func ValidModality(m Modality) bool {
	return m == ModalityOnline || m == ModalityPresencial
}

// Appointment is one scheduled session. RecurrenceID links occurrences of
// the same series; standalone appointments leave it nil. Rows are never
// deleted by the lifecycle, only by administrative removal.
type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	EndAt          time.Time  `json:"end_at"`
	Status         Status     `json:"status"`
	Modality       Modality   `json:"modality"`
	Notes          *string    `json:"notes"`
	RecurrenceID   *uuid.UUID `json:"recurrence_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Recurrence is the stored definition of a series plus its per-occurrence
// exceptions: the set of ISO dates (YYYY-MM-DD) whose occurrences are
// currently skipped. Skipping suppresses the occurrence without touching
// the appointment row, so restoring is always possible.
type Recurrence struct {
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
func (r *Recurrence) Definition() recur.Definition {
	return recur.Definition{
		Type:        r.Type,
		EndType:     r.EndType,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Occurrences: r.Occurrences,
	}
}

// Skipped reports whether the given ISO date is in the exception set.
func (r *Recurrence) Skipped(isoDate string) bool {
	for _, d := range r.Exceptions {
		if d == isoDate {
			return true
		}
	}
	return false
}
