package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDate returns appointments whose ScheduledAt falls on the given
	// calendar date. A nil professionalID returns the whole clinic.
	ListByDate(ctx context.Context, date time.Time, professionalID *uuid.UUID) ([]*Appointment, error)
	ListByRecurrence(ctx context.Context, recurrenceID uuid.UUID) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// ActiveExistsAt reports whether the professional already has an active
	// appointment starting at the exact instant.
	ActiveExistsAt(ctx context.Context, professionalID uuid.UUID, at time.Time) (bool, error)
}

// RecurrenceRepository persists series definitions and their skip sets.
type RecurrenceRepository interface {
	Create(ctx context.Context, r *Recurrence) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recurrence, error)
	Update(ctx context.Context, r *Recurrence) error
	ListActiveIndefinite(ctx context.Context) ([]*Recurrence, error)
	// ListForAppointments returns the recurrences referenced by the given ids.
	ListForAppointments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Recurrence, error)
}
