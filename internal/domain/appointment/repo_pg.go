package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marvingbh/clinica-sub001/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Appointment Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, professional_id, patient_id, scheduled_at, end_at, status, modality,
	notes, recurrence_id, created_at, updated_at`

func (r *repoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ProfessionalID, &a.PatientID, &a.ScheduledAt, &a.EndAt,
		&a.Status, &a.Modality, &a.Notes, &a.RecurrenceID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, professional_id, patient_id, scheduled_at, end_at, status, modality, notes, recurrence_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.ProfessionalID, a.PatientID, a.ScheduledAt, a.EndAt, a.Status, a.Modality, a.Notes, a.RecurrenceID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET scheduled_at=$2, end_at=$3, status=$4, modality=$5, notes=$6, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.ScheduledAt, a.EndAt, a.Status, a.Modality, a.Notes)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListByDate(ctx context.Context, date time.Time, professionalID *uuid.UUID) ([]*Appointment, error) {
	// Day bounds come from the caller's zone; casting scheduled_at to a date
	// in the session zone would move late-evening bookings across days.
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	query := `SELECT ` + apptCols + ` FROM appointments WHERE scheduled_at >= $1 AND scheduled_at < $2`
	args := []interface{}{dayStart, dayEnd}
	if professionalID != nil {
		query += ` AND professional_id = $3`
		args = append(args, *professionalID)
	}
	query += ` ORDER BY scheduled_at`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) ListByRecurrence(ctx context.Context, recurrenceID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments WHERE recurrence_id = $1 ORDER BY scheduled_at`, recurrenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments WHERE patient_id = $1
		ORDER BY scheduled_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *repoPG) ActiveExistsAt(ctx context.Context, professionalID uuid.UUID, at time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE professional_id = $1 AND scheduled_at = $2 AND status IN ('AGENDADO','CONFIRMADO')
		)`, professionalID, at).Scan(&exists)
	return exists, err
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Recurrence Repository ===========

type recurrenceRepoPG struct{ pool *pgxpool.Pool }

func NewRecurrenceRepoPG(pool *pgxpool.Pool) RecurrenceRepository { return &recurrenceRepoPG{pool: pool} }

func (r *recurrenceRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recurCols = `id, type, end_type, start_date, end_date, occurrences, is_active, exceptions, created_at, updated_at`

func (r *recurrenceRepoPG) scanRecurrence(row pgx.Row) (*Recurrence, error) {
	var rec Recurrence
	err := row.Scan(&rec.ID, &rec.Type, &rec.EndType, &rec.StartDate, &rec.EndDate,
		&rec.Occurrences, &rec.IsActive, &rec.Exceptions, &rec.CreatedAt, &rec.UpdatedAt)
	return &rec, err
}

func (r *recurrenceRepoPG) Create(ctx context.Context, rec *Recurrence) error {
	rec.ID = uuid.New()
	if rec.Exceptions == nil {
		rec.Exceptions = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO recurrences (id, type, end_type, start_date, end_date, occurrences, is_active, exceptions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.Type, rec.EndType, rec.StartDate, rec.EndDate, rec.Occurrences, rec.IsActive, rec.Exceptions)
	return err
}

func (r *recurrenceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Recurrence, error) {
	return r.scanRecurrence(r.conn(ctx).QueryRow(ctx, `SELECT `+recurCols+` FROM recurrences WHERE id = $1`, id))
}

func (r *recurrenceRepoPG) Update(ctx context.Context, rec *Recurrence) error {
	if rec.Exceptions == nil {
		rec.Exceptions = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE recurrences SET end_date=$2, occurrences=$3, is_active=$4, exceptions=$5, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.EndDate, rec.Occurrences, rec.IsActive, rec.Exceptions)
	return err
}

func (r *recurrenceRepoPG) ListActiveIndefinite(ctx context.Context) ([]*Recurrence, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recurCols+` FROM recurrences WHERE is_active AND end_type = 'INDEFINITE'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Recurrence
	for rows.Next() {
		rec, err := r.scanRecurrence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *recurrenceRepoPG) ListForAppointments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Recurrence, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*Recurrence{}, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recurCols+` FROM recurrences WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]*Recurrence, len(ids))
	for rows.Next() {
		rec, err := r.scanRecurrence(rows)
		if err != nil {
			return nil, err
		}
		out[rec.ID] = rec
	}
	return out, rows.Err()
}
