package groupsession

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

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository { return &sessionRepoPG{pool: pool} }

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const sessionCols = `id, name, facilitator_id, co_facilitator_id, status, scheduled_at, end_at,
	location, max_participants, topic, notes, series_id, created_at, updated_at`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Name, &s.FacilitatorID, &s.CoFacilitatorID, &s.Status,
		&s.ScheduledAt, &s.EndAt, &s.Location, &s.MaxParticipants, &s.Topic, &s.Notes,
		&s.SeriesID, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO group_sessions (id, name, facilitator_id, co_facilitator_id, status, scheduled_at, end_at,
			location, max_participants, topic, notes, series_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.ID, s.Name, s.FacilitatorID, s.CoFacilitatorID, s.Status, s.ScheduledAt, s.EndAt,
		s.Location, s.MaxParticipants, s.Topic, s.Notes, s.SeriesID)
	return err
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM group_sessions WHERE id = $1`, id))
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE group_sessions SET name=$2, co_facilitator_id=$3, status=$4, scheduled_at=$5, end_at=$6,
			location=$7, max_participants=$8, topic=$9, notes=$10, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Name, s.CoFacilitatorID, s.Status, s.ScheduledAt, s.EndAt,
		s.Location, s.MaxParticipants, s.Topic, s.Notes)
	return err
}

func (r *sessionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM group_sessions WHERE id = $1`, id)
	return err
}

func (r *sessionRepoPG) ListByDate(ctx context.Context, date time.Time, facilitatorID *uuid.UUID) ([]*Session, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := `SELECT ` + sessionCols + ` FROM group_sessions WHERE scheduled_at >= $1 AND scheduled_at < $2`
	args := []interface{}{dayStart, dayEnd}
	if facilitatorID != nil {
		query += ` AND facilitator_id = $3`
		args = append(args, *facilitatorID)
	}
	query += ` ORDER BY scheduled_at`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *sessionRepoPG) ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]*Session, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionCols+` FROM group_sessions WHERE series_id = $1 ORDER BY scheduled_at`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *sessionRepoPG) collect(rows pgx.Rows) ([]*Session, error) {
	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const memberCols = `id, session_id, patient_id, status, note`

func (r *sessionRepoPG) scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.SessionID, &m.PatientID, &m.Status, &m.Note)
	return &m, err
}

func (r *sessionRepoPG) AddMember(ctx context.Context, m *Member) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO group_session_members (id, session_id, patient_id, status, note)
		VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.SessionID, m.PatientID, m.Status, m.Note)
	return err
}

func (r *sessionRepoPG) RemoveMember(ctx context.Context, sessionID, patientID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM group_session_members WHERE session_id = $1 AND patient_id = $2`, sessionID, patientID)
	return err
}

func (r *sessionRepoPG) ListMembers(ctx context.Context, sessionID uuid.UUID) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+memberCols+` FROM group_session_members WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Member
	for rows.Next() {
		m, err := r.scanMember(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *sessionRepoPG) UpdateMember(ctx context.Context, m *Member) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE group_session_members SET status=$2, note=$3 WHERE id = $1`,
		m.ID, m.Status, m.Note)
	return err
}

func (r *sessionRepoPG) GetMember(ctx context.Context, sessionID, patientID uuid.UUID) (*Member, error) {
	return r.scanMember(r.conn(ctx).QueryRow(ctx, `
		SELECT `+memberCols+` FROM group_session_members WHERE session_id = $1 AND patient_id = $2`,
		sessionID, patientID))
}

// =========== Series Repository ===========

type seriesRepoPG struct{ pool *pgxpool.Pool }

func NewSeriesRepoPG(pool *pgxpool.Pool) SeriesRepository { return &seriesRepoPG{pool: pool} }

func (r *seriesRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const seriesCols = `id, type, end_type, start_date, end_date, occurrences, is_active, exceptions, created_at, updated_at`

func (r *seriesRepoPG) scanSeries(row pgx.Row) (*Series, error) {
	var s Series
	err := row.Scan(&s.ID, &s.Type, &s.EndType, &s.StartDate, &s.EndDate,
		&s.Occurrences, &s.IsActive, &s.Exceptions, &s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *seriesRepoPG) Create(ctx context.Context, s *Series) error {
	s.ID = uuid.New()
	if s.Exceptions == nil {
		s.Exceptions = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO group_session_series (id, type, end_type, start_date, end_date, occurrences, is_active, exceptions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.Type, s.EndType, s.StartDate, s.EndDate, s.Occurrences, s.IsActive, s.Exceptions)
	return err
}

func (r *seriesRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Series, error) {
	return r.scanSeries(r.conn(ctx).QueryRow(ctx, `SELECT `+seriesCols+` FROM group_session_series WHERE id = $1`, id))
}

func (r *seriesRepoPG) Update(ctx context.Context, s *Series) error {
	if s.Exceptions == nil {
		s.Exceptions = []string{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE group_session_series SET is_active=$2, exceptions=$3, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.IsActive, s.Exceptions)
	return err
}
