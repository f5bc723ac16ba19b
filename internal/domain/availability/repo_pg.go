package availability

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

// =========== Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

func (r *ruleRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const ruleCols = `id, professional_id, day_of_week, start_time, end_time, is_active, created_at, updated_at`

func (r *ruleRepoPG) scanRule(row pgx.Row) (*Rule, error) {
	var ru Rule
	err := row.Scan(&ru.ID, &ru.ProfessionalID, &ru.DayOfWeek, &ru.StartTime, &ru.EndTime,
		&ru.IsActive, &ru.CreatedAt, &ru.UpdatedAt)
	return &ru, err
}

func (r *ruleRepoPG) Create(ctx context.Context, ru *Rule) error {
	ru.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_rules (id, professional_id, day_of_week, start_time, end_time, is_active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ru.ID, ru.ProfessionalID, ru.DayOfWeek, ru.StartTime, ru.EndTime, ru.IsActive)
	return err
}

func (r *ruleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return r.scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM availability_rules WHERE id = $1`, id))
}

func (r *ruleRepoPG) Update(ctx context.Context, ru *Rule) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_rules SET day_of_week=$2, start_time=$3, end_time=$4, is_active=$5, updated_at=NOW()
		WHERE id = $1`,
		ru.ID, ru.DayOfWeek, ru.StartTime, ru.EndTime, ru.IsActive)
	return err
}

func (r *ruleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	return err
}

func (r *ruleRepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Rule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleCols+` FROM availability_rules
		WHERE professional_id = $1
		ORDER BY day_of_week, start_time`, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Rule
	for rows.Next() {
		ru, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ru)
	}
	return items, rows.Err()
}

// =========== Exception Repository ===========

type exceptionRepoPG struct{ pool *pgxpool.Pool }

func NewExceptionRepoPG(pool *pgxpool.Pool) ExceptionRepository { return &exceptionRepoPG{pool: pool} }

func (r *exceptionRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const excCols = `id, professional_id, date, is_available, start_time, end_time, reason, created_at, updated_at`

func (r *exceptionRepoPG) scanException(row pgx.Row) (*Exception, error) {
	var e Exception
	err := row.Scan(&e.ID, &e.ProfessionalID, &e.Date, &e.IsAvailable, &e.StartTime,
		&e.EndTime, &e.Reason, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *exceptionRepoPG) Create(ctx context.Context, e *Exception) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_exceptions (id, professional_id, date, is_available, start_time, end_time, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.ProfessionalID, e.Date, e.IsAvailable, e.StartTime, e.EndTime, e.Reason)
	return err
}

func (r *exceptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Exception, error) {
	return r.scanException(r.conn(ctx).QueryRow(ctx, `SELECT `+excCols+` FROM availability_exceptions WHERE id = $1`, id))
}

func (r *exceptionRepoPG) Update(ctx context.Context, e *Exception) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_exceptions SET date=$2, is_available=$3, start_time=$4, end_time=$5, reason=$6, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.Date, e.IsAvailable, e.StartTime, e.EndTime, e.Reason)
	return err
}

func (r *exceptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	return err
}

func (r *exceptionRepoPG) ListForDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]*Exception, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+excCols+` FROM availability_exceptions
		WHERE date = $1 AND (professional_id IS NULL OR professional_id = $2)
		ORDER BY created_at`, date, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *exceptionRepoPG) ListForRange(ctx context.Context, professionalID *uuid.UUID, from, to time.Time) ([]*Exception, error) {
	query := `SELECT ` + excCols + ` FROM availability_exceptions WHERE date BETWEEN $1 AND $2`
	args := []interface{}{from, to}
	if professionalID != nil {
		query += ` AND (professional_id IS NULL OR professional_id = $3)`
		args = append(args, *professionalID)
	}
	query += ` ORDER BY date, created_at`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *exceptionRepoPG) collect(rows pgx.Rows) ([]*Exception, error) {
	var items []*Exception
	for rows.Next() {
		e, err := r.scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
