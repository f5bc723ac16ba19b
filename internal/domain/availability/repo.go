package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleRepository persists weekly availability rules.
type RuleRepository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Rule, error)
}

// ExceptionRepository persists dated availability exceptions.
type ExceptionRepository interface {
	Create(ctx context.Context, e *Exception) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exception, error)
	Update(ctx context.Context, e *Exception) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListForDate returns exceptions on the given date that are either
	// clinic-wide or specific to professionalID.
	ListForDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]*Exception, error)
	// ListForRange returns exceptions in [from, to] for the professional,
	// clinic-wide ones included. A nil professionalID returns all.
	ListForRange(ctx context.Context, professionalID *uuid.UUID, from, to time.Time) ([]*Exception, error)
}
