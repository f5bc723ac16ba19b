package groupsession

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDate(ctx context.Context, date time.Time, facilitatorID *uuid.UUID) ([]*Session, error)
	ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]*Session, error)
	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, sessionID, patientID uuid.UUID) error
	ListMembers(ctx context.Context, sessionID uuid.UUID) ([]*Member, error)
	UpdateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, sessionID, patientID uuid.UUID) (*Member, error)
}

type SeriesRepository interface {
	Create(ctx context.Context, s *Series) error
	GetByID(ctx context.Context, id uuid.UUID) (*Series, error)
	Update(ctx context.Context, s *Series) error
}
