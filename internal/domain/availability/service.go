package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/internal/platform/cache"
)

var (
	ErrNotFound       = errors.New("availability record not found")
	ErrInvalidDay     = errors.New("dayOfWeek must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidWindow  = errors.New("startTime must be earlier than endTime")
	ErrHalfOpenWindow = errors.New("startTime and endTime must both be set or both be null")
)

type Service struct {
	rules      RuleRepository
	exceptions ExceptionRepository
	cache      *cache.Cache
	log        zerolog.Logger
}

func NewService(rules RuleRepository, exceptions ExceptionRepository, c *cache.Cache, log zerolog.Logger) *Service {
	return &Service{rules: rules, exceptions: exceptions, cache: c, log: log}
}

// -- Rules --

func (s *Service) CreateRule(ctx context.Context, r *Rule) error {
	if err := validateRule(r); err != nil {
		return err
	}
	if err := s.rules.Create(ctx, r); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	s.invalidate(ctx, r.ProfessionalID)
	s.log.Info().Str("rule_id", r.ID.String()).Str("professional_id", r.ProfessionalID.String()).
		Int("day_of_week", r.DayOfWeek).Msg("availability rule created")
	return nil
}

func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (*Rule, error) {
	r, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Service) UpdateRule(ctx context.Context, r *Rule) error {
	existing, err := s.rules.GetByID(ctx, r.ID)
	if err != nil {
		return ErrNotFound
	}
	r.ProfessionalID = existing.ProfessionalID
	if err := validateRule(r); err != nil {
		return err
	}
	if err := s.rules.Update(ctx, r); err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	s.invalidate(ctx, r.ProfessionalID)
	return nil
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	r, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	s.invalidate(ctx, r.ProfessionalID)
	return nil
}

func (s *Service) ListRules(ctx context.Context, professionalID uuid.UUID) ([]*Rule, error) {
	return s.rules.ListByProfessional(ctx, professionalID)
}

// ActiveRulesForDay returns the professional's active rules matching the
// weekday of date, in start-time order.
func (s *Service) ActiveRulesForDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]*Rule, error) {
	all, err := s.rules.ListByProfessional(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	day := int(date.Weekday())
	var active []*Rule
	for _, r := range all {
		if r.IsActive && r.DayOfWeek == day {
			active = append(active, r)
		}
	}
	return active, nil
}

// -- Exceptions --

func (s *Service) CreateException(ctx context.Context, e *Exception) error {
	if err := validateException(e); err != nil {
		return err
	}
	if err := s.exceptions.Create(ctx, e); err != nil {
		return fmt.Errorf("create exception: %w", err)
	}
	s.invalidateForException(ctx, e)
	s.log.Info().Str("exception_id", e.ID.String()).Str("date", e.Date.Format("2006-01-02")).
		Bool("is_available", e.IsAvailable).Msg("availability exception created")
	return nil
}

func (s *Service) GetException(ctx context.Context, id uuid.UUID) (*Exception, error) {
	e, err := s.exceptions.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *Service) UpdateException(ctx context.Context, e *Exception) error {
	existing, err := s.exceptions.GetByID(ctx, e.ID)
	if err != nil {
		return ErrNotFound
	}
	e.ProfessionalID = existing.ProfessionalID
	if err := validateException(e); err != nil {
		return err
	}
	if err := s.exceptions.Update(ctx, e); err != nil {
		return fmt.Errorf("update exception: %w", err)
	}
	s.invalidateForException(ctx, e)
	return nil
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	e, err := s.exceptions.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if err := s.exceptions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	s.invalidateForException(ctx, e)
	return nil
}

func (s *Service) ListExceptions(ctx context.Context, professionalID *uuid.UUID, from, to time.Time) ([]*Exception, error) {
	return s.exceptions.ListForRange(ctx, professionalID, from, to)
}

func (s *Service) ExceptionsForDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]*Exception, error) {
	return s.exceptions.ListForDate(ctx, professionalID, date)
}

// -- validation --

func validateRule(r *Rule) error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return ErrInvalidDay
	}
	start, err := MinuteOfDay(r.StartTime)
	if err != nil {
		return fmt.Errorf("startTime: %w", err)
	}
	end, err := MinuteOfDay(r.EndTime)
	if err != nil {
		return fmt.Errorf("endTime: %w", err)
	}
	if start >= end {
		return ErrInvalidWindow
	}
	return nil
}

func validateException(e *Exception) error {
	if e.Date.IsZero() {
		return errors.New("date is required")
	}
	if (e.StartTime == nil) != (e.EndTime == nil) {
		return ErrHalfOpenWindow
	}
	if e.StartTime != nil {
		start, err := MinuteOfDay(*e.StartTime)
		if err != nil {
			return fmt.Errorf("startTime: %w", err)
		}
		end, err := MinuteOfDay(*e.EndTime)
		if err != nil {
			return fmt.Errorf("endTime: %w", err)
		}
		if start >= end {
			return ErrInvalidWindow
		}
	}
	return nil
}

// -- cache hooks --

func (s *Service) invalidate(ctx context.Context, professionalID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateGrid(ctx, professionalID.String())
	s.cache.InvalidateGrid(ctx, "all")
}

func (s *Service) invalidateForException(ctx context.Context, e *Exception) {
	if s.cache == nil {
		return
	}
	if e.ProfessionalID != nil {
		s.invalidate(ctx, *e.ProfessionalID)
		return
	}
	// Clinic-wide exceptions can affect every grid.
	s.cache.InvalidateGrid(ctx, "*")
}
