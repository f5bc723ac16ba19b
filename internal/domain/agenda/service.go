package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
	"github.com/marvingbh/clinica-sub001/internal/domain/availability"
	"github.com/marvingbh/clinica-sub001/internal/platform/cache"
)

// Service assembles day grids from the availability and appointment domains.
// Computed grids are cached briefly; every write in the source domains
// invalidates the affected keys.
type Service struct {
	avail           *availability.Service
	appts           *appointment.Service
	cache           *cache.Cache
	durationMinutes int
	log             zerolog.Logger
}

func NewService(avail *availability.Service, appts *appointment.Service, c *cache.Cache, durationMinutes int, log zerolog.Logger) *Service {
	return &Service{avail: avail, appts: appts, cache: c, durationMinutes: durationMinutes, log: log}
}

// GetDayGrid computes one professional's grid for a date, biweekly hints
// included.
func (s *Service) GetDayGrid(ctx context.Context, professionalID uuid.UUID, date time.Time) (*DayGrid, error) {
	key := cache.GridKey(professionalID.String(), isoDate(date))
	if s.cache != nil {
		var cached DayGrid
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn().Err(err).Msg("grid cache read failed")
		}
	}

	rules, err := s.avail.ListRules(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	exceptions, err := s.avail.ExceptionsForDate(ctx, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	occupying, err := s.appts.ListDayOccupancy(ctx, date, &professionalID)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	slots, err := ComputeSlots(date, professionalID, rules, exceptions, occupying, s.durationMinutes, ScopeProfessional)
	if err != nil {
		return nil, err
	}

	hints, err := s.biweeklyHints(ctx, professionalID, date, occupying)
	if err != nil {
		return nil, err
	}

	grid := &DayGrid{
		Date:          isoDate(date),
		Scope:         ScopeProfessional,
		Slots:         slots,
		BiweeklyHints: hints,
	}
	if s.cache != nil {
		s.cache.SetJSON(ctx, key, grid)
	}
	return grid, nil
}

// GetOccupancyBoard computes the clinic-wide half-hour board for a date.
func (s *Service) GetOccupancyBoard(ctx context.Context, date time.Time) (*DayGrid, error) {
	key := cache.GridKey("all", isoDate(date))
	if s.cache != nil {
		var cached DayGrid
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	occupying, err := s.appts.ListDayOccupancy(ctx, date, nil)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	slots, err := ComputeSlots(date, uuid.Nil, nil, nil, occupying, s.durationMinutes, ScopeAllProfessionals)
	if err != nil {
		return nil, err
	}

	grid := &DayGrid{Date: isoDate(date), Scope: ScopeAllProfessionals, Slots: slots}
	if s.cache != nil {
		s.cache.SetJSON(ctx, key, grid)
	}
	return grid, nil
}

func (s *Service) biweeklyHints(ctx context.Context, professionalID uuid.UUID, date time.Time, sameDay []*appointment.Appointment) ([]BiweeklyHint, error) {
	prev, err := s.appts.ListBiweeklyForDate(ctx, date.AddDate(0, 0, -7), &professionalID)
	if err != nil {
		return nil, fmt.Errorf("load biweekly neighbors: %w", err)
	}
	next, err := s.appts.ListBiweeklyForDate(ctx, date.AddDate(0, 0, 7), &professionalID)
	if err != nil {
		return nil, fmt.Errorf("load biweekly neighbors: %w", err)
	}
	neighbors := append(prev, next...)
	if len(neighbors) == 0 {
		return nil, nil
	}
	return ComputeBiweeklyHints(date, neighbors, sameDay), nil
}

// NewGridLoader builds a Loader wired to this service, for callers that
// switch between dates and scopes and only want the latest result.
func (s *Service) NewGridLoader(deliver DeliverFunc) *Loader {
	return NewLoader(func(ctx context.Context, date time.Time, professionalID uuid.UUID, scope Scope) (*DayGrid, error) {
		if scope == ScopeAllProfessionals {
			return s.GetOccupancyBoard(ctx, date)
		}
		return s.GetDayGrid(ctx, professionalID, date)
	}, deliver)
}
