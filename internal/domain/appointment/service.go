package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/internal/platform/cache"
	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

var (
	ErrNotFound           = errors.New("appointment not found")
	ErrRecurrenceNotFound = errors.New("recurrence not found")
	ErrInvalidStatus      = errors.New("invalid appointment status")
	ErrStatusTerminal     = errors.New("appointment status can no longer change")
	ErrInvalidModality    = errors.New("modality must be ONLINE or PRESENCIAL")
	ErrInvalidDuration    = errors.New("durationMinutes must be positive")
	ErrOccurrenceNotFound = errors.New("date is not an occurrence of this series")
	ErrAlreadySkipped     = errors.New("occurrence is already skipped")
	ErrNotSkipped         = errors.New("occurrence is not skipped")
)

// OccurrenceConflictError reports which occurrence of a series could not be
// booked. Index is 1-based, matching how the series is presented to staff.
type OccurrenceConflictError struct {
	Index int
	Date  time.Time
}

func (e *OccurrenceConflictError) Error() string {
	return fmt.Sprintf("occurrence %d (%s) conflicts with an existing appointment",
		e.Index, e.Date.Format("2006-01-02 15:04"))
}

// CreateSeriesInput describes a booking request: a single session, or the
// first occurrence of a series when Recurrence is set.
type CreateSeriesInput struct {
	ProfessionalID  uuid.UUID       `json:"professional_id"`
	PatientID       uuid.UUID       `json:"patient_id"`
	StartAt         time.Time       `json:"start_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Modality        Modality        `json:"modality"`
	Notes           *string         `json:"notes"`
	Recurrence      *RecurrenceSpec `json:"recurrence"`
}

// RecurrenceSpec is the client-facing series definition.
type RecurrenceSpec struct {
	Type        recur.Type    `json:"type"`
	EndType     recur.EndType `json:"end_type"`
	EndDate     *time.Time    `json:"end_date"`
	Occurrences *int          `json:"occurrences"`
}

// CreateSeriesResult carries everything materialized by one booking.
type CreateSeriesResult struct {
	Appointments []*Appointment `json:"appointments"`
	Recurrence   *Recurrence    `json:"recurrence,omitempty"`
}

type Service struct {
	repo        Repository
	recurrences RecurrenceRepository
	cache       *cache.Cache
	log         zerolog.Logger
}

func NewService(repo Repository, recurrences RecurrenceRepository, c *cache.Cache, log zerolog.Logger) *Service {
	return &Service{repo: repo, recurrences: recurrences, cache: c, log: log}
}

// CreateSeries books a single appointment or materializes a whole series,
// one row per occurrence, all sharing a recurrence id. Conflicts are checked
// for every occurrence before anything is written, so a failure books
// nothing and names the offending occurrence.
func (s *Service) CreateSeries(ctx context.Context, in CreateSeriesInput) (*CreateSeriesResult, error) {
	if !ValidModality(in.Modality) {
		return nil, ErrInvalidModality
	}
	if in.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if in.StartAt.IsZero() {
		return nil, errors.New("startAt is required")
	}

	if in.Recurrence == nil {
		appt, err := s.bookOne(ctx, in, in.StartAt, nil, 1)
		if err != nil {
			return nil, err
		}
		s.invalidate(ctx, in.ProfessionalID)
		return &CreateSeriesResult{Appointments: []*Appointment{appt}}, nil
	}

	def := recur.Definition{
		Type:        in.Recurrence.Type,
		EndType:     in.Recurrence.EndType,
		StartDate:   in.StartAt,
		EndDate:     in.Recurrence.EndDate,
		Occurrences: in.Recurrence.Occurrences,
	}
	dates, err := recur.Expand(def)
	if err != nil {
		return nil, err
	}

	// Pre-check every occurrence so a late conflict cannot leave a
	// half-created series behind.
	for i, at := range dates {
		busy, err := s.repo.ActiveExistsAt(ctx, in.ProfessionalID, at)
		if err != nil {
			return nil, fmt.Errorf("conflict check: %w", err)
		}
		if busy {
			return nil, &OccurrenceConflictError{Index: i + 1, Date: at}
		}
	}

	rec := &Recurrence{
		Type:        def.Type,
		EndType:     def.EndType,
		StartDate:   def.StartDate,
		EndDate:     def.EndDate,
		Occurrences: def.Occurrences,
		IsActive:    true,
		Exceptions:  []string{},
	}
	if err := s.recurrences.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create recurrence: %w", err)
	}

	result := &CreateSeriesResult{Recurrence: rec}
	for i, at := range dates {
		appt, err := s.bookOne(ctx, in, at, &rec.ID, i+1)
		if err != nil {
			return nil, err
		}
		result.Appointments = append(result.Appointments, appt)
	}

	s.invalidate(ctx, in.ProfessionalID)
	s.log.Info().Str("recurrence_id", rec.ID.String()).Int("occurrences", len(dates)).
		Str("type", string(rec.Type)).Msg("appointment series created")
	return result, nil
}

func (s *Service) bookOne(ctx context.Context, in CreateSeriesInput, at time.Time, recurrenceID *uuid.UUID, index int) (*Appointment, error) {
	if recurrenceID == nil {
		busy, err := s.repo.ActiveExistsAt(ctx, in.ProfessionalID, at)
		if err != nil {
			return nil, fmt.Errorf("conflict check: %w", err)
		}
		if busy {
			return nil, &OccurrenceConflictError{Index: index, Date: at}
		}
	}
	appt := &Appointment{
		ProfessionalID: in.ProfessionalID,
		PatientID:      in.PatientID,
		ScheduledAt:    at,
		EndAt:          at.Add(time.Duration(in.DurationMinutes) * time.Minute),
		Status:         StatusAgendado,
		Modality:       in.Modality,
		Notes:          in.Notes,
		RecurrenceID:   recurrenceID,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("book occurrence %d (%s): %w", index, at.Format("2006-01-02"), err)
	}
	return appt, nil
}

// PreviewSeries expands a series definition without persisting anything.
func (s *Service) PreviewSeries(startAt time.Time, spec RecurrenceSpec) ([]time.Time, error) {
	return recur.Expand(recur.Definition{
		Type:        spec.Type,
		EndType:     spec.EndType,
		StartDate:   startAt,
		EndDate:     spec.EndDate,
		Occurrences: spec.Occurrences,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByRecurrence(ctx context.Context, recurrenceID uuid.UUID) ([]*Appointment, error) {
	return s.repo.ListByRecurrence(ctx, recurrenceID)
}

func (s *Service) GetRecurrence(ctx context.Context, id uuid.UUID) (*Recurrence, error) {
	rec, err := s.recurrences.GetByID(ctx, id)
	if err != nil {
		return nil, ErrRecurrenceNotFound
	}
	return rec, nil
}

// UpdateStatus applies a lifecycle transition. Terminal states are frozen;
// anything else may move to any valid status.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if appt.Status.Terminal() {
		return nil, ErrStatusTerminal
	}
	appt.Status = status
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.invalidate(ctx, appt.ProfessionalID)
	s.log.Info().Str("appointment_id", id.String()).Str("status", string(status)).Msg("appointment status changed")
	return appt, nil
}

func (s *Service) Update(ctx context.Context, a *Appointment) error {
	existing, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return ErrNotFound
	}
	if !ValidModality(a.Modality) {
		return ErrInvalidModality
	}
	a.ProfessionalID = existing.ProfessionalID
	a.PatientID = existing.PatientID
	a.RecurrenceID = existing.RecurrenceID
	if err := s.repo.Update(ctx, a); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	s.invalidate(ctx, existing.ProfessionalID)
	return nil
}

// Delete removes the row entirely. Administrative use only; the normal
// lifecycle goes through status transitions.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	s.invalidate(ctx, appt.ProfessionalID)
	return nil
}

// SkipOccurrence adds the date to the series' exception set. The occurrence
// must belong to the series and not be skipped already. The appointment row
// is left untouched so the skip can be undone.
func (s *Service) SkipOccurrence(ctx context.Context, recurrenceID uuid.UUID, date time.Time) (*Recurrence, error) {
	rec, err := s.recurrences.GetByID(ctx, recurrenceID)
	if err != nil {
		return nil, ErrRecurrenceNotFound
	}
	if !s.isOccurrence(rec, date) {
		return nil, ErrOccurrenceNotFound
	}
	iso := date.Format("2006-01-02")
	if rec.Skipped(iso) {
		return nil, ErrAlreadySkipped
	}
	rec.Exceptions = append(rec.Exceptions, iso)
	if err := s.recurrences.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("skip occurrence: %w", err)
	}
	s.invalidateSeries(ctx, recurrenceID)
	s.log.Info().Str("recurrence_id", recurrenceID.String()).Str("date", iso).Msg("occurrence skipped")
	return rec, nil
}

// RestoreOccurrence removes the date from the exception set, reinstating
// the occurrence.
func (s *Service) RestoreOccurrence(ctx context.Context, recurrenceID uuid.UUID, date time.Time) (*Recurrence, error) {
	rec, err := s.recurrences.GetByID(ctx, recurrenceID)
	if err != nil {
		return nil, ErrRecurrenceNotFound
	}
	iso := date.Format("2006-01-02")
	if !rec.Skipped(iso) {
		return nil, ErrNotSkipped
	}
	kept := rec.Exceptions[:0]
	for _, d := range rec.Exceptions {
		if d != iso {
			kept = append(kept, d)
		}
	}
	rec.Exceptions = kept
	if err := s.recurrences.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("restore occurrence: %w", err)
	}
	s.invalidateSeries(ctx, recurrenceID)
	s.log.Info().Str("recurrence_id", recurrenceID.String()).Str("date", iso).Msg("occurrence restored")
	return rec, nil
}

// DeactivateSeries stops a series: the definition is kept but future
// expansion and biweekly pairing ignore it.
func (s *Service) DeactivateSeries(ctx context.Context, recurrenceID uuid.UUID) error {
	rec, err := s.recurrences.GetByID(ctx, recurrenceID)
	if err != nil {
		return ErrRecurrenceNotFound
	}
	rec.IsActive = false
	if err := s.recurrences.Update(ctx, rec); err != nil {
		return fmt.Errorf("deactivate series: %w", err)
	}
	s.invalidateSeries(ctx, recurrenceID)
	return nil
}

// isOccurrence reports whether date matches an occurrence of the series.
func (s *Service) isOccurrence(rec *Recurrence, date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	window, err := recur.ExpandWindow(rec.Definition(), day, day.AddDate(0, 0, 1))
	if err != nil {
		return false
	}
	return len(window) > 0
}

// ListDayOccupancy returns the appointments that occupy slots on the given
// date: active statuses only, with skipped series occurrences removed.
func (s *Service) ListDayOccupancy(ctx context.Context, date time.Time, professionalID *uuid.UUID) ([]*Appointment, error) {
	all, err := s.repo.ListByDate(ctx, date, professionalID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	var recurIDs []uuid.UUID
	for _, a := range all {
		if a.Status.Active() && a.RecurrenceID != nil {
			recurIDs = append(recurIDs, *a.RecurrenceID)
		}
	}
	recs, err := s.recurrences.ListForAppointments(ctx, recurIDs)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}

	iso := date.Format("2006-01-02")
	var out []*Appointment
	for _, a := range all {
		if !a.Status.Active() {
			continue
		}
		if a.RecurrenceID != nil {
			if rec, ok := recs[*a.RecurrenceID]; ok && rec.Skipped(iso) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// ListBiweeklyForDate returns the date's occupying appointments that belong
// to an active BIWEEKLY series. Used to resolve alternate-week pairing.
func (s *Service) ListBiweeklyForDate(ctx context.Context, date time.Time, professionalID *uuid.UUID) ([]*Appointment, error) {
	occupying, err := s.ListDayOccupancy(ctx, date, professionalID)
	if err != nil {
		return nil, err
	}
	var recurIDs []uuid.UUID
	for _, a := range occupying {
		if a.RecurrenceID != nil {
			recurIDs = append(recurIDs, *a.RecurrenceID)
		}
	}
	recs, err := s.recurrences.ListForAppointments(ctx, recurIDs)
	if err != nil {
		return nil, fmt.Errorf("list recurrences: %w", err)
	}
	var out []*Appointment
	for _, a := range occupying {
		if a.RecurrenceID == nil {
			continue
		}
		if rec, ok := recs[*a.RecurrenceID]; ok && rec.IsActive && rec.Type == recur.Biweekly {
			out = append(out, a)
		}
	}
	return out, nil
}

// ExtendIndefiniteHorizon materializes missing occurrences of every active
// INDEFINITE series out to the look-ahead horizon. Called periodically by
// the background worker. Occurrences that would conflict are logged and
// left for staff to resolve.
func (s *Service) ExtendIndefiniteHorizon(ctx context.Context, now time.Time) (int, error) {
	series, err := s.recurrences.ListActiveIndefinite(ctx)
	if err != nil {
		return 0, fmt.Errorf("list indefinite series: %w", err)
	}

	horizon := now.AddDate(0, recur.IndefiniteHorizonMonths, 0)
	created := 0
	for _, rec := range series {
		n, err := s.extendOne(ctx, rec, horizon)
		if err != nil {
			s.log.Error().Err(err).Str("recurrence_id", rec.ID.String()).Msg("horizon extension failed")
			continue
		}
		created += n
	}
	return created, nil
}

func (s *Service) extendOne(ctx context.Context, rec *Recurrence, horizon time.Time) (int, error) {
	existing, err := s.repo.ListByRecurrence(ctx, rec.ID)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	template := existing[len(existing)-1]
	duration := template.EndAt.Sub(template.ScheduledAt)
	from := template.ScheduledAt.Add(time.Minute)

	dates, err := recur.ExpandWindow(rec.Definition(), from, horizon)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, at := range dates {
		if rec.Skipped(at.Format("2006-01-02")) {
			continue
		}
		busy, err := s.repo.ActiveExistsAt(ctx, template.ProfessionalID, at)
		if err != nil {
			return created, err
		}
		if busy {
			s.log.Warn().Str("recurrence_id", rec.ID.String()).
				Time("scheduled_at", at).Msg("horizon occurrence conflicts, skipped")
			continue
		}
		appt := &Appointment{
			ProfessionalID: template.ProfessionalID,
			PatientID:      template.PatientID,
			ScheduledAt:    at,
			EndAt:          at.Add(duration),
			Status:         StatusAgendado,
			Modality:       template.Modality,
			Notes:          template.Notes,
			RecurrenceID:   &rec.ID,
		}
		if err := s.repo.Create(ctx, appt); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		s.invalidate(ctx, template.ProfessionalID)
	}
	return created, nil
}

func (s *Service) invalidate(ctx context.Context, professionalID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateGrid(ctx, professionalID.String())
	s.cache.InvalidateGrid(ctx, "all")
}

func (s *Service) invalidateSeries(ctx context.Context, recurrenceID uuid.UUID) {
	if s.cache == nil {
		return
	}
	appts, err := s.repo.ListByRecurrence(ctx, recurrenceID)
	if err == nil && len(appts) > 0 {
		s.invalidate(ctx, appts[0].ProfessionalID)
		return
	}
	s.cache.InvalidateGrid(ctx, "*")
}
