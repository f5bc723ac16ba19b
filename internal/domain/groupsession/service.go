package groupsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

var (
	ErrNotFound           = errors.New("group session not found")
	ErrSeriesNotFound     = errors.New("group series not found")
	ErrMemberNotFound     = errors.New("member not enrolled in this session")
	ErrInvalidStatus      = errors.New("invalid group session status")
	ErrInvalidAttendance  = errors.New("invalid attendance status")
	ErrInvalidDuration    = errors.New("durationMinutes must be positive")
	ErrSessionFull        = errors.New("session is at maximum capacity")
	ErrAlreadyEnrolled    = errors.New("patient already enrolled in this session")
	ErrOccurrenceNotFound = errors.New("date is not an occurrence of this series")
	ErrAlreadySkipped     = errors.New("occurrence is already skipped")
	ErrNotSkipped         = errors.New("occurrence is not skipped")
)

// CreateSeriesInput describes a new group: a single session, or the first
// occurrence of a recurring series when Recurrence is set. Every occurrence
// starts with the same member list.
type CreateSeriesInput struct {
	Name            string          `json:"name"`
	FacilitatorID   uuid.UUID       `json:"facilitator_id"`
	CoFacilitatorID *uuid.UUID      `json:"co_facilitator_id"`
	StartAt         time.Time       `json:"start_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Location        *string         `json:"location"`
	MaxParticipants *int            `json:"max_participants"`
	Topic           *string         `json:"topic"`
	MemberIDs       []uuid.UUID     `json:"member_ids"`
	Recurrence      *RecurrenceSpec `json:"recurrence"`
}

// RecurrenceSpec is the client-facing series definition.
type RecurrenceSpec struct {
	Type        recur.Type    `json:"type"`
	EndType     recur.EndType `json:"end_type"`
	EndDate     *time.Time    `json:"end_date"`
	Occurrences *int          `json:"occurrences"`
}

// CreateSeriesResult carries everything materialized by one request.
type CreateSeriesResult struct {
	Sessions []*Session `json:"sessions"`
	Series   *Series    `json:"series,omitempty"`
}

type Service struct {
	sessions SessionRepository
	series   SeriesRepository
	log      zerolog.Logger
}

func NewService(sessions SessionRepository, series SeriesRepository, log zerolog.Logger) *Service {
	return &Service{sessions: sessions, series: series, log: log}
}

// CreateSeries materializes a group session, or a whole recurring series
// with one session row per occurrence, each carrying the full member list.
func (s *Service) CreateSeries(ctx context.Context, in CreateSeriesInput) (*CreateSeriesResult, error) {
	if in.Name == "" {
		return nil, errors.New("name is required")
	}
	if in.FacilitatorID == uuid.Nil {
		return nil, errors.New("facilitatorId is required")
	}
	if in.StartAt.IsZero() {
		return nil, errors.New("startAt is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if in.MaxParticipants != nil && len(in.MemberIDs) > *in.MaxParticipants {
		return nil, ErrSessionFull
	}
	if err := uniqueMembers(in.MemberIDs); err != nil {
		return nil, err
	}

	dates := []time.Time{in.StartAt}
	var series *Series
	if in.Recurrence != nil {
		def := recur.Definition{
			Type:        in.Recurrence.Type,
			EndType:     in.Recurrence.EndType,
			StartDate:   in.StartAt,
			EndDate:     in.Recurrence.EndDate,
			Occurrences: in.Recurrence.Occurrences,
		}
		var err error
		dates, err = recur.Expand(def)
		if err != nil {
			return nil, err
		}
		series = &Series{
			Type:        def.Type,
			EndType:     def.EndType,
			StartDate:   def.StartDate,
			EndDate:     def.EndDate,
			Occurrences: def.Occurrences,
			IsActive:    true,
			Exceptions:  []string{},
		}
		if err := s.series.Create(ctx, series); err != nil {
			return nil, fmt.Errorf("create series: %w", err)
		}
	}

	result := &CreateSeriesResult{Series: series}
	for i, at := range dates {
		sess := &Session{
			Name:            in.Name,
			FacilitatorID:   in.FacilitatorID,
			CoFacilitatorID: in.CoFacilitatorID,
			Status:          StatusAgendada,
			ScheduledAt:     at,
			EndAt:           at.Add(time.Duration(in.DurationMinutes) * time.Minute),
			Location:        in.Location,
			MaxParticipants: in.MaxParticipants,
			Topic:           in.Topic,
		}
		if series != nil {
			sess.SeriesID = &series.ID
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return nil, fmt.Errorf("create occurrence %d (%s): %w", i+1, at.Format("2006-01-02"), err)
		}
		for _, pid := range in.MemberIDs {
			m := &Member{SessionID: sess.ID, PatientID: pid}
			if err := s.sessions.AddMember(ctx, m); err != nil {
				return nil, fmt.Errorf("enroll member in occurrence %d: %w", i+1, err)
			}
		}
		result.Sessions = append(result.Sessions, sess)
	}

	if series != nil {
		s.log.Info().Str("series_id", series.ID.String()).Int("occurrences", len(dates)).
			Int("members", len(in.MemberIDs)).Msg("group session series created")
	}
	return result, nil
}

func uniqueMembers(ids []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return ErrAlreadyEnrolled
		}
		seen[id] = true
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Service) Update(ctx context.Context, sess *Session) error {
	existing, err := s.sessions.GetByID(ctx, sess.ID)
	if err != nil {
		return ErrNotFound
	}
	if !ValidStatus(sess.Status) {
		return ErrInvalidStatus
	}
	sess.FacilitatorID = existing.FacilitatorID
	sess.SeriesID = existing.SeriesID
	if err := s.sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("update group session: %w", err)
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		return ErrNotFound
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete group session: %w", err)
	}
	return nil
}

// ListForDate returns the date's sessions with skipped series occurrences
// removed, the same visibility rule appointments follow.
func (s *Service) ListForDate(ctx context.Context, date time.Time, facilitatorID *uuid.UUID) ([]*Session, error) {
	all, err := s.sessions.ListByDate(ctx, date, facilitatorID)
	if err != nil {
		return nil, fmt.Errorf("list group sessions: %w", err)
	}
	iso := date.Format("2006-01-02")
	var out []*Session
	for _, sess := range all {
		if sess.SeriesID != nil {
			ser, err := s.series.GetByID(ctx, *sess.SeriesID)
			if err == nil && ser.Skipped(iso) {
				continue
			}
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Service) ListBySeries(ctx context.Context, seriesID uuid.UUID) ([]*Session, error) {
	if _, err := s.series.GetByID(ctx, seriesID); err != nil {
		return nil, ErrSeriesNotFound
	}
	return s.sessions.ListBySeries(ctx, seriesID)
}

func (s *Service) GetSeries(ctx context.Context, id uuid.UUID) (*Series, error) {
	ser, err := s.series.GetByID(ctx, id)
	if err != nil {
		return nil, ErrSeriesNotFound
	}
	return ser, nil
}

// Enroll adds a patient to one session occurrence, honoring capacity.
func (s *Service) Enroll(ctx context.Context, sessionID, patientID uuid.UUID) (*Member, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, ErrNotFound
	}
	members, err := s.sessions.ListMembers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.PatientID == patientID {
			return nil, ErrAlreadyEnrolled
		}
	}
	if sess.MaxParticipants != nil && len(members) >= *sess.MaxParticipants {
		return nil, ErrSessionFull
	}
	m := &Member{SessionID: sessionID, PatientID: patientID}
	if err := s.sessions.AddMember(ctx, m); err != nil {
		return nil, fmt.Errorf("enroll member: %w", err)
	}
	s.log.Info().Str("session_id", sessionID.String()).Str("patient_id", patientID.String()).Msg("member enrolled")
	return m, nil
}

func (s *Service) Unenroll(ctx context.Context, sessionID, patientID uuid.UUID) error {
	if _, err := s.sessions.GetMember(ctx, sessionID, patientID); err != nil {
		return ErrMemberNotFound
	}
	return s.sessions.RemoveMember(ctx, sessionID, patientID)
}

func (s *Service) Members(ctx context.Context, sessionID uuid.UUID) ([]*Member, error) {
	if _, err := s.sessions.GetByID(ctx, sessionID); err != nil {
		return nil, ErrNotFound
	}
	return s.sessions.ListMembers(ctx, sessionID)
}

// RecordAttendance sets one member's attendance for one occurrence.
func (s *Service) RecordAttendance(ctx context.Context, sessionID, patientID uuid.UUID, status AttendanceStatus, note *string) (*Member, error) {
	if !ValidAttendanceStatus(status) {
		return nil, ErrInvalidAttendance
	}
	m, err := s.sessions.GetMember(ctx, sessionID, patientID)
	if err != nil {
		return nil, ErrMemberNotFound
	}
	m.Status = &status
	if note != nil {
		m.Note = note
	}
	if err := s.sessions.UpdateMember(ctx, m); err != nil {
		return nil, fmt.Errorf("record attendance: %w", err)
	}
	return m, nil
}

// SkipOccurrence adds the date to the series' exception set; session rows
// stay in place so the skip can be undone.
func (s *Service) SkipOccurrence(ctx context.Context, seriesID uuid.UUID, date time.Time) (*Series, error) {
	ser, err := s.series.GetByID(ctx, seriesID)
	if err != nil {
		return nil, ErrSeriesNotFound
	}
	if !isOccurrence(ser, date) {
		return nil, ErrOccurrenceNotFound
	}
	iso := date.Format("2006-01-02")
	if ser.Skipped(iso) {
		return nil, ErrAlreadySkipped
	}
	ser.Exceptions = append(ser.Exceptions, iso)
	if err := s.series.Update(ctx, ser); err != nil {
		return nil, fmt.Errorf("skip occurrence: %w", err)
	}
	s.log.Info().Str("series_id", seriesID.String()).Str("date", iso).Msg("group occurrence skipped")
	return ser, nil
}

// RestoreOccurrence removes the date from the exception set.
func (s *Service) RestoreOccurrence(ctx context.Context, seriesID uuid.UUID, date time.Time) (*Series, error) {
	ser, err := s.series.GetByID(ctx, seriesID)
	if err != nil {
		return nil, ErrSeriesNotFound
	}
	iso := date.Format("2006-01-02")
	if !ser.Skipped(iso) {
		return nil, ErrNotSkipped
	}
	kept := ser.Exceptions[:0]
	for _, d := range ser.Exceptions {
		if d != iso {
			kept = append(kept, d)
		}
	}
	ser.Exceptions = kept
	if err := s.series.Update(ctx, ser); err != nil {
		return nil, fmt.Errorf("restore occurrence: %w", err)
	}
	s.log.Info().Str("series_id", seriesID.String()).Str("date", iso).Msg("group occurrence restored")
	return ser, nil
}

// DeactivateSeries stops the series without touching materialized sessions.
func (s *Service) DeactivateSeries(ctx context.Context, seriesID uuid.UUID) error {
	ser, err := s.series.GetByID(ctx, seriesID)
	if err != nil {
		return ErrSeriesNotFound
	}
	ser.IsActive = false
	if err := s.series.Update(ctx, ser); err != nil {
		return fmt.Errorf("deactivate series: %w", err)
	}
	return nil
}

func isOccurrence(ser *Series, date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	window, err := recur.ExpandWindow(ser.Definition(), day, day.AddDate(0, 0, 1))
	if err != nil {
		return false
	}
	return len(window) > 0
}
