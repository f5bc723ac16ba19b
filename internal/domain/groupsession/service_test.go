package groupsession

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

type memSessionRepo struct {
	sessions map[uuid.UUID]*Session
	members  map[uuid.UUID]*Member
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		sessions: make(map[uuid.UUID]*Session),
		members:  make(map[uuid.UUID]*Member),
	}
}

func (r *memSessionRepo) Create(_ context.Context, s *Session) error {
	s.ID = uuid.New()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Update(_ context.Context, s *Session) error {
	if _, ok := r.sessions[s.ID]; !ok {
		return errors.New("no rows")
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) ListByDate(_ context.Context, date time.Time, facilitatorID *uuid.UUID) ([]*Session, error) {
	var out []*Session
	for _, s := range r.sessions {
		if s.ScheduledAt.Year() != date.Year() || s.ScheduledAt.YearDay() != date.YearDay() {
			continue
		}
		if facilitatorID != nil && s.FacilitatorID != *facilitatorID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memSessionRepo) ListBySeries(_ context.Context, seriesID uuid.UUID) ([]*Session, error) {
	var out []*Session
	for _, s := range r.sessions {
		if s.SeriesID != nil && *s.SeriesID == seriesID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) AddMember(_ context.Context, m *Member) error {
	m.ID = uuid.New()
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r *memSessionRepo) RemoveMember(_ context.Context, sessionID, patientID uuid.UUID) error {
	for id, m := range r.members {
		if m.SessionID == sessionID && m.PatientID == patientID {
			delete(r.members, id)
		}
	}
	return nil
}

func (r *memSessionRepo) ListMembers(_ context.Context, sessionID uuid.UUID) ([]*Member, error) {
	var out []*Member
	for _, m := range r.members {
		if m.SessionID == sessionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) UpdateMember(_ context.Context, m *Member) error {
	if _, ok := r.members[m.ID]; !ok {
		return errors.New("no rows")
	}
	cp := *m
	r.members[m.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetMember(_ context.Context, sessionID, patientID uuid.UUID) (*Member, error) {
	for _, m := range r.members {
		if m.SessionID == sessionID && m.PatientID == patientID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errors.New("no rows")
}

type memSeriesRepo struct {
	series map[uuid.UUID]*Series
}

func newMemSeriesRepo() *memSeriesRepo {
	return &memSeriesRepo{series: make(map[uuid.UUID]*Series)}
}

func (r *memSeriesRepo) Create(_ context.Context, s *Series) error {
	s.ID = uuid.New()
	cp := *s
	cp.Exceptions = append([]string(nil), s.Exceptions...)
	r.series[s.ID] = &cp
	return nil
}

func (r *memSeriesRepo) GetByID(_ context.Context, id uuid.UUID) (*Series, error) {
	s, ok := r.series[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *s
	cp.Exceptions = append([]string(nil), s.Exceptions...)
	return &cp, nil
}

func (r *memSeriesRepo) Update(_ context.Context, s *Series) error {
	if _, ok := r.series[s.ID]; !ok {
		return errors.New("no rows")
	}
	cp := *s
	cp.Exceptions = append([]string(nil), s.Exceptions...)
	r.series[s.ID] = &cp
	return nil
}

func newTestService() (*Service, *memSessionRepo, *memSeriesRepo) {
	sessions := newMemSessionRepo()
	series := newMemSeriesRepo()
	return NewService(sessions, series, zerolog.Nop()), sessions, series
}

func at(y int, m time.Month, d, hour, min int) time.Time {
	return time.Date(y, m, d, hour, min, 0, 0, time.UTC)
}

func intPtr(n int) *int { return &n }

func weeklyInput(members []uuid.UUID, occurrences int) CreateSeriesInput {
	return CreateSeriesInput{
		Name:            "grupo de apoio",
		FacilitatorID:   uuid.New(),
		StartAt:         at(2024, 3, 4, 18, 0),
		DurationMinutes: 90,
		MemberIDs:       members,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Weekly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(occurrences),
		},
	}
}

func TestCreateSeries_SingleSession(t *testing.T) {
	svc, _, _ := newTestService()
	members := []uuid.UUID{uuid.New(), uuid.New()}

	result, err := svc.CreateSeries(context.Background(), CreateSeriesInput{
		Name:            "grupo de apoio",
		FacilitatorID:   uuid.New(),
		StartAt:         at(2024, 3, 4, 18, 0),
		DurationMinutes: 90,
		MemberIDs:       members,
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result.Sessions))
	}
	if result.Series != nil {
		t.Error("single session must not create a series")
	}
	got, err := svc.Members(context.Background(), result.Sessions[0].ID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 enrolled members, got %d", len(got))
	}
}

func TestCreateSeries_WeeklyMaterializesAllOccurrences(t *testing.T) {
	svc, _, _ := newTestService()
	members := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	result, err := svc.CreateSeries(context.Background(), weeklyInput(members, 4))
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	if len(result.Sessions) != 4 {
		t.Fatalf("expected 4 sessions, got %d", len(result.Sessions))
	}
	if result.Series == nil {
		t.Fatal("expected a series")
	}
	for i, sess := range result.Sessions {
		want := at(2024, 3, 4, 18, 0).AddDate(0, 0, 7*i)
		if !sess.ScheduledAt.Equal(want) {
			t.Errorf("occurrence %d at %v, want %v", i+1, sess.ScheduledAt, want)
		}
		if sess.SeriesID == nil || *sess.SeriesID != result.Series.ID {
			t.Errorf("occurrence %d not linked to the series", i+1)
		}
		got, err := svc.Members(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("Members: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("occurrence %d has %d members, want 3", i+1, len(got))
		}
	}
}

func TestCreateSeries_OptionalFieldsStayNull(t *testing.T) {
	svc, sessions, _ := newTestService()
	patient := uuid.New()

	result, err := svc.CreateSeries(context.Background(), CreateSeriesInput{
		Name:            "grupo",
		FacilitatorID:   uuid.New(),
		StartAt:         at(2024, 3, 4, 18, 0),
		DurationMinutes: 60,
		MemberIDs:       []uuid.UUID{patient},
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}

	stored := sessions.sessions[result.Sessions[0].ID]
	if stored.Location != nil || stored.Topic != nil || stored.Notes != nil {
		t.Error("omitted location/topic/notes must be stored as nil")
	}
	if stored.CoFacilitatorID != nil || stored.MaxParticipants != nil {
		t.Error("omitted co-facilitator and capacity must be stored as nil")
	}

	m, err := svc.Enroll(context.Background(), result.Sessions[0].ID, uuid.New())
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if m.Note != nil || m.Status != nil {
		t.Error("fresh enrollment must carry nil note and attendance")
	}
}

func TestCreateSeries_InvalidInput(t *testing.T) {
	svc, _, _ := newTestService()
	dup := uuid.New()

	cases := []struct {
		name string
		in   CreateSeriesInput
	}{
		{"missing name", CreateSeriesInput{FacilitatorID: uuid.New(), StartAt: at(2024, 3, 4, 18, 0), DurationMinutes: 60}},
		{"missing facilitator", CreateSeriesInput{Name: "g", StartAt: at(2024, 3, 4, 18, 0), DurationMinutes: 60}},
		{"zero start", CreateSeriesInput{Name: "g", FacilitatorID: uuid.New(), DurationMinutes: 60}},
		{"zero duration", CreateSeriesInput{Name: "g", FacilitatorID: uuid.New(), StartAt: at(2024, 3, 4, 18, 0)}},
		{"over capacity", CreateSeriesInput{
			Name: "g", FacilitatorID: uuid.New(), StartAt: at(2024, 3, 4, 18, 0), DurationMinutes: 60,
			MaxParticipants: intPtr(1), MemberIDs: []uuid.UUID{uuid.New(), uuid.New()},
		}},
		{"duplicate member", CreateSeriesInput{
			Name: "g", FacilitatorID: uuid.New(), StartAt: at(2024, 3, 4, 18, 0), DurationMinutes: 60,
			MemberIDs: []uuid.UUID{dup, dup},
		}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateSeries(context.Background(), tc.in); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestEnroll_CapacityAndDuplicates(t *testing.T) {
	svc, _, _ := newTestService()
	first := uuid.New()

	result, err := svc.CreateSeries(context.Background(), CreateSeriesInput{
		Name:            "grupo fechado",
		FacilitatorID:   uuid.New(),
		StartAt:         at(2024, 3, 4, 18, 0),
		DurationMinutes: 60,
		MaxParticipants: intPtr(2),
		MemberIDs:       []uuid.UUID{first},
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	sessionID := result.Sessions[0].ID

	if _, err := svc.Enroll(context.Background(), sessionID, first); !errors.Is(err, ErrAlreadyEnrolled) {
		t.Errorf("re-enrolling got %v, want ErrAlreadyEnrolled", err)
	}
	if _, err := svc.Enroll(context.Background(), sessionID, uuid.New()); err != nil {
		t.Fatalf("second enrollment: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), sessionID, uuid.New()); !errors.Is(err, ErrSessionFull) {
		t.Errorf("enrolling past capacity got %v, want ErrSessionFull", err)
	}
}

func TestRecordAttendance(t *testing.T) {
	svc, _, _ := newTestService()
	patient := uuid.New()

	result, err := svc.CreateSeries(context.Background(), CreateSeriesInput{
		Name:            "grupo",
		FacilitatorID:   uuid.New(),
		StartAt:         at(2024, 3, 4, 18, 0),
		DurationMinutes: 60,
		MemberIDs:       []uuid.UUID{patient},
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	sessionID := result.Sessions[0].ID

	m, err := svc.RecordAttendance(context.Background(), sessionID, patient, AttendancePresente, nil)
	if err != nil {
		t.Fatalf("RecordAttendance: %v", err)
	}
	if m.Status == nil || *m.Status != AttendancePresente {
		t.Error("attendance status not recorded")
	}

	if _, err := svc.RecordAttendance(context.Background(), sessionID, uuid.New(), AttendancePresente, nil); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("unknown member got %v, want ErrMemberNotFound", err)
	}
	if _, err := svc.RecordAttendance(context.Background(), sessionID, patient, "TALVEZ", nil); !errors.Is(err, ErrInvalidAttendance) {
		t.Errorf("bad status got %v, want ErrInvalidAttendance", err)
	}
}

func TestSkipRestoreOccurrence(t *testing.T) {
	svc, sessions, _ := newTestService()

	result, err := svc.CreateSeries(context.Background(), weeklyInput([]uuid.UUID{uuid.New()}, 3))
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	seriesID := result.Series.ID
	secondDate := at(2024, 3, 11, 0, 0)
	rowsBefore := len(sessions.sessions)

	ser, err := svc.SkipOccurrence(context.Background(), seriesID, secondDate)
	if err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}
	if !ser.Skipped("2024-03-11") {
		t.Error("date not in the exception set after skip")
	}
	if len(sessions.sessions) != rowsBefore {
		t.Error("skip must not touch session rows")
	}

	// The skipped occurrence vanishes from the day listing.
	listed, err := svc.ListForDate(context.Background(), secondDate, nil)
	if err != nil {
		t.Fatalf("ListForDate: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("skipped occurrence still listed: %d sessions", len(listed))
	}

	ser, err = svc.RestoreOccurrence(context.Background(), seriesID, secondDate)
	if err != nil {
		t.Fatalf("RestoreOccurrence: %v", err)
	}
	if ser.Skipped("2024-03-11") {
		t.Error("date still skipped after restore")
	}
	listed, err = svc.ListForDate(context.Background(), secondDate, nil)
	if err != nil {
		t.Fatalf("ListForDate: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("restored occurrence not listed: %d sessions", len(listed))
	}
}

func TestSkipOccurrence_Errors(t *testing.T) {
	svc, _, _ := newTestService()

	result, err := svc.CreateSeries(context.Background(), weeklyInput(nil, 3))
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	seriesID := result.Series.ID

	// Tuesday is not an occurrence of a Monday weekly series.
	if _, err := svc.SkipOccurrence(context.Background(), seriesID, at(2024, 3, 12, 0, 0)); !errors.Is(err, ErrOccurrenceNotFound) {
		t.Errorf("non-occurrence got %v, want ErrOccurrenceNotFound", err)
	}
	if _, err := svc.SkipOccurrence(context.Background(), seriesID, at(2024, 3, 11, 0, 0)); err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}
	if _, err := svc.SkipOccurrence(context.Background(), seriesID, at(2024, 3, 11, 0, 0)); !errors.Is(err, ErrAlreadySkipped) {
		t.Errorf("double skip got %v, want ErrAlreadySkipped", err)
	}
	if _, err := svc.RestoreOccurrence(context.Background(), seriesID, at(2024, 3, 18, 0, 0)); !errors.Is(err, ErrNotSkipped) {
		t.Errorf("restoring unskipped got %v, want ErrNotSkipped", err)
	}
	if _, err := svc.SkipOccurrence(context.Background(), uuid.New(), at(2024, 3, 11, 0, 0)); !errors.Is(err, ErrSeriesNotFound) {
		t.Errorf("unknown series got %v, want ErrSeriesNotFound", err)
	}
}

func TestDeactivateSeries(t *testing.T) {
	svc, _, series := newTestService()

	result, err := svc.CreateSeries(context.Background(), weeklyInput(nil, 2))
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	if err := svc.DeactivateSeries(context.Background(), result.Series.ID); err != nil {
		t.Fatalf("DeactivateSeries: %v", err)
	}
	stored := series.series[result.Series.ID]
	if stored.IsActive {
		t.Error("series still active after deactivation")
	}
}
