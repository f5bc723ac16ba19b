package appointment

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

// -- in-memory fakes --

type memRepo struct {
	items []*Appointment
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	cp := *a
	m.items = append(m.items, &cp)
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	for _, a := range m.items {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, errors.New("no rows")
}

func (m *memRepo) Update(_ context.Context, a *Appointment) error {
	for i, cur := range m.items {
		if cur.ID == a.ID {
			cp := *a
			m.items[i] = &cp
			return nil
		}
	}
	return errors.New("no rows")
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, a := range m.items {
		if a.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return errors.New("no rows")
}

func (m *memRepo) ListByDate(_ context.Context, date time.Time, professionalID *uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.ScheduledAt.Year() == date.Year() && a.ScheduledAt.YearDay() == date.YearDay() {
			if professionalID == nil || a.ProfessionalID == *professionalID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (m *memRepo) ListByRecurrence(_ context.Context, recurrenceID uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.RecurrenceID != nil && *a.RecurrenceID == recurrenceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) ActiveExistsAt(_ context.Context, professionalID uuid.UUID, at time.Time) (bool, error) {
	for _, a := range m.items {
		if a.ProfessionalID == professionalID && a.ScheduledAt.Equal(at) && a.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

type memRecurRepo struct {
	items map[uuid.UUID]*Recurrence
}

func newMemRecurRepo() *memRecurRepo {
	return &memRecurRepo{items: map[uuid.UUID]*Recurrence{}}
}

func (m *memRecurRepo) Create(_ context.Context, r *Recurrence) error {
	r.ID = uuid.New()
	cp := *r
	cp.Exceptions = append([]string{}, r.Exceptions...)
	m.items[r.ID] = &cp
	return nil
}

func (m *memRecurRepo) GetByID(_ context.Context, id uuid.UUID) (*Recurrence, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	cp := *r
	cp.Exceptions = append([]string{}, r.Exceptions...)
	return &cp, nil
}

func (m *memRecurRepo) Update(_ context.Context, r *Recurrence) error {
	if _, ok := m.items[r.ID]; !ok {
		return errors.New("no rows")
	}
	cp := *r
	cp.Exceptions = append([]string{}, r.Exceptions...)
	m.items[r.ID] = &cp
	return nil
}

func (m *memRecurRepo) ListActiveIndefinite(_ context.Context) ([]*Recurrence, error) {
	var out []*Recurrence
	for _, r := range m.items {
		if r.IsActive && r.EndType == recur.Indefinite {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecurRepo) ListForAppointments(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*Recurrence, error) {
	out := map[uuid.UUID]*Recurrence{}
	for _, id := range ids {
		if r, ok := m.items[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func newTestService() (*Service, *memRepo, *memRecurRepo) {
	repo := &memRepo{}
	recs := newMemRecurRepo()
	log := zerolog.New(os.Stderr)
	return NewService(repo, recs, nil, log), repo, recs
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func intPtr(n int) *int { return &n }

// -- tests --

func TestCreateSeries_Single(t *testing.T) {
	svc, repo, _ := newTestService()
	in := CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 09:30"),
		DurationMinutes: 50,
		Modality:        ModalityPresencial,
	}
	result, err := svc.CreateSeries(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	if len(result.Appointments) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(result.Appointments))
	}
	if result.Recurrence != nil {
		t.Error("single booking should not create a recurrence")
	}
	appt := result.Appointments[0]
	if appt.Status != StatusAgendado {
		t.Errorf("expected AGENDADO, got %s", appt.Status)
	}
	if !appt.EndAt.Equal(appt.ScheduledAt.Add(50 * time.Minute)) {
		t.Errorf("unexpected end time %s", appt.EndAt)
	}
	if len(repo.items) != 1 {
		t.Errorf("expected 1 persisted row, got %d", len(repo.items))
	}
}

func TestCreateSeries_BiweeklyCadence(t *testing.T) {
	svc, repo, _ := newTestService()
	in := CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Biweekly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(3),
		},
	}
	result, err := svc.CreateSeries(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	want := []string{"2024-03-04", "2024-03-18", "2024-04-01"}
	if len(result.Appointments) != len(want) {
		t.Fatalf("expected %d appointments, got %d", len(want), len(result.Appointments))
	}
	for i, w := range want {
		got := result.Appointments[i].ScheduledAt.Format("2006-01-02")
		if got != w {
			t.Errorf("occurrence %d on %s, want %s", i, got, w)
		}
		if result.Appointments[i].RecurrenceID == nil || *result.Appointments[i].RecurrenceID != result.Recurrence.ID {
			t.Errorf("occurrence %d not linked to the series", i)
		}
	}
	if len(repo.items) != 3 {
		t.Errorf("expected 3 persisted rows, got %d", len(repo.items))
	}
}

func TestCreateSeries_MonthlyClamp(t *testing.T) {
	svc, _, _ := newTestService()
	in := CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-01-31 14:00"),
		DurationMinutes: 50,
		Modality:        ModalityPresencial,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Monthly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(3),
		},
	}
	result, err := svc.CreateSeries(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31"}
	for i, w := range want {
		got := result.Appointments[i].ScheduledAt.Format("2006-01-02")
		if got != w {
			t.Errorf("occurrence %d on %s, want %s", i, got, w)
		}
	}
}

func TestCreateSeries_ConflictReportsOccurrenceIndex(t *testing.T) {
	svc, repo, _ := newTestService()
	professionalID := uuid.New()

	// Pre-book the professional on what will be the second occurrence.
	blocker := CreateSeriesInput{
		ProfessionalID:  professionalID,
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-11 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityPresencial,
	}
	if _, err := svc.CreateSeries(context.Background(), blocker); err != nil {
		t.Fatalf("setup booking: %v", err)
	}

	in := CreateSeriesInput{
		ProfessionalID:  professionalID,
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityPresencial,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Weekly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(4),
		},
	}
	_, err := svc.CreateSeries(context.Background(), in)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var conflict *OccurrenceConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected OccurrenceConflictError, got %T: %v", err, err)
	}
	if conflict.Index != 2 {
		t.Errorf("expected occurrence index 2, got %d", conflict.Index)
	}
	if got := conflict.Date.Format("2006-01-02"); got != "2024-03-11" {
		t.Errorf("expected conflict on 2024-03-11, got %s", got)
	}
	// Nothing from the failed series may be persisted.
	if len(repo.items) != 1 {
		t.Errorf("expected only the setup booking persisted, got %d rows", len(repo.items))
	}
}

func TestCreateSeries_RejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService()
	base := CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityPresencial,
	}

	bad := base
	bad.Modality = "HYBRID"
	if _, err := svc.CreateSeries(context.Background(), bad); !errors.Is(err, ErrInvalidModality) {
		t.Errorf("expected ErrInvalidModality, got %v", err)
	}

	bad = base
	bad.DurationMinutes = 0
	if _, err := svc.CreateSeries(context.Background(), bad); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}

	bad = base
	bad.Recurrence = &RecurrenceSpec{Type: recur.Weekly, EndType: recur.ByOccurrences, Occurrences: intPtr(0)}
	if _, err := svc.CreateSeries(context.Background(), bad); err == nil {
		t.Error("expected error for zero occurrences")
	}

	bad = base
	end := at(t, "2024-02-01 10:00")
	bad.Recurrence = &RecurrenceSpec{Type: recur.Weekly, EndType: recur.ByDate, EndDate: &end}
	if _, err := svc.CreateSeries(context.Background(), bad); err == nil {
		t.Error("expected error for end date before start date")
	}
}

func TestSkipRestoreRoundTrip(t *testing.T) {
	svc, repo, _ := newTestService()
	in := CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Weekly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(4),
		},
	}
	result, err := svc.CreateSeries(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	recID := result.Recurrence.ID
	skipDate := at(t, "2024-03-11 00:00")
	rowsBefore := len(repo.items)

	rec, err := svc.SkipOccurrence(context.Background(), recID, skipDate)
	if err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}
	if len(rec.Exceptions) != 1 || rec.Exceptions[0] != "2024-03-11" {
		t.Errorf("expected exceptions [2024-03-11], got %v", rec.Exceptions)
	}
	if len(repo.items) != rowsBefore {
		t.Error("skip must not delete appointment rows")
	}

	rec, err = svc.RestoreOccurrence(context.Background(), recID, skipDate)
	if err != nil {
		t.Fatalf("RestoreOccurrence: %v", err)
	}
	if len(rec.Exceptions) != 0 {
		t.Errorf("expected empty exceptions after restore, got %v", rec.Exceptions)
	}
	if len(repo.items) != rowsBefore {
		t.Error("restore must not change appointment rows")
	}
}

func TestSkipOccurrence_Errors(t *testing.T) {
	svc, _, _ := newTestService()
	in := CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Weekly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(4),
		},
	}
	result, err := svc.CreateSeries(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	recID := result.Recurrence.ID
	ctx := context.Background()

	// Not an occurrence of the weekly Monday series.
	if _, err := svc.SkipOccurrence(ctx, recID, at(t, "2024-03-12 00:00")); !errors.Is(err, ErrOccurrenceNotFound) {
		t.Errorf("expected ErrOccurrenceNotFound, got %v", err)
	}

	if _, err := svc.SkipOccurrence(ctx, recID, at(t, "2024-03-11 00:00")); err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}
	if _, err := svc.SkipOccurrence(ctx, recID, at(t, "2024-03-11 00:00")); !errors.Is(err, ErrAlreadySkipped) {
		t.Errorf("expected ErrAlreadySkipped, got %v", err)
	}

	if _, err := svc.RestoreOccurrence(ctx, recID, at(t, "2024-03-18 00:00")); !errors.Is(err, ErrNotSkipped) {
		t.Errorf("expected ErrNotSkipped, got %v", err)
	}

	if _, err := svc.SkipOccurrence(ctx, uuid.New(), at(t, "2024-03-11 00:00")); !errors.Is(err, ErrRecurrenceNotFound) {
		t.Errorf("expected ErrRecurrenceNotFound, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, _, _ := newTestService()
	result, err := svc.CreateSeries(context.Background(), CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityPresencial,
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	id := result.Appointments[0].ID
	ctx := context.Background()

	appt, err := svc.UpdateStatus(ctx, id, StatusConfirmado)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if appt.Status != StatusConfirmado {
		t.Errorf("expected CONFIRMADO, got %s", appt.Status)
	}

	if _, err := svc.UpdateStatus(ctx, id, "INVENTADO"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, id, StatusFinalizado); err != nil {
		t.Fatalf("UpdateStatus to terminal: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, id, StatusAgendado); !errors.Is(err, ErrStatusTerminal) {
		t.Errorf("expected ErrStatusTerminal, got %v", err)
	}
}

func TestListDayOccupancy_FiltersCancelledAndSkipped(t *testing.T) {
	svc, _, _ := newTestService()
	professionalID := uuid.New()
	ctx := context.Background()

	// A weekly series with the 2024-03-11 occurrence skipped.
	series, err := svc.CreateSeries(ctx, CreateSeriesInput{
		ProfessionalID:  professionalID,
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-04 09:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
		Recurrence: &RecurrenceSpec{
			Type:        recur.Weekly,
			EndType:     recur.ByOccurrences,
			Occurrences: intPtr(2),
		},
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	if _, err := svc.SkipOccurrence(ctx, series.Recurrence.ID, at(t, "2024-03-11 00:00")); err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}

	// A cancelled appointment on the same day.
	cancelled, err := svc.CreateSeries(ctx, CreateSeriesInput{
		ProfessionalID:  professionalID,
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-11 11:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, cancelled.Appointments[0].ID, StatusCanceladoPaciente); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// A plain active appointment on the same day.
	if _, err := svc.CreateSeries(ctx, CreateSeriesInput{
		ProfessionalID:  professionalID,
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-03-11 14:00"),
		DurationMinutes: 30,
		Modality:        ModalityPresencial,
	}); err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}

	occupancy, err := svc.ListDayOccupancy(ctx, at(t, "2024-03-11 00:00"), &professionalID)
	if err != nil {
		t.Fatalf("ListDayOccupancy: %v", err)
	}
	if len(occupancy) != 1 {
		t.Fatalf("expected 1 occupying appointment, got %d", len(occupancy))
	}
	if got := occupancy[0].ScheduledAt.Format("15:04"); got != "14:00" {
		t.Errorf("expected the 14:00 booking, got %s", got)
	}
}

func TestExtendIndefiniteHorizon(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	result, err := svc.CreateSeries(ctx, CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-01-01 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
		Recurrence: &RecurrenceSpec{
			Type:    recur.Weekly,
			EndType: recur.Indefinite,
		},
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	initial := len(repo.items)
	if initial == 0 {
		t.Fatal("expected eager materialization within the horizon")
	}

	// Three months later the worker pushes the horizon out.
	created, err := svc.ExtendIndefiniteHorizon(ctx, at(t, "2024-04-01 00:00"))
	if err != nil {
		t.Fatalf("ExtendIndefiniteHorizon: %v", err)
	}
	if created == 0 {
		t.Fatal("expected new occurrences to be materialized")
	}
	if len(repo.items) != initial+created {
		t.Errorf("row count %d does not match initial %d + created %d", len(repo.items), initial, created)
	}

	// All rows stay linked to the same series and stay weekly.
	appts, err := svc.ListByRecurrence(ctx, result.Recurrence.ID)
	if err != nil {
		t.Fatalf("ListByRecurrence: %v", err)
	}
	for i := 1; i < len(appts); i++ {
		gap := appts[i].ScheduledAt.Sub(appts[i-1].ScheduledAt)
		if gap != 7*24*time.Hour {
			t.Errorf("gap between occurrence %d and %d is %s, want 168h", i-1, i, gap)
		}
	}
}

func TestExtendIndefiniteHorizon_RespectsSkips(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	result, err := svc.CreateSeries(ctx, CreateSeriesInput{
		ProfessionalID:  uuid.New(),
		PatientID:       uuid.New(),
		StartAt:         at(t, "2024-01-01 10:00"),
		DurationMinutes: 30,
		Modality:        ModalityOnline,
		Recurrence: &RecurrenceSpec{
			Type:    recur.Weekly,
			EndType: recur.Indefinite,
		},
	})
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}

	// Skip a Monday beyond the current horizon, then extend past it.
	skipDate := at(t, "2024-07-15 00:00")
	if _, err := svc.SkipOccurrence(ctx, result.Recurrence.ID, skipDate); err != nil {
		t.Fatalf("SkipOccurrence: %v", err)
	}
	if _, err := svc.ExtendIndefiniteHorizon(ctx, at(t, "2024-06-01 00:00")); err != nil {
		t.Fatalf("ExtendIndefiniteHorizon: %v", err)
	}

	appts, err := svc.ListByRecurrence(ctx, result.Recurrence.ID)
	if err != nil {
		t.Fatalf("ListByRecurrence: %v", err)
	}
	for _, a := range appts {
		if a.ScheduledAt.Format("2006-01-02") == "2024-07-15" {
			t.Error("skipped occurrence was materialized by horizon extension")
		}
	}
}
