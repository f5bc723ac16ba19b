// Package sandbox seeds demo data for development and on-boarding: a set of
// professionals with weekly working hours, patients, and a mix of one-off
// and recurring appointments. Output is reproducible for a fixed seed.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
	"github.com/marvingbh/clinica-sub001/internal/domain/availability"
	"github.com/marvingbh/clinica-sub001/pkg/recur"
)

// SeedConfig controls the volume of generated demo data.
type SeedConfig struct {
	Professionals          int   `json:"professionals"`
	Patients               int   `json:"patients"`
	AppointmentsPerPatient int   `json:"appointments_per_patient"`
	WeeklySeriesCount      int   `json:"weekly_series_count"`
	BiweeklySeriesCount    int   `json:"biweekly_series_count"`
	Seed                   int64 `json:"seed"`
}

// DefaultSeedConfig returns volumes suitable for a demo clinic.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Professionals:          5,
		Patients:               40,
		AppointmentsPerPatient: 2,
		WeeklySeriesCount:      6,
		BiweeklySeriesCount:    4,
		Seed:                   42,
	}
}

// SeedResult summarizes what was created.
type SeedResult struct {
	Professionals int `json:"professionals"`
	Patients      int `json:"patients"`
	Rules         int `json:"rules"`
	Appointments  int `json:"appointments"`
	Series        int `json:"series"`
}

type Seeder struct {
	pool  *pgxpool.Pool
	avail *availability.Service
	appts *appointment.Service
	log   zerolog.Logger
}

func NewSeeder(pool *pgxpool.Pool, avail *availability.Service, appts *appointment.Service, log zerolog.Logger) *Seeder {
	return &Seeder{pool: pool, avail: avail, appts: appts, log: log}
}

var specialties = []string{
	"Psicologia Clínica", "Psiquiatria", "Terapia Cognitivo-Comportamental",
	"Psicologia Infantil", "Neuropsicologia",
}

// Seed populates the database. Existing rows are left alone; the seeder only
// adds, so it is safe to run against a non-empty development database.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	faker := gofakeit.New(uint64(cfg.Seed))
	result := &SeedResult{}

	professionals, err := s.seedProfessionals(ctx, faker, cfg.Professionals)
	if err != nil {
		return nil, err
	}
	result.Professionals = len(professionals)

	patients, err := s.seedPatients(ctx, faker, cfg.Patients)
	if err != nil {
		return nil, err
	}
	result.Patients = len(patients)

	for _, pid := range professionals {
		n, err := s.seedWeekSchedule(ctx, pid)
		if err != nil {
			return nil, err
		}
		result.Rules += n
	}

	start := nextMonday(time.Now())
	for i, patientID := range patients {
		for j := 0; j < cfg.AppointmentsPerPatient; j++ {
			professionalID := professionals[(i+j)%len(professionals)]
			at := demoSlot(start, i, j)
			_, err := s.appts.CreateSeries(ctx, appointment.CreateSeriesInput{
				ProfessionalID:  professionalID,
				PatientID:       patientID,
				StartAt:         at,
				DurationMinutes: 30,
				Modality:        demoModality(faker),
			})
			if err != nil {
				// Conflicts between generated bookings are expected; skip them.
				var conflict *appointment.OccurrenceConflictError
				if errors.As(err, &conflict) {
					continue
				}
				return nil, fmt.Errorf("seed appointment: %w", err)
			}
			result.Appointments++
		}
	}

	series, err := s.seedSeries(ctx, faker, professionals, patients, start, cfg)
	if err != nil {
		return nil, err
	}
	result.Series = series

	s.log.Info().
		Int("professionals", result.Professionals).
		Int("patients", result.Patients).
		Int("rules", result.Rules).
		Int("appointments", result.Appointments).
		Int("series", result.Series).
		Msg("sandbox data seeded")
	return result, nil
}

func (s *Seeder) seedProfessionals(ctx context.Context, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := faker.Name()
		specialty := specialties[i%len(specialties)]
		email := faker.Email()
		_, err := s.pool.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, email)
			VALUES ($1,$2,$3,$4)`, id, name, specialty, email)
		if err != nil {
			return nil, fmt.Errorf("seed professional: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Seeder) seedPatients(ctx context.Context, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := s.pool.Exec(ctx, `
			INSERT INTO patients (id, name, email, phone)
			VALUES ($1,$2,$3,$4)`, id, faker.Name(), faker.Email(), faker.Phone())
		if err != nil {
			return nil, fmt.Errorf("seed patient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// seedWeekSchedule gives a professional the clinic's standard week: morning
// and afternoon blocks, Monday through Friday.
func (s *Seeder) seedWeekSchedule(ctx context.Context, professionalID uuid.UUID) (int, error) {
	created := 0
	for day := 1; day <= 5; day++ {
		for _, window := range [][2]string{{"08:00", "12:00"}, {"13:00", "18:00"}} {
			rule := &availability.Rule{
				ProfessionalID: professionalID,
				DayOfWeek:      day,
				StartTime:      window[0],
				EndTime:        window[1],
				IsActive:       true,
			}
			if err := s.avail.CreateRule(ctx, rule); err != nil {
				return created, fmt.Errorf("seed rule: %w", err)
			}
			created++
		}
	}
	return created, nil
}

func (s *Seeder) seedSeries(ctx context.Context, faker *gofakeit.Faker, professionals, patients []uuid.UUID, start time.Time, cfg SeedConfig) (int, error) {
	created := 0
	specs := make([]appointment.RecurrenceSpec, 0, cfg.WeeklySeriesCount+cfg.BiweeklySeriesCount)
	for i := 0; i < cfg.WeeklySeriesCount; i++ {
		n := 8
		specs = append(specs, appointment.RecurrenceSpec{
			Type: recur.Weekly, EndType: recur.ByOccurrences, Occurrences: &n,
		})
	}
	for i := 0; i < cfg.BiweeklySeriesCount; i++ {
		n := 6
		specs = append(specs, appointment.RecurrenceSpec{
			Type: recur.Biweekly, EndType: recur.ByOccurrences, Occurrences: &n,
		})
	}

	for i := range specs {
		spec := specs[i]
		patientID := patients[i%len(patients)]
		professionalID := professionals[i%len(professionals)]
		at := demoSlot(start, i, len(specs))
		_, err := s.appts.CreateSeries(ctx, appointment.CreateSeriesInput{
			ProfessionalID:  professionalID,
			PatientID:       patientID,
			StartAt:         at,
			DurationMinutes: 30,
			Modality:        demoModality(faker),
			Recurrence:      &spec,
		})
		if err != nil {
			var conflict *appointment.OccurrenceConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return created, fmt.Errorf("seed series: %w", err)
		}
		created++
	}
	return created, nil
}

// demoSlot spreads bookings over weekdays and half-hour marks so generated
// data mostly avoids conflicts without tracking occupancy.
func demoSlot(start time.Time, i, j int) time.Time {
	day := (i + j) % 5
	halfHour := (i*3 + j*7) % 18 // 09:00 through 17:30
	return start.AddDate(0, 0, day).
		Add(time.Duration(9*60+halfHour*30) * time.Minute)
}

func demoModality(faker *gofakeit.Faker) appointment.Modality {
	if faker.Bool() {
		return appointment.ModalityOnline
	}
	return appointment.ModalityPresencial
}

// nextMonday returns the first Monday after t, at midnight.
func nextMonday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (8 - int(day.Weekday())) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}
