// Package recur expands recurring-series definitions into concrete occurrence
// dates. It is a pure date-sequence library: it performs no I/O and has no
// notion of appointments, so it can be used both when materializing a series
// and when previewing one before submission.
package recur

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies the cadence of a recurring series.
type Type string

const (
	Weekly   Type = "WEEKLY"
	Biweekly Type = "BIWEEKLY"
	Monthly  Type = "MONTHLY"
)

// EndType identifies how a recurring series terminates.
type EndType string

const (
	Indefinite    EndType = "INDEFINITE"
	ByDate        EndType = "BY_DATE"
	ByOccurrences EndType = "BY_OCCURRENCES"
)

// IndefiniteHorizonMonths bounds the eager look-ahead window for INDEFINITE
// series. The window is re-extended periodically by the background worker;
// Expand never generates past it.
const IndefiniteHorizonMonths = 6

var (
	ErrInvalidType    = errors.New("recurrenceType must be WEEKLY, BIWEEKLY or MONTHLY")
	ErrInvalidEndType = errors.New("recurrenceEndType must be INDEFINITE, BY_DATE or BY_OCCURRENCES")
	ErrZeroStartDate  = errors.New("startDate is required")
)

// Definition describes one recurring series. StartDate carries the date of
// the first occurrence; time-of-day is preserved across all occurrences.
type Definition struct {
	Type        Type       `json:"recurrence_type"`
	EndType     EndType    `json:"recurrence_end_type"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Occurrences *int       `json:"occurrences,omitempty"`
}

// Validate checks the definition and returns an error naming the offending
// field, per the create-series contract.
func (d Definition) Validate() error {
	switch d.Type {
	case Weekly, Biweekly, Monthly:
	default:
		return ErrInvalidType
	}
	if d.StartDate.IsZero() {
		return ErrZeroStartDate
	}
	switch d.EndType {
	case ByOccurrences:
		if d.Occurrences == nil || *d.Occurrences <= 0 {
			return fmt.Errorf("occurrences must be greater than zero, got %v", intOrNil(d.Occurrences))
		}
	case ByDate:
		if d.EndDate == nil {
			return errors.New("endDate is required for BY_DATE termination")
		}
		if d.EndDate.Before(d.StartDate) {
			return fmt.Errorf("endDate %s precedes startDate %s",
				d.EndDate.Format("2006-01-02"), d.StartDate.Format("2006-01-02"))
		}
	case Indefinite:
	default:
		return ErrInvalidEndType
	}
	return nil
}

// Expand materializes the occurrence dates of the definition, in ascending
// order. The sequence is deterministic: the same definition always yields the
// same dates.
//
// BY_OCCURRENCES stops after exactly Occurrences entries; BY_DATE stops at the
// last occurrence on or before EndDate; INDEFINITE stops at the bounded
// look-ahead horizon (see IndefiniteHorizonMonths).
func Expand(d Definition) ([]time.Time, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var dates []time.Time
	switch d.EndType {
	case ByOccurrences:
		for n := 0; n < *d.Occurrences; n++ {
			dates = append(dates, Occurrence(d, n))
		}
	case ByDate:
		for n := 0; ; n++ {
			occ := Occurrence(d, n)
			if occ.After(*d.EndDate) {
				break
			}
			dates = append(dates, occ)
		}
	case Indefinite:
		horizon := d.StartDate.AddDate(0, IndefiniteHorizonMonths, 0)
		for n := 0; ; n++ {
			occ := Occurrence(d, n)
			if occ.After(horizon) {
				break
			}
			dates = append(dates, occ)
		}
	}
	return dates, nil
}

// ExpandWindow returns the occurrence dates of the definition falling in
// [from, to). It is used by the horizon-extension worker to materialize the
// next stretch of an INDEFINITE series without regenerating the whole
// sequence. Termination rules of the definition still apply.
func ExpandWindow(d Definition, from, to time.Time) ([]time.Time, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var dates []time.Time
	for n := 0; ; n++ {
		occ := Occurrence(d, n)
		if !occ.Before(to) {
			break
		}
		if d.EndType == ByOccurrences && n >= *d.Occurrences {
			break
		}
		if d.EndType == ByDate && occ.After(*d.EndDate) {
			break
		}
		if occ.Before(from) {
			continue
		}
		dates = append(dates, occ)
	}
	return dates, nil
}

// Occurrence computes the date of the n-th (0-indexed) occurrence.
// For MONTHLY series the start date is shifted by n calendar months and
// clamped to the last valid day of the target month, so a series starting
// Jan 31 lands on Feb 29 in a leap year and back on Mar 31.
func Occurrence(d Definition, n int) time.Time {
	switch d.Type {
	case Weekly:
		return d.StartDate.AddDate(0, 0, 7*n)
	case Biweekly:
		return d.StartDate.AddDate(0, 0, 14*n)
	case Monthly:
		return addMonthsClamped(d.StartDate, n)
	}
	return d.StartDate
}

// addMonthsClamped shifts t by n calendar months, clamping the day-of-month
// to the last valid day of the target month. time.AddDate alone would
// normalize Jan 31 + 1 month into Mar 2/3, which is not what a monthly
// appointment series means.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	// First day of the target month, then clamp the day.
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func intOrNil(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
