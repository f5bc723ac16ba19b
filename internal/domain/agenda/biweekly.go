package agenda

import (
	"fmt"
	"sort"
	"time"

	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
)

// ComputeBiweeklyHint resolves the alternate-week pairing for one biweekly
// occurrence. The alternate week is the calendar day seven days from the
// occurrence, in both directions; siblings are the other rows of the same
// series. When a sibling sits on the alternate date the hint points at it,
// otherwise the slot is free and offered for one-click creation.
func ComputeBiweeklyHint(appt *appointment.Appointment, siblings []*appointment.Appointment, alternateDate time.Time) *BiweeklyHint {
	if appt.RecurrenceID == nil {
		return nil
	}
	if !weekApart(appt.ScheduledAt, alternateDate) {
		return nil
	}
	clock := fmt.Sprintf("%02d:%02d", appt.ScheduledAt.Hour(), appt.ScheduledAt.Minute())
	for _, sib := range siblings {
		if sib.ID == appt.ID || !sib.Status.Active() {
			continue
		}
		if sameDate(sib.ScheduledAt, alternateDate) {
			id := sib.ID
			return &BiweeklyHint{Time: clock, IsAvailable: false, PairedAppointmentID: &id}
		}
	}
	return &BiweeklyHint{Time: clock, IsAvailable: true}
}

// ComputeBiweeklyHints builds the hints to inject into the grid of date.
// neighbors are the professional's active biweekly occurrences scheduled
// exactly one week before or after date; sameDay are the date's own
// appointments, used to resolve pairings. One hint per distinct time.
func ComputeBiweeklyHints(date time.Time, neighbors, sameDay []*appointment.Appointment) []BiweeklyHint {
	byTime := make(map[string]BiweeklyHint)

	for _, n := range neighbors {
		if n.RecurrenceID == nil || !n.Status.Active() {
			continue
		}
		if !weekApart(n.ScheduledAt, date) {
			continue
		}
		clock := fmt.Sprintf("%02d:%02d", n.ScheduledAt.Hour(), n.ScheduledAt.Minute())
		if existing, ok := byTime[clock]; ok && existing.PairedAppointmentID != nil {
			continue
		}
		byTime[clock] = resolveHint(clock, n, sameDay)
	}

	keys := make([]string, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]BiweeklyHint, 0, len(keys))
	for _, k := range keys {
		out = append(out, byTime[k])
	}
	return out
}

func resolveHint(clock string, neighbor *appointment.Appointment, sameDay []*appointment.Appointment) BiweeklyHint {
	for _, a := range sameDay {
		if !a.Status.Active() || a.RecurrenceID == nil || neighbor.RecurrenceID == nil {
			continue
		}
		if *a.RecurrenceID != *neighbor.RecurrenceID {
			continue
		}
		if fmt.Sprintf("%02d:%02d", a.ScheduledAt.Hour(), a.ScheduledAt.Minute()) == clock {
			id := a.ID
			return BiweeklyHint{Time: clock, IsAvailable: false, PairedAppointmentID: &id}
		}
	}
	return BiweeklyHint{Time: clock, IsAvailable: true}
}

// weekApart reports whether t falls on the calendar day one week before or
// after ref. AddDate keeps the wall clock across a DST shift, so the week
// arithmetic never drifts by an hour.
func weekApart(t, ref time.Time) bool {
	return sameDate(t.AddDate(0, 0, 7), ref) || sameDate(t.AddDate(0, 0, -7), ref)
}

// sameDate compares calendar dates with t rendered in ref's zone, so every
// layer resolves day membership against the same clock.
func sameDate(t, ref time.Time) bool {
	t = t.In(ref.Location())
	return t.Year() == ref.Year() && t.Month() == ref.Month() && t.Day() == ref.Day()
}
