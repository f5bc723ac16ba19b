package agenda

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/marvingbh/clinica-sub001/internal/domain/appointment"
	"github.com/marvingbh/clinica-sub001/internal/domain/availability"
)

// ComputeSlots derives the slot grid for one date. It is a pure function
// over immutable snapshots: the same inputs always produce the same grid.
//
// For ScopeProfessional the grid follows the professional's weekly rules,
// with exceptions applied and bookings attached. A whole-day blocking
// exception wins over everything and yields an empty grid. When no rule is
// active for the weekday, bookings that exist anyway are still surfaced as
// occupied slots so nothing scheduled ever disappears from view.
//
// For ScopeAllProfessionals the grid is a fixed half-hour occupancy board
// from 07:00 to 20:30; rules and exceptions are not consulted and slots are
// never blocked.
//
// Appointments are attached by exact start time (hour and minute).
// Bookings that fall between grid times get their own slot in a
// reconciliation pass, keeping every booking visible.
func ComputeSlots(
	date time.Time,
	professionalID uuid.UUID,
	rules []*availability.Rule,
	exceptions []*availability.Exception,
	appts []*appointment.Appointment,
	durationMinutes int,
	scope Scope,
) ([]TimeSlot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("durationMinutes must be positive, got %d", durationMinutes)
	}
	if scope == ScopeAllProfessionals {
		return occupancyBoard(appts)
	}

	applicable := applicableExceptions(exceptions, professionalID)

	// A whole-day block cancels the date outright.
	for _, e := range applicable {
		if !e.IsAvailable && e.WholeDay() {
			return []TimeSlot{}, nil
		}
	}

	weekday := int(date.Weekday())
	var active []*availability.Rule
	for _, r := range rules {
		if r.IsActive && r.DayOfWeek == weekday {
			active = append(active, r)
		}
	}

	blocks, err := blockWindows(applicable)
	if err != nil {
		return nil, err
	}

	byTime := make(map[string]*TimeSlot)

	if len(active) == 0 {
		// No working hours defined, but existing bookings must stay visible.
		if err := attachOffGrid(byTime, appts); err != nil {
			return nil, err
		}
		return sortedSlots(byTime), nil
	}

	for _, rule := range active {
		start, err := availability.MinuteOfDay(rule.StartTime)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		end, err := availability.MinuteOfDay(rule.EndTime)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		for m := start; m+durationMinutes <= end; m += durationMinutes {
			clock := availability.FormatMinute(m)
			if _, ok := byTime[clock]; ok {
				continue
			}
			slot := &TimeSlot{Time: clock, IsAvailable: true}
			if reason, blocked := blockReasonAt(blocks, m); blocked {
				slot.IsAvailable = false
				slot.IsBlocked = true
				slot.BlockReason = reason
			}
			byTime[clock] = slot
		}
	}

	for _, a := range appts {
		clock := fmt.Sprintf("%02d:%02d", a.ScheduledAt.Hour(), a.ScheduledAt.Minute())
		if slot, ok := byTime[clock]; ok {
			slot.Appointments = append(slot.Appointments, a)
			slot.IsAvailable = false
		}
	}

	if err := attachOffGrid(byTime, appts); err != nil {
		return nil, err
	}

	return sortedSlots(byTime), nil
}

type blockWindow struct {
	start  int
	end    int
	reason *string
}

// blockWindows parses the blocking time-ranged exceptions into minute ranges.
// A malformed or half-open range is an error: a block that cannot be applied
// must fail the whole computation rather than leave its slots open.
func blockWindows(exceptions []*availability.Exception) ([]blockWindow, error) {
	var out []blockWindow
	for _, e := range exceptions {
		if e.IsAvailable || e.WholeDay() {
			continue
		}
		if e.StartTime == nil || e.EndTime == nil {
			return nil, fmt.Errorf("exception %s: time range requires both start and end", e.ID)
		}
		start, err := availability.MinuteOfDay(*e.StartTime)
		if err != nil {
			return nil, fmt.Errorf("exception %s: %w", e.ID, err)
		}
		end, err := availability.MinuteOfDay(*e.EndTime)
		if err != nil {
			return nil, fmt.Errorf("exception %s: %w", e.ID, err)
		}
		out = append(out, blockWindow{start: start, end: end, reason: e.Reason})
	}
	return out, nil
}

// blockReasonAt finds a blocking window covering the minute. The slot start
// alone decides membership; the range is half-open [start, end).
func blockReasonAt(blocks []blockWindow, minute int) (*string, bool) {
	for _, b := range blocks {
		if minute >= b.start && minute < b.end {
			return b.reason, true
		}
	}
	return nil, false
}

func applicableExceptions(exceptions []*availability.Exception, professionalID uuid.UUID) []*availability.Exception {
	var out []*availability.Exception
	for _, e := range exceptions {
		if e.AppliesTo(professionalID) {
			out = append(out, e)
		}
	}
	return out
}

// attachOffGrid gives bookings that match no existing grid time their own
// occupied slot.
func attachOffGrid(byTime map[string]*TimeSlot, appts []*appointment.Appointment) error {
	for _, a := range appts {
		clock := fmt.Sprintf("%02d:%02d", a.ScheduledAt.Hour(), a.ScheduledAt.Minute())
		slot, ok := byTime[clock]
		if !ok {
			slot = &TimeSlot{Time: clock}
			byTime[clock] = slot
		}
		if !containsAppointment(slot.Appointments, a.ID) {
			slot.Appointments = append(slot.Appointments, a)
		}
		slot.IsAvailable = false
	}
	return nil
}

func containsAppointment(appts []*appointment.Appointment, id uuid.UUID) bool {
	for _, a := range appts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func occupancyBoard(appts []*appointment.Appointment) ([]TimeSlot, error) {
	byTime := make(map[string]*TimeSlot)
	for m := boardStartMinute; m <= boardEndMinute; m += boardStepMinutes {
		clock := availability.FormatMinute(m)
		byTime[clock] = &TimeSlot{Time: clock, IsAvailable: true}
	}
	if err := attachOffGrid(byTime, appts); err != nil {
		return nil, err
	}
	return sortedSlots(byTime), nil
}

// sortedSlots flattens the map into a slice ordered by the zero-padded
// HH:MM key, so lexical order is chronological order.
func sortedSlots(byTime map[string]*TimeSlot) []TimeSlot {
	keys := make([]string, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]TimeSlot, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byTime[k])
	}
	return out
}
