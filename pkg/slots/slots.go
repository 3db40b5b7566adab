// Package slots computes which cells of the appointment grid are free on a
// given date.
package slots

import (
	"fmt"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

// PerTime is the number of parallel booking columns at each time.
const PerTime = 3

// Slot is one open (time, slot-number) pair.
type Slot struct {
	Time   string `json:"time"`
	Number int    `json:"slot"`
}

// Grid is the ordered list of bookable times of day.
type Grid []string

// NewGrid builds a grid from first to last inclusive in step increments.
func NewGrid(first, last string, step time.Duration) (Grid, error) {
	start, err := time.Parse(booking.TimeFormat, first)
	if err != nil {
		return nil, fmt.Errorf("grid start: %w", err)
	}
	end, err := time.Parse(booking.TimeFormat, last)
	if err != nil {
		return nil, fmt.Errorf("grid end: %w", err)
	}
	if step <= 0 || end.Before(start) {
		return nil, fmt.Errorf("invalid grid %s..%s step %s", first, last, step)
	}
	var g Grid
	for t := start; !t.After(end); t = t.Add(step) {
		g = append(g, t.Format(booking.TimeFormat))
	}
	return g, nil
}

// DefaultGrid is 10:00 to 16:30 in 30-minute steps.
var DefaultGrid = mustGrid("10:00", "16:30", 30*time.Minute)

func mustGrid(first, last string, step time.Duration) Grid {
	g, err := NewGrid(first, last, step)
	if err != nil {
		panic(err)
	}
	return g
}

// Contains reports whether t is one of the grid times.
func (g Grid) Contains(t string) bool {
	for _, v := range g {
		if v == t {
			return true
		}
	}
	return false
}

// Available returns every open pair on date using DefaultGrid.
func Available(date string, blocked []booking.BlockedRange, bookings []booking.Booking) []Slot {
	return DefaultGrid.Available(date, blocked, bookings)
}

// Available enumerates the grid × {1..PerTime} and drops every pair that is
// blocked or occupied. The result is ordered by time, then slot number.
func (g Grid) Available(date string, blocked []booking.BlockedRange, bookings []booking.Booking) []Slot {
	for _, br := range blocked {
		if br.Date == date && br.TimeSlot == "" {
			return []Slot{}
		}
	}
	taken := occupancy(date, bookings, "")
	out := make([]Slot, 0, len(g)*PerTime)
	for _, t := range g {
		for n := 1; n <= PerTime; n++ {
			if IsBlocked(date, t, n, blocked) {
				continue
			}
			if taken[cell{t, n}] {
				continue
			}
			out = append(out, Slot{Time: t, Number: n})
		}
	}
	return out
}

// IsBlocked reports whether any range covers (date, t, n). A range without a
// time covers the whole day and a range without a slot number covers all
// slots at its time.
func IsBlocked(date, t string, n int, blocked []booking.BlockedRange) bool {
	for _, br := range blocked {
		if br.Date != date {
			continue
		}
		if br.TimeSlot == "" {
			return true
		}
		if br.TimeSlot != t {
			continue
		}
		if br.SlotNumber == 0 || br.SlotNumber == n {
			return true
		}
	}
	return false
}

// IsOccupied reports whether an active booking other than exceptID holds
// (date, t, n), either as its booked cell or as its review cell.
func IsOccupied(date, t string, n int, bookings []booking.Booking, exceptID string) bool {
	return occupancy(date, bookings, exceptID)[cell{t, n}]
}

// Check validates that (date, t, n) can be taken by booking exceptID.
func Check(g Grid, ref booking.SlotRef, blocked []booking.BlockedRange, bookings []booking.Booking, exceptID string) error {
	const op = "slots.check"
	if _, err := time.Parse(booking.DateFormat, ref.Date); err != nil {
		return apperr.Validation(op, "invalid date %q", ref.Date)
	}
	if !g.Contains(ref.Time) {
		return apperr.Validation(op, "time %q is not on the grid", ref.Time)
	}
	if ref.Slot < 1 || ref.Slot > PerTime {
		return apperr.Validation(op, "slot %d out of range", ref.Slot)
	}
	if IsBlocked(ref.Date, ref.Time, ref.Slot, blocked) {
		return apperr.Validation(op, "%s %s slot %d is blocked", ref.Date, ref.Time, ref.Slot)
	}
	if IsOccupied(ref.Date, ref.Time, ref.Slot, bookings, exceptID) {
		return apperr.Validation(op, "%s %s slot %d is already booked", ref.Date, ref.Time, ref.Slot)
	}
	return nil
}

type cell struct {
	time string
	slot int
}

func occupancy(date string, bookings []booking.Booking, exceptID string) map[cell]bool {
	taken := make(map[cell]bool)
	for _, b := range bookings {
		if !b.Active() || (exceptID != "" && b.ID == exceptID) {
			continue
		}
		if b.DateBooked == date && b.TimeBooked != "" && b.BookingSlot > 0 {
			taken[cell{b.TimeBooked, b.BookingSlot}] = true
		}
		if r := b.Review; r != nil && r.Date == date {
			taken[cell{r.Time, r.Slot}] = true
		}
	}
	return taken
}
