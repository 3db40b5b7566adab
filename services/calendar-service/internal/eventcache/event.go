package eventcache

import (
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/status"
)

// CalendarEvent is the UI projection of a booking. Values held by the store
// are never modified after construction; a change builds a new event.
type CalendarEvent struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Scheduled     bool      `json:"scheduled"`
	Color         string    `json:"color"`
	ExtendedProps Props     `json:"extendedProps"`
}

type Props struct {
	Booking          booking.Booking       `json:"booking"`
	DisplayStatus    booking.DisplayStatus `json:"displayStatus"`
	HasUnreadMessage bool                  `json:"hasUnreadMessage"`
	// Pending marks a change the server has not acknowledged yet, e.g. one
	// made while offline.
	Pending bool `json:"pending"`
}

// Flags are the computed, non-booking parts of an event.
type Flags struct {
	Unread  bool
	Pending bool
}

// Builder turns bookings into events.
type Builder struct {
	Location   *time.Location
	SlotLength time.Duration
}

func (bl Builder) Build(b booking.Booking, f Flags) *CalendarEvent {
	ds := status.Derive(b)
	ev := &CalendarEvent{
		ID:    b.ID,
		Title: b.Name,
		Color: ds.Color(),
		ExtendedProps: Props{
			Booking:          b,
			DisplayStatus:    ds,
			HasUnreadMessage: f.Unread,
			Pending:          f.Pending,
		},
	}
	if ev.Title == "" {
		ev.Title = "(no name)"
	}
	if b.DateBooked != "" && b.TimeBooked != "" {
		loc := bl.Location
		if loc == nil {
			loc = time.UTC
		}
		start, err := time.ParseInLocation(booking.DateFormat+" "+booking.TimeFormat, b.DateBooked+" "+b.TimeBooked, loc)
		if err == nil {
			length := bl.SlotLength
			if length <= 0 {
				length = 30 * time.Minute
			}
			ev.Start = start
			ev.End = start.Add(length)
			ev.Scheduled = true
		}
	}
	return ev
}

// Rebuild returns a fresh event for ev with f applied.
func (bl Builder) Rebuild(ev *CalendarEvent, f Flags) *CalendarEvent {
	return bl.Build(ev.ExtendedProps.Booking, f)
}

func (ev *CalendarEvent) Flags() Flags {
	return Flags{Unread: ev.ExtendedProps.HasUnreadMessage, Pending: ev.ExtendedProps.Pending}
}
