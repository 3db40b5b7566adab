package status

import (
	"strconv"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
)

// Options carries what a transition needs beyond the booking itself.
type Options struct {
	Actor Actor
	At    time.Time
	// Review is the companion cell required by the Review transition.
	Review *booking.SlotRef
	// Blocked and Bookings describe the calendar the review cell is checked
	// against.
	Blocked  []booking.BlockedRange
	Bookings []booking.Booking
	Grid     slots.Grid
}

// Targetable reports whether target may be requested. Complete and
// Unassigned only ever come out of Derive.
func Targetable(target booking.DisplayStatus) bool {
	switch target {
	case booking.DisplayComplete, booking.DisplayUnassigned:
		return false
	}
	return target.Valid()
}

// Transition authorizes and applies a status change. On error b is returned
// unchanged.
func Transition(b booking.Booking, target booking.DisplayStatus, opts Options) (booking.Booking, error) {
	if err := Authorize(opts.Actor, b, target); err != nil {
		return b, err
	}
	return Apply(b, target, opts)
}

// Apply computes the booking after moving to target. All side effects land in
// one returned value; b is not modified.
func Apply(b booking.Booking, target booking.DisplayStatus, opts Options) (booking.Booking, error) {
	const op = "status.apply"
	if !Targetable(target) {
		return b, apperr.Validation(op, "%q is not a valid target status", target)
	}
	if opts.At.IsZero() {
		opts.At = time.Now()
	}
	from := Derive(b)
	next := b.Clone()
	entry := booking.HistoryEntry{
		At:      opts.At.UTC(),
		ActorID: opts.Actor.ID,
		Action:  "status",
		From:    string(from),
		To:      string(target),
	}

	switch target {
	case booking.DisplayCancelled:
		entry.Cleared = clearedFields(b)
		next.DateBooked = ""
		next.TimeBooked = ""
		next.BookingSlot = 0
		next.IsConfirmed = booking.ConfirmUnset
		next.FineStatus = booking.FineNone
		next.Review = nil
		next.CoarseStatus = booking.CoarseCancelled
	case booking.DisplayDoubleConfirmed:
		next.IsConfirmed = booking.ConfirmYes
		next.IsDoubleConfirmed = true
		next.FineStatus = booking.FineNone
	case booking.DisplayConfirmed:
		next.IsConfirmed = booking.ConfirmYes
		next.IsDoubleConfirmed = false
		next.FineStatus = booking.FineNone
	case booking.DisplayUnconfirmed:
		next.IsConfirmed = booking.ConfirmNo
		next.IsDoubleConfirmed = false
		next.FineStatus = booking.FineNone
	case booking.DisplayReschedule:
		next.FineStatus = booking.FineReschedule
		next.IsConfirmed = booking.ConfirmNo
	case booking.DisplayArrived, booking.DisplayLeft, booking.DisplayNoShow, booking.DisplayNoSale:
		next.FineStatus = booking.FineStatus(target)
		next.IsConfirmed = booking.ConfirmUnset
	case booking.DisplayReview:
		ref, err := checkReview(b, opts)
		if err != nil {
			return b, err
		}
		next.FineStatus = booking.FineReview
		next.Review = &ref
		entry.Note = "review " + ref.Date + " " + ref.Time
	default:
		next.CoarseStatus = booking.CoarseStatus(target)
		next.FineStatus = booking.FineNone
	}
	if next.FineStatus != booking.FineReview {
		next.Review = nil
	}
	at := opts.At.UTC()
	next.UpdatedAt = &at
	return next.WithHistory(entry), nil
}

func checkReview(b booking.Booking, opts Options) (booking.SlotRef, error) {
	const op = "status.review"
	if opts.Review == nil {
		return booking.SlotRef{}, apperr.Validation(op, "review requires a date, time and slot")
	}
	ref := *opts.Review
	grid := opts.Grid
	if grid == nil {
		grid = slots.DefaultGrid
	}
	// the booking's previous review cell is being replaced, so it does not
	// count against the new choice
	others := make([]booking.Booking, 0, len(opts.Bookings))
	for _, o := range opts.Bookings {
		if o.ID == b.ID {
			o.Review = nil
		}
		others = append(others, o)
	}
	if err := slots.Check(grid, ref, opts.Blocked, others, ""); err != nil {
		return booking.SlotRef{}, err
	}
	return ref, nil
}

func clearedFields(b booking.Booking) map[string]string {
	m := map[string]string{}
	if b.DateBooked != "" {
		m["dateBooked"] = b.DateBooked
	}
	if b.TimeBooked != "" {
		m["timeBooked"] = b.TimeBooked
	}
	if b.BookingSlot > 0 {
		m["bookingSlot"] = strconv.Itoa(b.BookingSlot)
	}
	if b.IsConfirmed != booking.ConfirmUnset {
		m["isConfirmed"] = b.IsConfirmed.String()
	}
	if b.FineStatus != booking.FineNone {
		m["fineStatus"] = string(b.FineStatus)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

