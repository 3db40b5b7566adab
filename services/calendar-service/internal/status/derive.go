// Package status owns the booking lifecycle: deriving the display status
// from stored flags, deciding who may move a booking where, and computing the
// fields a transition writes.
package status

import "github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"

// Derive returns the single display status for b. Rules apply in order and
// the first match wins.
func Derive(b booking.Booking) booking.DisplayStatus {
	booked := b.CoarseStatus == booking.CoarseBooked
	switch {
	case b.CoarseStatus == booking.CoarseCancelled:
		return booking.DisplayCancelled
	case booked && b.FineStatus != booking.FineNone:
		return booking.DisplayStatus(b.FineStatus)
	case booked && b.IsDoubleConfirmed:
		return booking.DisplayDoubleConfirmed
	case booked && b.IsConfirmed == booking.ConfirmYes:
		return booking.DisplayConfirmed
	case booked && b.IsConfirmed == booking.ConfirmNo:
		return booking.DisplayUnconfirmed
	case booked && b.DateBooked == "" && b.UpdatedAt == nil:
		return booking.DisplayUnassigned
	case b.CoarseStatus == booking.CoarseAttended && b.HasSale:
		return booking.DisplayComplete
	}
	return booking.DisplayStatus(b.CoarseStatus)
}
