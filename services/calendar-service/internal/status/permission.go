package status

import (
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

// Actor is the authenticated user asking for a change.
type Actor struct {
	ID   string
	Role string
}

// a booker may apply these to any booking
var bookerAnyBooking = map[booking.DisplayStatus]bool{
	booking.DisplayConfirmed:   true,
	booking.DisplayUnconfirmed: true,
	booking.DisplayCancelled:   true,
}

// Authorize reports whether actor may move b to target.
func Authorize(actor Actor, b booking.Booking, target booking.DisplayStatus) error {
	const op = "status.authorize"
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleViewer:
		return nil
	case auth.RoleBooker:
		if bookerAnyBooking[target] {
			return nil
		}
		if actor.ID != "" && b.AssignedOwnerID == actor.ID {
			return nil
		}
		return apperr.PermissionDenied(op, "%s may only be set on your own bookings", target)
	}
	return apperr.PermissionDenied(op, "role %q may not change booking status", actor.Role)
}
