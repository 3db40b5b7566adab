// Package realtime applies push notifications to a session's event cache.
package realtime

import (
	"fmt"
	"log"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/eventcache"
)

// Refresher is the debounced refresh of the fetch coordinator.
type Refresher interface {
	Schedule()
}

type Reconciler struct {
	store  *eventcache.Store
	fetch  Refresher
	origin string
}

// NewReconciler builds a reconciler for the session named origin. Envelopes
// carrying that origin were caused by the session itself and are skipped.
func NewReconciler(store *eventcache.Store, fetch Refresher, origin string) *Reconciler {
	return &Reconciler{store: store, fetch: fetch, origin: origin}
}

// Handle applies one envelope. Envelopes must be handed over in receipt
// order.
func (r *Reconciler) Handle(env events.Envelope) error {
	if r.origin != "" && env.Origin == r.origin {
		return nil
	}
	switch env.Type {
	case events.TypeStatusChanged:
		p, err := events.Decode[events.StatusChanged](env)
		if err != nil {
			return err
		}
		if p.Booking.ID == "" {
			return fmt.Errorf("%s without booking id", env.Type)
		}
		r.store.UpsertBooking(p.Booking, false)
	case events.TypeBookingRemoved:
		p, err := events.Decode[events.BookingRemoved](env)
		if err != nil {
			return err
		}
		r.store.Remove(p.ID)
	case events.TypeMessageReceived:
		p, err := events.Decode[events.MessageReceived](env)
		if err != nil {
			return err
		}
		if !r.store.SetUnread(p.BookingID, true) {
			log.Printf("[realtime] message for %s, not in view", p.BookingID)
		}
	default:
		r.fetch.Schedule()
	}
	return nil
}
