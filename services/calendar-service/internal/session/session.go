// Package session hosts one scheduler per signed-in user: its event cache
// and the coordinators that feed it.
package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/clock"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/eventcache"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/fetch"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/mutation"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/realtime"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/remote"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/status"
)

const maxNotices = 50

// Notice is a failure the user has not seen yet, such as a rolled back
// change.
type Notice struct {
	At        time.Time `json:"at"`
	BookingID string    `json:"bookingId,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

type Session struct {
	id    string
	actor status.Actor
	token atomic.Value
	seen  atomic.Int64

	remote remote.API
	clock  clock.Clock
	grid   slots.Grid
	store  *eventcache.Store
	fetch  *fetch.Coordinator
	mut    *mutation.Coordinator
	rt     *realtime.Reconciler

	mu      sync.Mutex
	notices []Notice
}

// ID is the origin tag of everything this session emits.
func (s *Session) ID() string { return s.id }

func (s *Session) Actor() status.Actor { return s.actor }

func (s *Session) Token() string {
	v, _ := s.token.Load().(string)
	return v
}

// SetToken swaps in a fresh bearer token for later remote calls.
func (s *Session) SetToken(tok string) { s.token.Store(tok) }

func (s *Session) touch() { s.seen.Store(s.clock.Now().UnixNano()) }

func (s *Session) LastSeen() time.Time { return time.Unix(0, s.seen.Load()) }

// Deliver applies a push envelope. It implements push.Subscriber.
func (s *Session) Deliver(env events.Envelope) {
	if err := s.rt.Handle(env); err != nil {
		log.Printf("[session %s] push %s: %v", s.id, env.Type, err)
	}
}

// Report records a background failure. It implements mutation.Reporter.
func (s *Session) Report(bookingID string, err *apperr.Error) {
	n := Notice{At: s.clock.Now().UTC(), BookingID: bookingID, Kind: err.Kind.String(), Message: err.Error()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}

// Notices drains the notice log.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notices
	s.notices = nil
	return out
}

func (s *Session) Events() []eventcache.CalendarEvent {
	s.touch()
	return s.store.Events()
}

func (s *Session) View() fetch.Range { return s.fetch.Range() }

func (s *Session) FetchState() fetch.State { return s.fetch.State() }

func (s *Session) RequestFetch(ctx context.Context, force bool) (fetch.Outcome, error) {
	s.touch()
	return s.fetch.RequestFetch(ctx, force)
}

// SetView moves the session to r and loads it. A load held back by the rate
// limit is handed to the debounced refresh instead of being dropped.
func (s *Session) SetView(ctx context.Context, r fetch.Range) (fetch.Outcome, error) {
	s.touch()
	s.fetch.SetRange(r)
	out, err := s.fetch.RequestFetch(ctx, false)
	if out == fetch.SkippedInterval || out == fetch.SkippedInFlight {
		s.fetch.Schedule()
	}
	return out, err
}

// AvailableSlots lists the open cells on date. Dates inside the current
// view are answered from the cache, which includes unacknowledged local
// changes; other dates are read from the remote store.
func (s *Session) AvailableSlots(ctx context.Context, date string) ([]slots.Slot, error) {
	s.touch()
	view := s.fetch.Range()
	if view.From != "" && date >= view.From && date <= view.To && s.fetch.Loaded(view) {
		return s.grid.Available(date, s.store.Blocked(), s.store.Bookings()), nil
	}
	bookings, err := s.remote.ListBookings(ctx, date, date)
	if err != nil {
		return nil, apperr.Categorize("session.slots", err)
	}
	blocked, err := s.remote.ListBlocked(ctx, date, date)
	if err != nil {
		return nil, apperr.Categorize("session.slots", err)
	}
	return s.grid.Available(date, blocked, bookings), nil
}

func (s *Session) ApplyStatusChange(ctx context.Context, id string, target booking.DisplayStatus, review *booking.SlotRef) (*eventcache.CalendarEvent, error) {
	s.touch()
	return s.mut.ApplyStatusChange(ctx, s.actor, id, target, review)
}

func (s *Session) CreateOrReschedule(ctx context.Context, b booking.Booking) (*eventcache.CalendarEvent, error) {
	s.touch()
	return s.mut.CreateOrReschedule(ctx, s.actor, b)
}

// MarkRead clears the unread-message flag of a booking.
func (s *Session) MarkRead(id string) bool {
	s.touch()
	return s.store.SetUnread(id, false)
}

// Close stops timers and waits for remote calls still running.
func (s *Session) Close() {
	s.fetch.Close()
	s.mut.Close()
	s.store.Reset()
}
