// Package eventcache holds the canonical list of calendar events for one
// session. Every write replaces the whole list (copy-on-write) and list
// entries are immutable, so a saved entry pointer is an exact snapshot and
// restoring it is a pointer swap.
package eventcache

import (
	"sync"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

type Store struct {
	mu      sync.RWMutex
	events  []*CalendarEvent
	blocked []booking.BlockedRange
	builder Builder
}

func NewStore(b Builder) *Store {
	return &Store{builder: b}
}

func (s *Store) Builder() Builder { return s.builder }

// Snapshot returns the current list. The slice is never written again, so
// callers may keep it but must not modify it.
func (s *Store) Snapshot() []*CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events
}

// Events returns a copy of the current events.
func (s *Store) Events() []CalendarEvent {
	snap := s.Snapshot()
	out := make([]CalendarEvent, len(snap))
	for i, ev := range snap {
		out[i] = *ev
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Store) Get(id string) (*CalendarEvent, bool) {
	for _, ev := range s.Snapshot() {
		if ev.ID == id {
			return ev, true
		}
	}
	return nil, false
}

// Bookings returns the bookings behind the current events.
func (s *Store) Bookings() []booking.Booking {
	snap := s.Snapshot()
	out := make([]booking.Booking, len(snap))
	for i, ev := range snap {
		out[i] = ev.ExtendedProps.Booking
	}
	return out
}

// Merge folds a fetched batch in and returns how many events were added.
func (s *Store) Merge(incoming []*CalendarEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.events)
	s.events = Merge(s.events, incoming)
	return len(s.events) - before
}

// Replace discards everything except unsaved creates and installs incoming.
// Only a forced refresh uses it.
func (s *Store) Replace(incoming []*CalendarEvent) {
	next := Dedupe(incoming)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(next, unsaved(s.events)...)
}

// Clear empties the store like Reset but keeps creates the remote store has
// not accepted yet, since they exist nowhere else.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = unsaved(s.events)
	s.blocked = nil
}

func unsaved(list []*CalendarEvent) []*CalendarEvent {
	var out []*CalendarEvent
	for _, ev := range list {
		if ev.ExtendedProps.Pending && booking.IsTempID(ev.ID) {
			out = append(out, ev)
		}
	}
	return out
}

// Upsert installs ev in place of any event with the same id (keeping its
// position) or appends it. It returns the entry it displaced, if any.
func (s *Store) Upsert(ev *CalendarEvent) (prev *CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(ev)
}

func (s *Store) upsertLocked(ev *CalendarEvent) (prev *CalendarEvent) {
	next := make([]*CalendarEvent, len(s.events), len(s.events)+1)
	copy(next, s.events)
	for i, cur := range next {
		if cur.ID == ev.ID {
			prev = cur
			next[i] = ev
			s.events = next
			return prev
		}
	}
	s.events = append(next, ev)
	return nil
}

// UpsertBooking builds an event for b, keeping the unread flag of the event
// it replaces.
func (s *Store) UpsertBooking(b booking.Booking, pending bool) (ev, prev *CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Flags{Pending: pending}
	for _, cur := range s.events {
		if cur.ID == b.ID {
			f.Unread = cur.ExtendedProps.HasUnreadMessage
			break
		}
	}
	ev = s.builder.Build(b, f)
	return ev, s.upsertLocked(ev)
}

// Remove drops the event with id and returns it.
func (s *Store) Remove(id string) (prev *CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*CalendarEvent, 0, len(s.events))
	for _, cur := range s.events {
		if cur.ID == id {
			prev = cur
			continue
		}
		next = append(next, cur)
	}
	if prev != nil {
		s.events = next
	}
	return prev
}

// Restore puts a snapshot taken earlier back for id. A nil snapshot means the
// event did not exist, so it is removed.
func (s *Store) Restore(id string, snapshot *CalendarEvent) {
	if snapshot == nil {
		s.Remove(id)
		return
	}
	s.Upsert(snapshot)
}

// Swap replaces the event stored under oldID with ev, which may carry a new
// id. Any event already stored under ev.ID is replaced too.
func (s *Store) Swap(oldID string, ev *CalendarEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*CalendarEvent, 0, len(s.events)+1)
	placed := false
	for _, cur := range s.events {
		if cur.ID != oldID && cur.ID != ev.ID {
			next = append(next, cur)
			continue
		}
		if !placed {
			next = append(next, ev)
			placed = true
		}
	}
	if !placed {
		next = append(next, ev)
	}
	s.events = next
}

// SetUnread rebuilds the event for id with the unread flag set to v. It
// reports whether the event exists.
func (s *Store) SetUnread(id string, v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.events {
		if cur.ID != id {
			continue
		}
		if cur.ExtendedProps.HasUnreadMessage != v {
			f := cur.Flags()
			f.Unread = v
			s.upsertLocked(s.builder.Rebuild(cur, f))
		}
		return true
	}
	return false
}

func (s *Store) SetBlocked(b []booking.BlockedRange) {
	cp := make([]booking.BlockedRange, len(b))
	copy(cp, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = cp
}

func (s *Store) Blocked() []booking.BlockedRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blocked
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.blocked = nil
}
