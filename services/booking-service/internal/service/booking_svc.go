package service

import (
	"context"
	"log"
	"maps"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
)

type Repo interface {
	List(ctx context.Context, from, to string) ([]booking.Booking, error)
	ByID(ctx context.Context, id string) (booking.Booking, error)
	Create(ctx context.Context, b booking.Booking) (booking.Booking, error)
	Update(ctx context.Context, id string, b booking.Booking) (booking.Booking, error)
	Delete(ctx context.Context, id string) error
	ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error)
	CreateBlocked(ctx context.Context, b booking.BlockedRange) (booking.BlockedRange, error)
	DeleteBlocked(ctx context.Context, id string) error
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Cache fronts blocked-range reads. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, from, to string) ([]booking.BlockedRange, bool)
	Set(ctx context.Context, from, to string, list []booking.BlockedRange)
	Invalidate(ctx context.Context)
}

var validate = validator.New()

type BookingSvc struct {
	repo  Repo
	pub   Publisher
	cache Cache
	now   func() time.Time
}

func NewBookingSvc(r Repo, pub Publisher, cache Cache) *BookingSvc {
	return &BookingSvc{repo: r, pub: pub, cache: cache, now: time.Now}
}

func validRange(from, to string) error {
	if _, err := time.Parse(booking.DateFormat, from); err != nil {
		return apperr.Validation("range", "from must be YYYY-MM-DD")
	}
	if _, err := time.Parse(booking.DateFormat, to); err != nil {
		return apperr.Validation("range", "to must be YYYY-MM-DD")
	}
	if to < from {
		return apperr.Validation("range", "to is before from")
	}
	return nil
}

func validBooking(b booking.Booking) error {
	const op = "booking.validate"
	if b.Name == "" {
		return apperr.Validation(op, "name is required")
	}
	if !b.CoarseStatus.Valid() {
		return apperr.Validation(op, "unknown coarse status %q", b.CoarseStatus)
	}
	if ref, ok := b.Slot(); ok {
		if err := validate.Struct(ref); err != nil {
			return apperr.Validation(op, "%v", err)
		}
	} else if b.DateBooked != "" || b.TimeBooked != "" || b.BookingSlot != 0 {
		return apperr.Validation(op, "date, time and slot must be given together")
	}
	if b.Review != nil {
		if err := validate.Struct(b.Review); err != nil {
			return apperr.Validation(op, "review: %v", err)
		}
	}
	return nil
}

func (s *BookingSvc) publish(ctx context.Context, typ, origin string, payload any) {
	env, err := events.New(typ, origin, payload, s.now())
	if err == nil {
		err = s.pub.PublishJSON(ctx, typ, env)
	}
	if err != nil {
		log.Printf("[booking] publish %s failed: %v", typ, err)
	}
}

func (s *BookingSvc) List(ctx context.Context, from, to string) ([]booking.Booking, error) {
	if err := validRange(from, to); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, from, to)
}

func (s *BookingSvc) Get(ctx context.Context, id string) (booking.Booking, error) {
	return s.repo.ByID(ctx, id)
}

// Create stores b under a new id and announces it. origin is the calendar
// session that asked for it, if any.
func (s *BookingSvc) Create(ctx context.Context, origin string, b booking.Booking) (booking.Booking, error) {
	b.ID = ""
	if b.CoarseStatus == "" {
		b.CoarseStatus = booking.CoarseNew
		if b.Scheduled() {
			b.CoarseStatus = booking.CoarseBooked
		}
	}
	if err := validBooking(b); err != nil {
		return booking.Booking{}, err
	}
	out, err := s.repo.Create(ctx, b)
	if err != nil {
		return booking.Booking{}, err
	}
	s.publish(ctx, events.TypeBookingCreated, origin, events.BookingCreated{Booking: out})
	return out, nil
}

// Editor is the authenticated caller of a write.
type Editor struct {
	ID   string
	Role string
}

// Update replaces the booking and announces the new state. A changed owner
// is announced as an assignment change as well. The stored history must be
// a prefix of b's.
func (s *BookingSvc) Update(ctx context.Context, origin string, ed Editor, id string, b booking.Booking) (booking.Booking, error) {
	if err := validBooking(b); err != nil {
		return booking.Booking{}, err
	}
	prev, err := s.repo.ByID(ctx, id)
	if err != nil {
		return booking.Booking{}, err
	}
	if !extendsHistory(prev.History, b.History) {
		return booking.Booking{}, apperr.Validation("booking.update", "history of %s is append-only", id)
	}
	if err := checkEditor(ed, prev, b); err != nil {
		return booking.Booking{}, err
	}
	out, err := s.repo.Update(ctx, id, b)
	if err != nil {
		return booking.Booking{}, err
	}
	s.publish(ctx, events.TypeStatusChanged, origin, events.StatusChanged{Booking: out})
	if prev.AssignedOwnerID != out.AssignedOwnerID {
		s.publish(ctx, events.TypeAssignmentChanged, origin, events.StatusChanged{Booking: out})
	}
	return out, nil
}

func extendsHistory(prev, next []booking.HistoryEntry) bool {
	if len(next) < len(prev) {
		return false
	}
	for i, e := range prev {
		n := next[i]
		if !e.At.Equal(n.At) || e.ActorID != n.ActorID || e.Action != n.Action ||
			e.From != n.From || e.To != n.To || e.Note != n.Note || !maps.Equal(e.Cleared, n.Cleared) {
			return false
		}
	}
	return true
}

// checkEditor limits bookers on bookings they do not own to confirming,
// unconfirming and cancelling.
func checkEditor(ed Editor, prev, next booking.Booking) error {
	if ed.Role != auth.RoleBooker || prev.AssignedOwnerID == ed.ID {
		return nil
	}
	const op = "booking.update"
	switch {
	case next.AssignedOwnerID != prev.AssignedOwnerID,
		next.Name != prev.Name,
		next.Phone != prev.Phone,
		next.HasSale != prev.HasSale,
		next.FineStatus != prev.FineStatus && next.FineStatus != booking.FineNone,
		next.Review != nil && (prev.Review == nil || *next.Review != *prev.Review):
		return apperr.PermissionDenied(op, "booking %s belongs to another user", prev.ID)
	}
	if next.CoarseStatus == booking.CoarseCancelled {
		return nil
	}
	if next.CoarseStatus != prev.CoarseStatus || next.DateBooked != prev.DateBooked ||
		next.TimeBooked != prev.TimeBooked || next.BookingSlot != prev.BookingSlot {
		return apperr.PermissionDenied(op, "booking %s belongs to another user", prev.ID)
	}
	return nil
}

func (s *BookingSvc) Delete(ctx context.Context, origin, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.TypeBookingRemoved, origin, events.BookingRemoved{ID: id})
	return nil
}

// RecordMessage announces an inbound message for a booking.
func (s *BookingSvc) RecordMessage(ctx context.Context, id, channel, text string) error {
	if _, err := s.repo.ByID(ctx, id); err != nil {
		return err
	}
	preview := []rune(text)
	if len(preview) > 80 {
		preview = preview[:80]
	}
	s.publish(ctx, events.TypeMessageReceived, "", events.MessageReceived{BookingID: id, Channel: channel, Preview: string(preview)})
	return nil
}

func (s *BookingSvc) ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error) {
	if err := validRange(from, to); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if list, ok := s.cache.Get(ctx, from, to); ok {
			return list, nil
		}
	}
	list, err := s.repo.ListBlocked(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, from, to, list)
	}
	return list, nil
}

func (s *BookingSvc) CreateBlocked(ctx context.Context, origin string, b booking.BlockedRange) (booking.BlockedRange, error) {
	if err := validate.Struct(b); err != nil {
		return booking.BlockedRange{}, apperr.Validation("blocked.validate", "%v", err)
	}
	if b.SlotNumber != 0 && b.TimeSlot == "" {
		return booking.BlockedRange{}, apperr.Validation("blocked.validate", "slotNumber needs a timeSlot")
	}
	out, err := s.repo.CreateBlocked(ctx, b)
	if err != nil {
		return booking.BlockedRange{}, err
	}
	s.blockedChanged(ctx, origin, out.Date)
	return out, nil
}

func (s *BookingSvc) DeleteBlocked(ctx context.Context, origin, id string) error {
	if err := s.repo.DeleteBlocked(ctx, id); err != nil {
		return err
	}
	s.blockedChanged(ctx, origin, "")
	return nil
}

func (s *BookingSvc) blockedChanged(ctx context.Context, origin, date string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	s.publish(ctx, events.TypeBlockedChanged, origin, map[string]string{"date": date})
}
