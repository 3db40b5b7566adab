package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Time formats used on the wire.
const (
	DateFormat = "2006-01-02" // YYYY-MM-DD
	TimeFormat = "15:04"      // HH:MM
)

const tempPrefix = "tmp-"

// SlotRef addresses one cell of the calendar grid.
type SlotRef struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,datetime=15:04"`
	Slot int    `json:"slot" validate:"required,min=1,max=3"`
}

// HistoryEntry is one line of a booking's audit trail.
type HistoryEntry struct {
	At      time.Time `json:"at"`
	ActorID string    `json:"actorId,omitempty"`
	Action  string    `json:"action"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	// Cleared keeps the values a transition wiped, e.g. the slot a cancellation freed.
	Cleared map[string]string `json:"cleared,omitempty"`
	Note    string            `json:"note,omitempty"`
}

type Booking struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Phone             string         `json:"phone,omitempty"`
	DateBooked        string         `json:"dateBooked,omitempty"`
	TimeBooked        string         `json:"timeBooked,omitempty"`
	BookingSlot       int            `json:"bookingSlot,omitempty"`
	CoarseStatus      CoarseStatus   `json:"coarseStatus"`
	FineStatus        FineStatus     `json:"fineStatus,omitempty"`
	IsConfirmed       Confirmation   `json:"isConfirmed"`
	IsDoubleConfirmed bool           `json:"isDoubleConfirmed"`
	HasSale           bool           `json:"hasSale"`
	AssignedOwnerID   string         `json:"assignedOwnerId,omitempty"`
	Review            *SlotRef       `json:"review,omitempty"`
	History           []HistoryEntry `json:"history,omitempty"`
	UpdatedAt         *time.Time     `json:"updatedAt,omitempty"`
}

// Scheduled reports whether the booking occupies a cell of the grid.
func (b Booking) Scheduled() bool {
	return b.DateBooked != "" && b.TimeBooked != "" && b.BookingSlot > 0
}

// Slot returns the booked cell; ok is false for unscheduled bookings.
func (b Booking) Slot() (SlotRef, bool) {
	if !b.Scheduled() {
		return SlotRef{}, false
	}
	return SlotRef{Date: b.DateBooked, Time: b.TimeBooked, Slot: b.BookingSlot}, true
}

// Active reports whether the booking still holds its slot.
func (b Booking) Active() bool {
	return b.CoarseStatus != CoarseCancelled && b.CoarseStatus != CoarseRejected
}

// WithHistory returns a copy of b with e appended to a fresh history slice, so
// the receiver's backing array is never shared with the result.
func (b Booking) WithHistory(e HistoryEntry) Booking {
	h := make([]HistoryEntry, len(b.History), len(b.History)+1)
	copy(h, b.History)
	b.History = append(h, e)
	return b
}

// Clone returns a deep copy.
func (b Booking) Clone() Booking {
	if b.Review != nil {
		r := *b.Review
		b.Review = &r
	}
	if b.UpdatedAt != nil {
		t := *b.UpdatedAt
		b.UpdatedAt = &t
	}
	if b.History != nil {
		h := make([]HistoryEntry, len(b.History))
		copy(h, b.History)
		b.History = h
	}
	return b
}

// BlockedRange is an administrative block. An empty TimeSlot blocks the
// whole day; a zero SlotNumber blocks every slot at TimeSlot.
type BlockedRange struct {
	ID         string `json:"id,omitempty"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot   string `json:"timeSlot,omitempty" validate:"omitempty,datetime=15:04"`
	SlotNumber int    `json:"slotNumber,omitempty" validate:"min=0,max=3"`
	Reason     string `json:"reason,omitempty"`
}

func NewTempID() string { return tempPrefix + uuid.NewString() }

func IsTempID(id string) bool { return strings.HasPrefix(id, tempPrefix) }
