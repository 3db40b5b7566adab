package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

// OriginHeader carries the session a write came from, so the push event it
// causes can be recognised by that session.
const OriginHeader = "X-Origin-Session"

// Push types. The routing key of a published envelope equals its type.
const (
	TypeStatusChanged     = "booking.status_changed"
	TypeBookingCreated    = "booking.created"
	TypeBookingRemoved    = "booking.removed"
	TypeAssignmentChanged = "booking.assignment_changed"
	TypeBlockedChanged    = "booking.blocked_changed"
	TypeMessageReceived   = "message.received"
	TypeLeadCreated       = "lead.created"
	TypeLeadDeleted       = "lead.deleted"
)

// Envelope is the {type, payload} shape carried by the push channel in both
// directions. Origin names the session that caused the event, if any.
type Envelope struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Origin     string          `json:"origin,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// StatusChanged carries the full updated booking.
type StatusChanged struct {
	Booking booking.Booking `json:"booking"`
}

type BookingCreated struct {
	Booking booking.Booking `json:"booking"`
}

type BookingRemoved struct {
	ID string `json:"id"`
}

type MessageReceived struct {
	BookingID string `json:"bookingId"`
	Channel   string `json:"channel,omitempty"` // sms|email
	Preview   string `json:"preview,omitempty"`
}

// New builds an envelope around payload.
func New(typ, origin string, payload any, at time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: b, Origin: origin, OccurredAt: at.UTC()}, nil
}

func MustUnmarshal[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload failed: %w", err)
	}
	return t, nil
}

// Decode reads the payload of e into T.
func Decode[T any](e Envelope) (T, error) {
	return MustUnmarshal[T](e.Payload)
}
