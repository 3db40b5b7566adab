package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	b := booking.Booking{ID: "b1", CoarseStatus: booking.CoarseBooked, IsConfirmed: booking.ConfirmYes}
	env, err := New(TypeStatusChanged, "sess-1", StatusChanged{Booking: b}, at)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	got, err := MustUnmarshal[Envelope](raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeStatusChanged || got.Origin != "sess-1" || !got.OccurredAt.Equal(at) {
		t.Fatalf("unexpected envelope %+v", got)
	}
	sc, err := Decode[StatusChanged](got)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Booking.ID != "b1" || sc.Booking.IsConfirmed != booking.ConfirmYes {
		t.Fatalf("unexpected payload %+v", sc.Booking)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode[BookingRemoved](Envelope{Payload: json.RawMessage(`[1,2`)}); err == nil {
		t.Fatal("expected decode error")
	}
}
