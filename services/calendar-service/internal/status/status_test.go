package status

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
)

var now = time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC)

func bookedAt(id, owner string) booking.Booking {
	return booking.Booking{
		ID: id, Name: "Jo", DateBooked: "2025-06-01", TimeBooked: "10:00", BookingSlot: 1,
		CoarseStatus: booking.CoarseBooked, AssignedOwnerID: owner,
	}
}

func TestDerive(t *testing.T) {
	ts := now
	cases := []struct {
		name string
		b    booking.Booking
		want booking.DisplayStatus
	}{
		{"cancelled beats everything", booking.Booking{CoarseStatus: booking.CoarseCancelled, FineStatus: booking.FineArrived, IsDoubleConfirmed: true}, booking.DisplayCancelled},
		{"fine status on booked", booking.Booking{CoarseStatus: booking.CoarseBooked, FineStatus: booking.FineNoShow, IsConfirmed: booking.ConfirmYes}, booking.DisplayNoShow},
		{"review sub-state", booking.Booking{CoarseStatus: booking.CoarseBooked, FineStatus: booking.FineReview}, booking.DisplayReview},
		{"fine status ignored when not booked", booking.Booking{CoarseStatus: booking.CoarseAttended, FineStatus: booking.FineLeft}, booking.DisplayAttended},
		{"double confirmed", booking.Booking{CoarseStatus: booking.CoarseBooked, IsDoubleConfirmed: true, IsConfirmed: booking.ConfirmNo}, booking.DisplayDoubleConfirmed},
		{"confirmed", booking.Booking{CoarseStatus: booking.CoarseBooked, IsConfirmed: booking.ConfirmYes}, booking.DisplayConfirmed},
		{"unconfirmed", booking.Booking{CoarseStatus: booking.CoarseBooked, IsConfirmed: booking.ConfirmNo}, booking.DisplayUnconfirmed},
		{"unassigned", booking.Booking{CoarseStatus: booking.CoarseBooked}, booking.DisplayUnassigned},
		{"booked with update stamp", booking.Booking{CoarseStatus: booking.CoarseBooked, UpdatedAt: &ts}, booking.DisplayBooked},
		{"booked with date", booking.Booking{CoarseStatus: booking.CoarseBooked, DateBooked: "2025-06-01"}, booking.DisplayBooked},
		{"attended", booking.Booking{CoarseStatus: booking.CoarseAttended}, booking.DisplayAttended},
		{"attended with sale", booking.Booking{CoarseStatus: booking.CoarseAttended, HasSale: true}, booking.DisplayComplete},
		{"new", booking.Booking{CoarseStatus: booking.CoarseNew}, booking.DisplayNew},
		{"rejected", booking.Booking{CoarseStatus: booking.CoarseRejected}, booking.DisplayRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Derive(tc.b); got != tc.want {
				t.Fatalf("Derive = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDeriveDeterministic(t *testing.T) {
	coarse := []booking.CoarseStatus{booking.CoarseNew, booking.CoarseBooked, booking.CoarseCancelled, booking.CoarseRejected, booking.CoarseAttended}
	fine := []booking.FineStatus{booking.FineNone, booking.FineReschedule, booking.FineArrived, booking.FineLeft, booking.FineNoShow, booking.FineNoSale, booking.FineReview}
	conf := []booking.Confirmation{booking.ConfirmUnset, booking.ConfirmNo, booking.ConfirmYes}
	for _, c := range coarse {
		for _, f := range fine {
			for _, ic := range conf {
				for _, dc := range []bool{false, true} {
					for _, sale := range []bool{false, true} {
						b := booking.Booking{CoarseStatus: c, FineStatus: f, IsConfirmed: ic, IsDoubleConfirmed: dc, HasSale: sale}
						first := Derive(b)
						if !first.Valid() {
							t.Fatalf("%+v derived invalid status %q", b, first)
						}
						for i := 0; i < 3; i++ {
							if got := Derive(b); got != first {
								t.Fatalf("%+v: %s then %s", b, first, got)
							}
						}
					}
				}
			}
		}
	}
}

func TestPermissionMatrix(t *testing.T) {
	targets := []booking.DisplayStatus{
		booking.DisplayConfirmed, booking.DisplayUnconfirmed, booking.DisplayCancelled,
		booking.DisplayDoubleConfirmed, booking.DisplayArrived, booking.DisplayLeft,
		booking.DisplayNoShow, booking.DisplayNoSale, booking.DisplayReview, booking.DisplayReschedule,
		booking.DisplayAttended,
	}
	roles := []string{auth.RoleAdmin, auth.RoleViewer, auth.RoleBooker, "receptionist", ""}
	for _, role := range roles {
		for _, target := range targets {
			for _, own := range []bool{true, false} {
				owner := "someone-else"
				if own {
					owner = "me"
				}
				b := bookedAt("b1", owner)
				err := Authorize(Actor{ID: "me", Role: role}, b, target)

				var want bool
				switch role {
				case auth.RoleAdmin, auth.RoleViewer:
					want = true
				case auth.RoleBooker:
					want = own || bookerAnyBooking[target]
				}
				if (err == nil) != want {
					t.Errorf("role=%q target=%s own=%v: err=%v, want allowed=%v", role, target, own, err, want)
				}
				if err != nil && !errors.Is(err, apperr.ErrPermissionDenied) {
					t.Errorf("denial must be PermissionDenied, got %v", err)
				}
			}
		}
	}
}

func TestBookerScenario(t *testing.T) {
	b := bookedAt("b1", "owner-2")
	actor := Actor{ID: "booker-1", Role: auth.RoleBooker}
	got, err := Transition(b, booking.DisplayArrived, Options{Actor: actor, At: now})
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("Arrived on a foreign booking: err = %v", err)
	}
	if !reflect.DeepEqual(got, b) {
		t.Fatalf("denied transition must leave the booking unchanged")
	}
	got, err = Transition(b, booking.DisplayCancelled, Options{Actor: actor, At: now})
	if err != nil {
		t.Fatalf("Cancelled on a foreign booking: %v", err)
	}
	if got.CoarseStatus != booking.CoarseCancelled {
		t.Fatalf("coarse = %s", got.CoarseStatus)
	}
}

func TestCancelClearsSlotAndFreesIt(t *testing.T) {
	b := bookedAt("b1", "me")
	b.IsConfirmed = booking.ConfirmYes
	b.FineStatus = booking.FineArrived
	got, err := Apply(b, booking.DisplayCancelled, Options{Actor: Actor{ID: "me"}, At: now})
	if err != nil {
		t.Fatal(err)
	}
	if got.DateBooked != "" || got.TimeBooked != "" || got.BookingSlot != 0 || got.IsConfirmed != booking.ConfirmUnset || got.FineStatus != booking.FineNone {
		t.Fatalf("fields not cleared: %+v", got)
	}
	if got.CoarseStatus != booking.CoarseCancelled || Derive(got) != booking.DisplayCancelled {
		t.Fatalf("status = %s", got.CoarseStatus)
	}
	if len(got.History) != 1 {
		t.Fatalf("history = %+v", got.History)
	}
	cleared := got.History[0].Cleared
	if cleared["dateBooked"] != "2025-06-01" || cleared["timeBooked"] != "10:00" || cleared["bookingSlot"] != "1" || cleared["isConfirmed"] != "true" {
		t.Fatalf("history must keep the cleared values, got %v", cleared)
	}
	if len(b.History) != 0 || b.DateBooked == "" {
		t.Fatalf("input booking was modified")
	}

	free := slots.Available("2025-06-01", nil, []booking.Booking{got})
	found := false
	for _, s := range free {
		if s.Time == "10:00" && s.Number == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("cancelled slot should be available again")
	}
}

func TestSideEffects(t *testing.T) {
	base := bookedAt("b1", "me")
	base.FineStatus = booking.FineReschedule
	base.IsConfirmed = booking.ConfirmYes
	base.IsDoubleConfirmed = true

	cases := []struct {
		target booking.DisplayStatus
		check  func(t *testing.T, b booking.Booking)
	}{
		{booking.DisplayDoubleConfirmed, func(t *testing.T, b booking.Booking) {
			if b.IsConfirmed != booking.ConfirmYes || !b.IsDoubleConfirmed || b.FineStatus != booking.FineNone {
				t.Fatalf("%+v", b)
			}
		}},
		{booking.DisplayConfirmed, func(t *testing.T, b booking.Booking) {
			if b.IsConfirmed != booking.ConfirmYes || b.IsDoubleConfirmed || b.FineStatus != booking.FineNone {
				t.Fatalf("%+v", b)
			}
		}},
		{booking.DisplayUnconfirmed, func(t *testing.T, b booking.Booking) {
			if b.IsConfirmed != booking.ConfirmNo || b.IsDoubleConfirmed || b.FineStatus != booking.FineNone {
				t.Fatalf("%+v", b)
			}
		}},
		{booking.DisplayReschedule, func(t *testing.T, b booking.Booking) {
			if b.FineStatus != booking.FineReschedule || b.IsConfirmed != booking.ConfirmNo {
				t.Fatalf("%+v", b)
			}
		}},
		{booking.DisplayNoSale, func(t *testing.T, b booking.Booking) {
			if b.FineStatus != booking.FineNoSale || b.IsConfirmed != booking.ConfirmUnset || !b.IsDoubleConfirmed {
				t.Fatalf("%+v", b)
			}
		}},
		{booking.DisplayAttended, func(t *testing.T, b booking.Booking) {
			if b.CoarseStatus != booking.CoarseAttended || b.FineStatus != booking.FineNone {
				t.Fatalf("%+v", b)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(string(tc.target), func(t *testing.T) {
			got, err := Apply(base, tc.target, Options{At: now})
			if err != nil {
				t.Fatal(err)
			}
			tc.check(t, got)
			if got.UpdatedAt == nil || !got.UpdatedAt.Equal(now) {
				t.Fatalf("UpdatedAt = %v", got.UpdatedAt)
			}
			if n := len(got.History); n != 1 || got.History[0].To != string(tc.target) {
				t.Fatalf("history = %+v", got.History)
			}
		})
	}
}

func TestReviewNeedsAvailableCompanion(t *testing.T) {
	b := bookedAt("b1", "me")
	b.IsConfirmed = booking.ConfirmYes
	other := bookedAt("b2", "x")
	other.TimeBooked = "14:00"
	others := []booking.Booking{b, other}

	if _, err := Apply(b, booking.DisplayReview, Options{At: now, Bookings: others}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("missing companion: err = %v", err)
	}
	taken := &booking.SlotRef{Date: "2025-06-01", Time: "14:00", Slot: 1}
	if _, err := Apply(b, booking.DisplayReview, Options{At: now, Review: taken, Bookings: others}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("occupied companion: err = %v", err)
	}
	ownSlot := &booking.SlotRef{Date: "2025-06-01", Time: "10:00", Slot: 1}
	if _, err := Apply(b, booking.DisplayReview, Options{At: now, Review: ownSlot, Bookings: others}); err == nil {
		t.Fatalf("the original slot stays occupied and cannot be the review slot")
	}

	ref := &booking.SlotRef{Date: "2025-06-01", Time: "14:00", Slot: 2}
	got, err := Apply(b, booking.DisplayReview, Options{At: now, Review: ref, Bookings: others})
	if err != nil {
		t.Fatal(err)
	}
	if got.FineStatus != booking.FineReview || got.IsConfirmed != booking.ConfirmYes || got.Review == nil || *got.Review != *ref {
		t.Fatalf("%+v", got)
	}
	if got.DateBooked != "2025-06-01" || got.TimeBooked != "10:00" {
		t.Fatalf("review keeps the original slot: %+v", got)
	}

	// leaving Review drops the companion
	back, err := Apply(got, booking.DisplayConfirmed, Options{At: now})
	if err != nil {
		t.Fatal(err)
	}
	if back.Review != nil {
		t.Fatalf("review companion should be dropped")
	}
}

func TestDerivedOnlyTargetsRejected(t *testing.T) {
	for _, target := range []booking.DisplayStatus{booking.DisplayComplete, booking.DisplayUnassigned, "Bogus"} {
		if _, err := Apply(bookedAt("b1", ""), target, Options{At: now}); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: err = %v", target, err)
		}
	}
}
