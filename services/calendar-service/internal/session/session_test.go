package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/auth"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/clock"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/config"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/fetch"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/push"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/remote"
)

// server is an in-memory booking store shared by every session's client.
type server struct {
	mu       sync.Mutex
	bookings map[string]booking.Booking
	blocked  []booking.BlockedRange
	reads    int
	tokens   []string
}

func (s *server) client(token func() string, origin string) remote.API {
	return &client{srv: s, token: token}
}

type client struct {
	srv   *server
	token func() string
}

func (c *client) ListBookings(ctx context.Context, from, to string) ([]booking.Booking, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.srv.reads++
	c.srv.tokens = append(c.srv.tokens, c.token())
	var out []booking.Booking
	for _, b := range c.srv.bookings {
		if b.DateBooked >= from && b.DateBooked <= to {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *client) ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.srv.blocked, nil
}

func (c *client) CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	return booking.Booking{}, apperr.New(apperr.KindServer, "create", "not supported")
}

func (c *client) UpdateBooking(ctx context.Context, id string, b booking.Booking) (booking.Booking, error) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if _, ok := c.srv.bookings[id]; !ok {
		return booking.Booking{}, apperr.New(apperr.KindValidation, "update", "not found")
	}
	c.srv.bookings[id] = b
	return b, nil
}

// loopback publishes emitted envelopes straight into the hub.
type loopback struct{ hub *push.Hub }

func (l loopback) Emit(ctx context.Context, env events.Envelope) error {
	l.hub.Broadcast(env)
	return nil
}

type fixture struct {
	m   *Manager
	srv *server
	hub *push.Hub
	clk *clock.Fake
}

func setup(t *testing.T) fixture {
	t.Helper()
	srv := &server{bookings: map[string]booking.Booking{
		"1": {ID: "1", Name: "Ann", DateBooked: "2025-06-02", TimeBooked: "10:00", BookingSlot: 1, CoarseStatus: booking.CoarseBooked, IsConfirmed: booking.ConfirmNo, AssignedOwnerID: "u-1"},
		"2": {ID: "2", Name: "Bo", DateBooked: "2025-06-20", TimeBooked: "11:00", BookingSlot: 2, CoarseStatus: booking.CoarseBooked},
	}}
	hub := push.NewHub(nil)
	clk := clock.NewFake(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	cfg := Config{Scheduler: config.Scheduler{
		FetchMinInterval: 2 * time.Second,
		RefreshDebounce:  3 * time.Second,
		RetryDelay:       5 * time.Second,
		RemoteTimeout:    time.Second,
		SlotLength:       30 * time.Minute,
		TimeZone:         "UTC",
		SessionIdle:      time.Hour,
	}}
	m := NewManager(cfg, hub, loopback{hub: hub}, clk, srv.client)
	t.Cleanup(m.CloseAll)
	return fixture{m: m, srv: srv, hub: hub, clk: clk}
}

var june = fetch.Range{From: "2025-06-02", To: "2025-06-08"}

func TestGetReusesSession(t *testing.T) {
	f := setup(t)
	a := f.m.Get("u-1", auth.RoleAdmin, "tok-1")
	b := f.m.Get("u-1", auth.RoleAdmin, "tok-2")
	if a != b || b.Token() != "tok-2" || f.m.Len() != 1 || f.hub.Len() != 1 {
		t.Fatalf("same=%v token=%q len=%d", a == b, b.Token(), f.m.Len())
	}
	c := f.m.Get("u-1", auth.RoleBooker, "tok-3")
	if c == a || c.Actor().Role != auth.RoleBooker || f.hub.Len() != 1 {
		t.Fatal("role change must start a new session")
	}
}

func TestSetViewLoadsWindow(t *testing.T) {
	f := setup(t)
	s := f.m.Get("u-1", auth.RoleAdmin, "tok-1")
	out, err := s.SetView(context.Background(), june)
	if err != nil || out != fetch.Fetched {
		t.Fatalf("out=%v err=%v", out, err)
	}
	evs := s.Events()
	if len(evs) != 1 || evs[0].ID != "1" {
		t.Fatalf("events = %+v", evs)
	}
	if f.srv.tokens[0] != "tok-1" {
		t.Fatalf("token sent = %q", f.srv.tokens[0])
	}

	// navigating inside the rate limit defers the load to the debounced refresh
	next := fetch.Range{From: "2025-06-16", To: "2025-06-22"}
	if out, _ := s.SetView(context.Background(), next); out != fetch.SkippedInterval {
		t.Fatalf("out = %v", out)
	}
	f.clk.Advance(3 * time.Second)
	if len(s.Events()) != 2 {
		t.Fatalf("deferred load did not happen: %d events", len(s.Events()))
	}
}

func TestAvailableSlots(t *testing.T) {
	f := setup(t)
	s := f.m.Get("u-1", auth.RoleAdmin, "tok")
	s.SetView(context.Background(), june)
	reads := f.srv.reads

	free, err := s.AvailableSlots(context.Background(), "2025-06-02")
	if err != nil {
		t.Fatal(err)
	}
	for _, sl := range free {
		if sl.Time == "10:00" && sl.Number == 1 {
			t.Fatal("booked cell reported free")
		}
	}
	if f.srv.reads != reads {
		t.Fatal("date in view should be served from cache")
	}
	if _, err := s.AvailableSlots(context.Background(), "2025-06-20"); err != nil || f.srv.reads != reads+1 {
		t.Fatalf("date outside view: reads=%d err=%v", f.srv.reads, err)
	}
}

func TestChangeReachesPeers(t *testing.T) {
	f := setup(t)
	admin := f.m.Get("u-admin", auth.RoleAdmin, "tok-a")
	peer := f.m.Get("u-2", auth.RoleViewer, "tok-b")
	admin.SetView(context.Background(), june)
	peer.SetView(context.Background(), june)

	if _, err := admin.ApplyStatusChange(context.Background(), "1", booking.DisplayConfirmed, nil); err != nil {
		t.Fatal(err)
	}
	for _, ev := range peer.Events() {
		if ev.ID == "1" && ev.ExtendedProps.DisplayStatus != booking.DisplayConfirmed {
			t.Fatalf("peer sees %s", ev.ExtendedProps.DisplayStatus)
		}
	}
	admin.mut.Wait()
	if f.srv.bookings["1"].IsConfirmed != booking.ConfirmYes {
		t.Fatal("remote store not updated")
	}
}

func TestFailuresBecomeNotices(t *testing.T) {
	f := setup(t)
	s := f.m.Get("u-1", auth.RoleAdmin, "tok")
	s.CreateOrReschedule(context.Background(), booking.Booking{Name: "New lead"})
	s.mut.Wait()

	ns := s.Notices()
	if len(ns) != 1 || ns[0].Kind != apperr.KindServer.String() {
		t.Fatalf("notices = %+v", ns)
	}
	if len(s.Notices()) != 0 {
		t.Fatal("notices not drained")
	}
}

func TestPermissionDeniedIsImmediate(t *testing.T) {
	f := setup(t)
	s := f.m.Get("u-9", auth.RoleBooker, "tok")
	s.SetView(context.Background(), june)
	_, err := s.ApplyStatusChange(context.Background(), "1", booking.DisplayArrived, nil)
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
}

func TestSweepAndLogout(t *testing.T) {
	f := setup(t)
	f.m.Get("u-1", auth.RoleAdmin, "tok")
	f.clk.Advance(30 * time.Minute)
	f.m.Get("u-2", auth.RoleAdmin, "tok")
	f.clk.Advance(45 * time.Minute)
	if n := f.m.Sweep(); n != 1 || f.m.Len() != 1 {
		t.Fatalf("swept %d, left %d", n, f.m.Len())
	}
	if !f.m.Logout("u-2") || f.m.Logout("u-2") || f.hub.Len() != 0 {
		t.Fatal("logout")
	}
}
