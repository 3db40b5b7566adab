// Package mutation applies booking changes to the local cache first and
// confirms them with the remote store in the background, restoring the exact
// previous state when the remote store refuses.
package mutation

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/clock"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/events"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/eventcache"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/status"
)

// Remote is the write side of the remote store.
type Remote interface {
	CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error)
	UpdateBooking(ctx context.Context, id string, b booking.Booking) (booking.Booking, error)
}

// Emitter puts an envelope on the push channel.
type Emitter interface {
	Emit(ctx context.Context, env events.Envelope) error
}

// Reporter receives failures that happen after the call that caused them
// has returned.
type Reporter interface {
	Report(bookingID string, err *apperr.Error)
}

type logReporter struct{}

func (logReporter) Report(id string, err *apperr.Error) {
	log.Printf("[mutation] %s: %v", id, err)
}

type Config struct {
	// Origin tags emitted envelopes with the owning session.
	Origin     string
	RetryDelay time.Duration
	Timeout    time.Duration
	Grid       slots.Grid
}

type Coordinator struct {
	remote Remote
	store  *eventcache.Store
	emit   Emitter
	report Reporter
	clock  clock.Clock
	cfg    Config

	wg      sync.WaitGroup
	mu      sync.Mutex
	gen     map[string]uint64
	retries map[string]clock.Timer
	// creating holds temporary ids whose create call is running
	creating map[string]bool
	closed   bool
}

func NewCoordinator(remote Remote, store *eventcache.Store, emit Emitter, report Reporter, clk clock.Clock, cfg Config) *Coordinator {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Grid == nil {
		cfg.Grid = slots.DefaultGrid
	}
	if report == nil {
		report = logReporter{}
	}
	return &Coordinator{
		remote:  remote,
		store:   store,
		emit:    emit,
		report:  report,
		clock:   clk,
		cfg:     cfg,
		gen:      make(map[string]uint64),
		retries:  make(map[string]clock.Timer),
		creating: make(map[string]bool),
	}
}

// ApplyStatusChange moves the booking with id to target. The cache and peers
// see the change before this returns; the remote update runs afterwards and
// its failure is delivered to the Reporter. review is required for the
// Review target only.
func (c *Coordinator) ApplyStatusChange(ctx context.Context, actor status.Actor, id string, target booking.DisplayStatus, review *booking.SlotRef) (*eventcache.CalendarEvent, error) {
	const op = "mutation.status"
	snapshot, ok := c.store.Get(id)
	if !ok {
		return nil, apperr.Validation(op, "booking %s is not loaded", id)
	}
	cur := snapshot.ExtendedProps.Booking
	if err := status.Authorize(actor, cur, target); err != nil {
		return nil, err
	}
	next, err := status.Apply(cur, target, status.Options{
		Actor:    actor,
		At:       c.clock.Now(),
		Review:   review,
		Blocked:  c.store.Blocked(),
		Bookings: c.store.Bookings(),
		Grid:     c.cfg.Grid,
	})
	if err != nil {
		return nil, err
	}
	return c.commitUpdate(ctx, snapshot, next)
}

// CreateOrReschedule creates b when it has no id (or still carries a
// temporary one) and otherwise moves the existing booking to b's slot.
func (c *Coordinator) CreateOrReschedule(ctx context.Context, actor status.Actor, b booking.Booking) (*eventcache.CalendarEvent, error) {
	if b.ID == "" || booking.IsTempID(b.ID) {
		return c.create(actor, b)
	}
	return c.reschedule(ctx, actor, b)
}

func (c *Coordinator) create(actor status.Actor, b booking.Booking) (*eventcache.CalendarEvent, error) {
	const op = "mutation.create"
	if b.Name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	if ref, ok := b.Slot(); ok {
		if err := slots.Check(c.cfg.Grid, ref, c.store.Blocked(), c.store.Bookings(), b.ID); err != nil {
			return nil, err
		}
	} else if b.DateBooked != "" || b.TimeBooked != "" || b.BookingSlot != 0 {
		return nil, apperr.Validation(op, "date, time and slot must be given together")
	}
	if b.ID != "" {
		if _, ok := c.store.Get(b.ID); !ok {
			return nil, apperr.Validation(op, "booking %s is no longer pending", b.ID)
		}
	}

	now := c.clock.Now().UTC()
	next := b.Clone()
	if next.ID == "" {
		next.ID = booking.NewTempID()
	}
	if next.Scheduled() {
		next.CoarseStatus = booking.CoarseBooked
	} else if next.CoarseStatus == "" {
		next.CoarseStatus = booking.CoarseNew
	}
	if next.AssignedOwnerID == "" {
		next.AssignedOwnerID = actor.ID
	}
	next.UpdatedAt = &now
	if len(next.History) == 0 {
		next = next.WithHistory(booking.HistoryEntry{At: now, ActorID: actor.ID, Action: "created", To: string(status.Derive(next))})
	}

	tempID := next.ID
	g, ok := c.beginCreate(tempID)
	if !ok {
		return nil, apperr.Validation(op, "booking %s is already being saved", tempID)
	}
	ev, _ := c.store.UpsertBooking(next, true)
	c.wg.Add(1)
	go c.runCreate(tempID, next, g, false)
	return ev, nil
}

// beginCreate claims tempID for one create call. It fails while an earlier
// call for the same id is still running.
func (c *Coordinator) beginCreate(tempID string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creating[tempID] {
		return 0, false
	}
	g := c.bumpLocked(tempID)
	c.creating[tempID] = true
	return g, true
}

func (c *Coordinator) reschedule(ctx context.Context, actor status.Actor, b booking.Booking) (*eventcache.CalendarEvent, error) {
	const op = "mutation.reschedule"
	snapshot, ok := c.store.Get(b.ID)
	if !ok {
		return nil, apperr.Validation(op, "booking %s is not loaded", b.ID)
	}
	cur := snapshot.ExtendedProps.Booking
	if err := status.Authorize(actor, cur, booking.DisplayReschedule); err != nil {
		return nil, err
	}
	ref, ok := b.Slot()
	if !ok {
		return nil, apperr.Validation(op, "date, time and slot are required")
	}
	if err := slots.Check(c.cfg.Grid, ref, c.store.Blocked(), c.store.Bookings(), cur.ID); err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC()
	next := cur.Clone()
	if b.Name != "" {
		next.Name = b.Name
	}
	if b.Phone != "" {
		next.Phone = b.Phone
	}
	entry := booking.HistoryEntry{At: now, ActorID: actor.ID, Action: "reschedule", From: slotLabel(cur), To: ref.Date + " " + ref.Time + " #" + strconv.Itoa(ref.Slot)}
	next.DateBooked, next.TimeBooked, next.BookingSlot = ref.Date, ref.Time, ref.Slot
	next.CoarseStatus = booking.CoarseBooked
	// a new slot has been chosen; the booking still waits for confirmation
	if next.FineStatus == booking.FineReschedule {
		next.FineStatus = booking.FineNone
		next.IsConfirmed = booking.ConfirmNo
	}
	next.UpdatedAt = &now
	return c.commitUpdate(ctx, snapshot, next.WithHistory(entry))
}

func slotLabel(b booking.Booking) string {
	if !b.Scheduled() {
		return ""
	}
	return b.DateBooked + " " + b.TimeBooked + " #" + strconv.Itoa(b.BookingSlot)
}

// commitUpdate writes next into the cache, tells peers, and starts the
// remote update. snapshot is what a rollback restores.
func (c *Coordinator) commitUpdate(ctx context.Context, snapshot *eventcache.CalendarEvent, next booking.Booking) (*eventcache.CalendarEvent, error) {
	ev, _ := c.store.UpsertBooking(next, true)
	g := c.bump(next.ID)
	c.broadcast(ctx, next)

	c.wg.Add(1)
	go c.runUpdate(snapshot, next, g, false)
	return ev, nil
}

// bump starts a new generation for id and cancels a retry left over from an
// earlier mutation of the same booking.
func (c *Coordinator) bump(id string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bumpLocked(id)
}

func (c *Coordinator) bumpLocked(id string) uint64 {
	c.gen[id]++
	if t, ok := c.retries[id]; ok {
		delete(c.retries, id)
		if t.Stop() {
			c.wg.Done()
		}
	}
	return c.gen[id]
}

func (c *Coordinator) current(id string, g uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[id] == g
}

func (c *Coordinator) broadcast(ctx context.Context, b booking.Booking) {
	if c.emit == nil {
		return
	}
	env, err := events.New(events.TypeStatusChanged, c.cfg.Origin, events.StatusChanged{Booking: b}, c.clock.Now())
	if err == nil {
		err = c.emit.Emit(ctx, env)
	}
	if err != nil {
		log.Printf("[mutation] broadcast %s failed: %v", b.ID, err)
	}
}

func (c *Coordinator) runUpdate(snapshot *eventcache.CalendarEvent, next booking.Booking, g uint64, retried bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	got, err := c.remote.UpdateBooking(ctx, next.ID, next)
	cancel()
	if err == nil {
		if c.current(next.ID, g) {
			c.store.UpsertBooking(got, false)
		}
		c.wg.Done()
		return
	}

	e := apperr.Categorize("mutation.update", err)
	if e.Kind.Retryable() {
		log.Printf("[mutation] update %s unreachable, kept pending: %v", next.ID, e)
		c.report.Report(next.ID, e)
		if !retried && c.retryLater(next.ID, g, false, func() { c.runUpdate(snapshot, next, g, true) }) {
			return
		}
		c.wg.Done()
		return
	}

	if c.current(next.ID, g) {
		c.store.Restore(next.ID, snapshot)
		if snapshot != nil {
			c.broadcast(context.Background(), snapshot.ExtendedProps.Booking)
		}
		log.Printf("[mutation] update %s rolled back: %v", next.ID, e)
	} else {
		log.Printf("[mutation] update %s failed after a newer change: %v", next.ID, e)
	}
	c.report.Report(next.ID, e)
	c.wg.Done()
}

func (c *Coordinator) runCreate(tempID string, draft booking.Booking, g uint64, retried bool) {
	send := draft.Clone()
	send.ID = ""
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	got, err := c.remote.CreateBooking(ctx, send)
	cancel()
	c.mu.Lock()
	delete(c.creating, tempID)
	if err == nil {
		delete(c.gen, tempID)
	}
	c.mu.Unlock()
	if err == nil {
		c.store.Swap(tempID, c.store.Builder().Build(got, eventcache.Flags{}))
		c.wg.Done()
		return
	}

	// a failed create stays in the cache, marked pending, so the entry is
	// not lost; resubmitting it with its temporary id tries again
	e := apperr.Categorize("mutation.create", err)
	log.Printf("[mutation] create %s kept pending: %v", tempID, e)
	c.report.Report(tempID, e)
	if e.Kind.Retryable() && !retried && c.retryLater(tempID, g, true, func() { c.runCreate(tempID, draft, g, true) }) {
		return
	}
	c.wg.Done()
}

// retryLater arms the single delayed retry for id. The caller's WaitGroup
// slot moves to the timer; it reports false when the coordinator is closed
// or a newer mutation took over. A retry that fires after being superseded
// does nothing. create marks id as having a create call running.
func (c *Coordinator) retryLater(id string, g uint64, create bool, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen[id] != g {
		return false
	}
	var t clock.Timer
	t = c.clock.AfterFunc(c.cfg.RetryDelay, func() {
		c.mu.Lock()
		if c.retries[id] == t {
			delete(c.retries, id)
		}
		stale := c.closed || c.gen[id] != g || (create && c.creating[id])
		if !stale && create {
			c.creating[id] = true
		}
		c.mu.Unlock()
		if stale {
			c.wg.Done()
			return
		}
		fn()
	})
	c.retries[id] = t
	return true
}

// Wait blocks until every remote call started so far has resolved,
// including armed retries.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close cancels armed retries and waits for calls already running.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for id, t := range c.retries {
		delete(c.retries, id)
		if t.Stop() {
			c.wg.Done()
		}
	}
	c.mu.Unlock()
	c.wg.Wait()
}
