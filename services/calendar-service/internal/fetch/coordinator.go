// Package fetch decides when the calendar re-reads bookings from the remote
// store. At most one refresh is outstanding, refreshes are rate limited, and
// a window that is already loaded is not read again.
package fetch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/apperr"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/booking"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/clock"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/eventcache"
)

// Loader is the read side of the remote store.
type Loader interface {
	ListBookings(ctx context.Context, from, to string) ([]booking.Booking, error)
	ListBlocked(ctx context.Context, from, to string) ([]booking.BlockedRange, error)
}

// Range is an inclusive window of dates.
type Range struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

// Key identifies the window in the loaded set.
func (r Range) Key() string { return r.From + ".." + r.To }

type State int

const (
	Idle State = iota
	// Pending: a debounced refresh is armed.
	Pending
	InFlight
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InFlight:
		return "in_flight"
	}
	return "idle"
}

// Outcome says what a RequestFetch call did.
type Outcome int

const (
	Fetched Outcome = iota
	SkippedNoRange
	SkippedInFlight
	SkippedInterval
	SkippedLoaded
	// Stale: the read finished after a forced refresh superseded it and its
	// result was discarded.
	Stale
	Failed
	Closed
)

func (o Outcome) String() string {
	return [...]string{"fetched", "skipped_no_range", "skipped_in_flight", "skipped_interval", "skipped_loaded", "stale", "failed", "closed"}[o]
}

type Config struct {
	MinInterval time.Duration
	Debounce    time.Duration
}

type Coordinator struct {
	loader Loader
	store  *eventcache.Store
	clock  clock.Clock
	cfg    Config

	mu       sync.Mutex
	current  Range
	loaded   map[string]bool
	inFlight bool
	last     time.Time
	seq      uint64
	timer    clock.Timer
	armed    bool
	closed   bool
}

func NewCoordinator(loader Loader, store *eventcache.Store, clk clock.Clock, cfg Config) *Coordinator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Coordinator{
		loader: loader,
		store:  store,
		clock:  clk,
		cfg:    cfg,
		loaded: make(map[string]bool),
	}
}

// SetRange makes r the window later fetches load.
func (c *Coordinator) SetRange(r Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = r
}

func (c *Coordinator) Range() Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.inFlight:
		return InFlight
	case c.armed:
		return Pending
	}
	return Idle
}

// Loaded reports whether r has been read since the last forced refresh.
func (c *Coordinator) Loaded(r Range) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded[r.Key()]
}

// RequestFetch reads the current window and folds it into the store. A
// forced fetch empties the store and the loaded set first and ignores the
// in-flight and interval guards; its result replaces the store contents.
func (c *Coordinator) RequestFetch(ctx context.Context, force bool) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Closed, nil
	}
	r := c.current
	if r.From == "" || r.To == "" {
		c.mu.Unlock()
		return SkippedNoRange, nil
	}
	now := c.clock.Now()
	if force {
		c.loaded = make(map[string]bool)
		c.store.Clear()
	} else {
		switch {
		case c.inFlight:
			c.mu.Unlock()
			return SkippedInFlight, nil
		case !c.last.IsZero() && now.Sub(c.last) < c.cfg.MinInterval:
			c.mu.Unlock()
			return SkippedInterval, nil
		case c.loaded[r.Key()]:
			c.mu.Unlock()
			return SkippedLoaded, nil
		}
	}
	c.seq++
	id := c.seq
	c.inFlight = true
	c.last = now
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.seq == id {
			c.inFlight = false
		}
		c.mu.Unlock()
	}()

	bookings, err := c.loader.ListBookings(ctx, r.From, r.To)
	if err != nil {
		return Failed, apperr.Categorize("fetch.bookings", err)
	}
	blocked, err := c.loader.ListBlocked(ctx, r.From, r.To)
	if err != nil {
		return Failed, apperr.Categorize("fetch.blocked", err)
	}

	builder := c.store.Builder()
	events := make([]*eventcache.CalendarEvent, 0, len(bookings))
	for _, b := range bookings {
		events = append(events, builder.Build(b, eventcache.Flags{}))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.seq || c.closed {
		log.Printf("[fetch] discarding stale result for %s (request %d, active %d)", r.Key(), id, c.seq)
		return Stale, nil
	}
	if force {
		c.store.Replace(events)
	} else {
		added := c.store.Merge(events)
		log.Printf("[fetch] %s: %d bookings read, %d new", r.Key(), len(bookings), added)
	}
	c.store.SetBlocked(blocked)
	c.loaded[r.Key()] = true
	return Fetched, nil
}

// Schedule arms the debounced refresh. Calls inside the quiet period push
// the deadline out, so a burst of notifications costs one read.
func (c *Coordinator) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer == nil {
		c.timer = c.clock.AfterFunc(c.cfg.Debounce, c.fire)
	} else {
		c.timer.Reset(c.cfg.Debounce)
	}
	c.armed = true
}

func (c *Coordinator) fire() {
	c.mu.Lock()
	c.armed = false
	if c.closed {
		c.mu.Unlock()
		return
	}
	// the window is known to be out of date
	delete(c.loaded, c.current.Key())
	c.mu.Unlock()

	out, err := c.RequestFetch(context.Background(), false)
	switch {
	case err != nil:
		log.Printf("[fetch] debounced refresh failed: %v", err)
	case out == SkippedInFlight || out == SkippedInterval:
		c.Schedule()
	}
}

// Close stops the debounce timer and makes later requests no-ops. Results
// of reads still running are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.armed = false
	if c.timer != nil {
		c.timer.Stop()
	}
}
