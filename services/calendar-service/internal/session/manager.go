package session

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/clock"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/config"
	"github.com/tmx156/EdgeTalentcrm-sub002/pkg/slots"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/eventcache"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/fetch"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/mutation"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/push"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/realtime"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/remote"
	"github.com/tmx156/EdgeTalentcrm-sub002/services/calendar-service/internal/status"
)

// Hub is where sessions subscribe to the push channel.
type Hub interface {
	Subscribe(id string, s push.Subscriber)
	Unsubscribe(id string)
}

// RemoteFactory builds the remote client of one session.
type RemoteFactory func(token func() string, origin string) remote.API

type Config struct {
	BookingServiceURL string
	Scheduler         config.Scheduler
	Grid              slots.Grid
}

// Manager keeps one session per user id.
type Manager struct {
	cfg       Config
	hub       Hub
	emit      mutation.Emitter
	clock     clock.Clock
	newRemote RemoteFactory

	mu     sync.Mutex
	byUser map[string]*Session
}

func NewManager(cfg Config, hub Hub, emit mutation.Emitter, clk clock.Clock, newRemote RemoteFactory) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.Grid == nil {
		cfg.Grid = slots.DefaultGrid
	}
	if newRemote == nil {
		timeout := cfg.Scheduler.RemoteTimeout
		base := cfg.BookingServiceURL
		newRemote = func(token func() string, origin string) remote.API {
			return remote.NewClient(base, timeout, token, origin)
		}
	}
	return &Manager{cfg: cfg, hub: hub, emit: emit, clock: clk, newRemote: newRemote, byUser: make(map[string]*Session)}
}

// Get returns the session of userID, creating it on first use. The token
// of an existing session is refreshed.
func (m *Manager) Get(userID, role, token string) *Session {
	m.mu.Lock()
	var stale *Session
	if s, ok := m.byUser[userID]; ok {
		if s.actor.Role == role {
			m.mu.Unlock()
			s.SetToken(token)
			s.touch()
			return s
		}
		// the role changed under the user; start over with the new one
		stale = m.detachLocked(userID, s)
	}
	s := m.build(status.Actor{ID: userID, Role: role}, token)
	m.byUser[userID] = s
	if m.hub != nil {
		m.hub.Subscribe(s.id, s)
	}
	m.mu.Unlock()

	closeAll(stale)
	log.Printf("[calendar] session %s opened for %s (%s)", s.id, userID, role)
	return s
}

func (m *Manager) build(actor status.Actor, token string) *Session {
	sc := m.cfg.Scheduler
	s := &Session{id: uuid.NewString(), actor: actor, clock: m.clock, grid: m.cfg.Grid}
	s.token.Store(token)
	s.touch()
	s.remote = m.newRemote(s.Token, s.id)
	s.store = eventcache.NewStore(eventcache.Builder{Location: sc.Location(), SlotLength: sc.SlotLength})
	s.fetch = fetch.NewCoordinator(s.remote, s.store, m.clock, fetch.Config{
		MinInterval: sc.FetchMinInterval,
		Debounce:    sc.RefreshDebounce,
	})
	s.mut = mutation.NewCoordinator(s.remote, s.store, m.emit, s, m.clock, mutation.Config{
		Origin:     s.id,
		RetryDelay: sc.RetryDelay,
		Timeout:    sc.RemoteTimeout,
		Grid:       m.cfg.Grid,
	})
	s.rt = realtime.NewReconciler(s.store, s.fetch, s.id)
	return s
}

// Logout closes the session of userID.
func (m *Manager) Logout(userID string) bool {
	m.mu.Lock()
	s, ok := m.byUser[userID]
	if ok {
		m.detachLocked(userID, s)
	}
	m.mu.Unlock()
	closeAll(s)
	return ok
}

// detachLocked unregisters s. Closing waits for remote calls, so callers do
// it after releasing m.mu.
func (m *Manager) detachLocked(userID string, s *Session) *Session {
	delete(m.byUser, userID)
	if m.hub != nil {
		m.hub.Unsubscribe(s.id)
	}
	return s
}

func closeAll(list ...*Session) {
	for _, s := range list {
		if s == nil {
			continue
		}
		s.Close()
		log.Printf("[calendar] session %s closed", s.id)
	}
}

// Sweep closes sessions idle for longer than the configured limit.
func (m *Manager) Sweep() int {
	idle := m.cfg.Scheduler.SessionIdle
	if idle <= 0 {
		return 0
	}
	now := m.clock.Now()
	var idleList []*Session
	m.mu.Lock()
	for uid, s := range m.byUser {
		if now.Sub(s.LastSeen()) > idle {
			idleList = append(idleList, m.detachLocked(uid, s))
		}
	}
	m.mu.Unlock()
	closeAll(idleList...)
	return len(idleList)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}

func (m *Manager) CloseAll() {
	var all []*Session
	m.mu.Lock()
	for uid, s := range m.byUser {
		all = append(all, m.detachLocked(uid, s))
	}
	m.mu.Unlock()
	closeAll(all...)
}
