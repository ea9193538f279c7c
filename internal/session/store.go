package session

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/events"
)

// Store is the running session: its server id once assigned and the log
// of events received while it is active.
type Store struct {
	mu     sync.RWMutex
	id     string
	events []events.IncomingEvent
	active bool
}

// NewStore returns an inactive store.
func NewStore() *Store {
	return &Store{}
}

// Start begins a new session without an id.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = ""
	s.events = nil
	s.active = true
	log.Debug("Session: started")
}

// Bind records the server-assigned id.
func (s *Store) Bind(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = id
	log.Debug("Session: bound", "id", id)
}

// ID returns the session id if one was assigned.
func (s *Store) ID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// Active reports whether a session is running.
func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// AppendEvent adds ev to the log and reports whether a session was active
// to receive it.
func (s *Store) AppendEvent(ev events.IncomingEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

// Events returns a copy of the event log in arrival order.
func (s *Store) Events() []events.IncomingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.IncomingEvent(nil), s.events...)
}

// Reset ends the session and discards its log.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := len(s.events)
	s.id = ""
	s.events = nil
	s.active = false
	log.Debug("Session: reset", "dropped_events", dropped)
}
