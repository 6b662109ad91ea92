package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/yegors/atlas/internal/sequence"
	"github.com/yegors/atlas/pkg/logger"
)

// Session owns one sequence state. Turns on a session are serialized by
// its mutex so they are applied in arrival order.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	state        *sequence.State
	turns        int
	lastActivity time.Time
}

// SessionStatus is the JSON view of a session
type SessionStatus struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	Turns        int               `json:"turns"`
	Callsigns    []string          `json:"callsigns"`
	State        sequence.Snapshot `json:"state"`
}

// Status returns a consistent snapshot of the session
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() SessionStatus {
	callsigns := []string{}
	for _, cs := range s.state.Callsigns() {
		callsigns = append(callsigns, cs.String())
	}
	return SessionStatus{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		Turns:        s.turns,
		Callsigns:    callsigns,
		State:        s.state.Snapshot(),
	}
}

// Apply runs fn with exclusive access to the session state
func (s *Session) Apply(fn func(state *sequence.State, turnNumber int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	s.lastActivity = time.Now().UTC()
	fn(s.state, s.turns)
}

// SessionStore is a bounded registry of sessions. The least recently used
// session is discarded when the store is full and idle sessions expire.
type SessionStore struct {
	mu       sync.Mutex // orders Touch against Delete
	sessions *expirable.LRU[string, *Session]
	logger   *logger.Logger
}

// NewSessionStore creates a store holding at most size sessions
func NewSessionStore(size int, ttl time.Duration, logger *logger.Logger) *SessionStore {
	store := &SessionStore{logger: logger.Named("sessions")}
	store.sessions = expirable.NewLRU[string, *Session](size, store.onEvict, ttl)
	return store
}

func (st *SessionStore) onEvict(id string, session *Session) {
	st.logger.Debug("Session discarded", logger.String("session_id", id))
}

// Create registers a new empty session
func (st *SessionStore) Create() *Session {
	now := time.Now().UTC()
	session := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		state:        sequence.NewState(),
		lastActivity: now,
	}
	st.sessions.Add(session.ID, session)
	st.logger.Debug("Session created", logger.String("session_id", session.ID))
	return session
}

// Get returns a session by ID
func (st *SessionStore) Get(id string) (*Session, bool) {
	return st.sessions.Get(id)
}

// Touch restarts the expiry of a session that is still registered. A
// session deleted or evicted since it was fetched stays gone.
func (st *SessionStore) Touch(session *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if current, ok := st.sessions.Peek(session.ID); ok && current == session {
		st.sessions.Add(session.ID, session)
	}
}

// Delete discards a session, reporting whether it existed
func (st *SessionStore) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions.Remove(id)
}

// Len returns the number of live sessions
func (st *SessionStore) Len() int {
	return st.sessions.Len()
}
