// Package session tracks connected users: their identity, authentication
// state, and which documents they currently subscribe to. Grounded on
// original_source/include/server/session_handler.h (UserSession,
// SessionHandler).
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a session's position in its lifecycle.
type State int

const (
	Connecting State = iota
	Authenticating
	Authenticated
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Common errors.
var (
	ErrSessionNotFound   = errors.New("session: not found")
	ErrUsernameTaken     = errors.New("session: username already in use")
	ErrSessionTerminated = errors.New("session: already disconnected")
)

// Session is one connected client. Field access is only safe through the
// Registry's locked methods; callers never mutate a Session directly.
type Session struct {
	ID       string
	Username string
	State    State

	CreatedAt    time.Time
	LastActivity time.Time

	documents map[string]struct{}
}

// HasDocument reports whether the session currently subscribes to docID.
func (s *Session) HasDocument(docID string) bool {
	_, ok := s.documents[docID]
	return ok
}

// Documents returns the set of document ids the session subscribes to.
func (s *Session) Documents() []string {
	out := make([]string, 0, len(s.documents))
	for id := range s.documents {
		out = append(out, id)
	}

	return out
}

// Registry tracks every live session, indexed by id and by username, and
// the document subscriptions each one holds. A single RWMutex protects
// both maps and every session's subscription set together, per spec.md
// §5's "one mutex (or read/write lock)" shared-resource note.
type Registry struct {
	mu sync.RWMutex

	byID       map[string]*Session
	byUsername map[string]string // username -> session id
	now        func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[string]*Session),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

// CreateSession allocates a fresh session in the Connecting state with a
// random v4 id.
func (r *Registry) CreateSession() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := &Session{
		ID:           uuid.NewString(),
		State:        Connecting,
		CreatedAt:    now,
		LastActivity: now,
		documents:    make(map[string]struct{}),
	}

	r.byID[s.ID] = s

	return s
}

// Authenticate performs an atomic test-and-set: it fails if the username
// is already bound to a different session, otherwise it binds the
// username, transitions the session to Authenticated, and bumps its
// activity timestamp (an authoritative state transition, not a synthetic
// re-set — see CleanupIdle below for why that distinction matters).
func (r *Registry) Authenticate(sessionID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok || s.State == Disconnected {
		return ErrSessionNotFound
	}

	if existing, taken := r.byUsername[username]; taken && existing != sessionID {
		return ErrUsernameTaken
	}

	s.Username = username
	s.State = Authenticated
	s.LastActivity = r.now()
	r.byUsername[username] = sessionID

	return nil
}

// GetSession returns the session for sessionID, or ErrSessionNotFound.
func (r *Registry) GetSession(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return s, nil
}

// GetByUsername returns the session currently bound to username.
func (r *Registry) GetByUsername(username string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return r.byID[id], nil
}

// IsUsernameAvailable reports whether username is free to claim.
func (r *Registry) IsUsernameAvailable(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, taken := r.byUsername[username]

	return !taken
}

// Touch records that sessionID produced or received a message, bumping its
// liveness timestamp. Only message traffic and authenticate calls
// advance LastActivity — a session's own Subscribe/Unsubscribe calls do
// too (they are genuine activity), but re-entering the same State does
// not, fixing the bug where the original's setState(sameState) call
// silently refreshed liveness.
func (r *Registry) Touch(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok || s.State == Disconnected {
		return ErrSessionNotFound
	}

	s.LastActivity = r.now()

	return nil
}

// Subscribe adds docID to sessionID's document set and bumps activity.
func (r *Registry) Subscribe(sessionID, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok || s.State == Disconnected {
		return ErrSessionNotFound
	}

	s.documents[docID] = struct{}{}
	s.LastActivity = r.now()

	return nil
}

// Unsubscribe removes docID from sessionID's document set and bumps
// activity.
func (r *Registry) Unsubscribe(sessionID, docID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok || s.State == Disconnected {
		return ErrSessionNotFound
	}

	delete(s.documents, docID)
	s.LastActivity = r.now()

	return nil
}

// CloseSession transitions a session to Disconnected, releases its
// username binding, and removes it from the registry. It is idempotent:
// closing an already-absent session returns ErrSessionNotFound.
func (r *Registry) CloseSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	if s.State == Authenticated {
		delete(r.byUsername, s.Username)
	}

	s.State = Disconnected
	delete(r.byID, sessionID)

	return nil
}

// SubscribedUsers returns the usernames of every authenticated session
// subscribed to docID.
func (r *Registry) SubscribedUsers(docID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []string

	for _, s := range r.byID {
		if s.State == Authenticated && s.HasDocument(docID) {
			users = append(users, s.Username)
		}
	}

	return users
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byID)
}

// CleanupIdle closes every session whose LastActivity is older than
// maxIdle and returns how many were closed. maxIdle is a time.Duration,
// not an integer second count, fixing the original's
// cleanupIdleSessions(int maxIdleSeconds) — a caller that means "500
// milliseconds" can no longer have it silently truncated to 0 seconds by
// integer division before comparison.
func (r *Registry) CleanupIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-maxIdle)

	var stale []string

	for id, s := range r.byID {
		if s.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		// Best-effort: a session may have been closed concurrently between
		// the scan above and this call, which CloseSession reports via
		// ErrSessionNotFound — not a failure of cleanup itself.
		_ = r.CloseSession(id)
	}

	return len(stale)
}
