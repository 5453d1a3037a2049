package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned by SessionStore.Get and friends when no
	// session exists for the key.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by SessionStore.Create when the key is taken.
	ErrSessionExists = errors.New("session already exists")
)

// SessionKey identifies a session by application, user and session id.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// String renders the key as "app/user/session".
func (k SessionKey) String() string {
	return k.AppName + "/" + k.UserID + "/" + k.SessionID
}

// Validate reports an error when any component of the key is empty.
func (k SessionKey) Validate() error {
	switch {
	case k.AppName == "":
		return fmt.Errorf("session key: app name is required")
	case k.UserID == "":
		return fmt.Errorf("session key: user id is required")
	case k.SessionID == "":
		return fmt.Errorf("session key: session id is required")
	}
	return nil
}

// Session represents a conversational container tracking mutable key/value
// state plus an ordered event history. It is safe for concurrent access.
//
// Contract:
//   - State mutations update Updated timestamp
//   - GetEvents returns a defensive copy to avoid external mutation
//   - GetConversationHistory filters events to user/assistant/tool roles and
//     excludes partial streaming fragments
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	Key     SessionKey     `json:"key"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates a new empty session for key.
func NewSession(key SessionKey) *Session {
	now := time.Now().UTC()
	return &Session{Key: key, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// ID returns the session id component of the key.
func (s *Session) ID() string { return s.Key.SessionID }

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in session state updating the Updated timestamp.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.Updated = time.Now().UTC()
}

// ApplyStateDelta merges the provided key/value pairs into State.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.State[k] = v
	}
	s.Updated = time.Now().UTC()
}

// AddEvent appends an event to the history updating Updated timestamp.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now().UTC()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		Key:     s.Key,
		State:   make(map[string]any, len(s.State)),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
	}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Implementations guard each operation individually; no turn-level locking is
// implied.
type SessionStore interface {
	// Create makes a new empty session. It fails with ErrSessionExists when the key is taken.
	Create(ctx context.Context, key SessionKey) (*Session, error)
	// Get returns a snapshot of the session or ErrSessionNotFound.
	Get(ctx context.Context, key SessionKey) (*Session, error)
	AppendEvent(ctx context.Context, key SessionKey, event Event) error
	ApplyDelta(ctx context.Context, key SessionKey, delta map[string]any) error
}

// EnsureSession returns the session for key, creating it when it does not
// exist yet. A concurrent creator winning the race is tolerated.
func EnsureSession(ctx context.Context, store SessionStore, key SessionKey) (*Session, error) {
	sess, err := store.Get(ctx, key)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	sess, err = store.Create(ctx, key)
	if errors.Is(err, ErrSessionExists) {
		return store.Get(ctx, key)
	}
	return sess, err
}
