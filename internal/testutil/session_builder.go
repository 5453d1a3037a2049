package testutil

import (
	"github.com/hupe1980/messplanner/core"
)

// DefaultKey is the session key used by the HTTP endpoint when a request
// carries no identity.
var DefaultKey = core.SessionKey{AppName: "mess_planner", UserID: "user1", SessionID: "session1"}

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder(testutil.DefaultKey).State("people", 4).Events(ev1, ev2).Build()
type SessionBuilder struct {
	key    core.SessionKey
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a new builder for a session with the given key.
func NewSessionBuilder(key core.SessionKey) *SessionBuilder {
	return &SessionBuilder{key: key, state: map[string]any{}}
}

// State sets or overwrites a state key/value pair on the resulting session.
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Events appends events to the session history.
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.key)
	for k, v := range b.state {
		s.State[k] = v
	}
	s.Events = append(s.Events, b.events...)
	return s
}
