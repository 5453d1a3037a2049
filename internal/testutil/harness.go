package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/session"
)

// Harness plays the runner for agent and flow tests: it persists every
// non-partial event to an in-memory session store, applies state deltas and
// acknowledges each event so the flow can continue.
type Harness struct {
	RunCtx *core.RunContext
	Store  *session.InMemoryStore

	emit chan core.Event
	done chan struct{}

	mu     sync.Mutex
	closed bool
	events []core.Event
}

// NewHarness prepares a session for DefaultKey containing userText and a run
// context bound to agent.
func NewHarness(t testing.TB, agent core.AgentInfo, userText string, maxModelCalls int) *Harness {
	t.Helper()

	ctx := context.Background()
	store := session.NewInMemoryStore()

	if _, err := store.Create(ctx, DefaultKey); err != nil {
		t.Fatalf("create session: %v", err)
	}

	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: userText}}}
	if err := store.AppendEvent(ctx, DefaultKey, core.NewUserContentEvent("run-test", &userContent)); err != nil {
		t.Fatalf("append user event: %v", err)
	}

	sess, err := store.Get(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}

	h := &Harness{
		Store: store,
		emit:  make(chan core.Event, 16),
		done:  make(chan struct{}),
	}
	resume := make(chan struct{}, 1)

	h.RunCtx = core.NewRunContext(ctx, DefaultKey, "run-test", agent, userContent, maxModelCalls,
		h.emit, resume, sess, store, nil, logging.NoOpLogger{})

	emit := h.emit
	go func() {
		defer close(h.done)
		for ev := range emit {
			h.mu.Lock()
			h.events = append(h.events, ev)
			h.mu.Unlock()

			if len(ev.Actions.StateDelta) > 0 {
				_ = store.ApplyDelta(ctx, DefaultKey, ev.Actions.StateDelta)
			}
			if ev.IsPartial() {
				continue
			}
			_ = store.AppendEvent(ctx, DefaultKey, ev)
			resume <- struct{}{}
		}
	}()

	t.Cleanup(h.Close)

	return h
}

// Close stops the persistence loop. It is safe to call more than once.
func (h *Harness) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.emit)
	}
	h.mu.Unlock()

	<-h.done
}

// Events stops the loop and returns everything that was emitted.
func (h *Harness) Events() []core.Event {
	h.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.Event(nil), h.events...)
}

// Session returns the persisted session.
func (h *Harness) Session(t testing.TB) *core.Session {
	t.Helper()
	sess, err := h.Store.Get(context.Background(), DefaultKey)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return sess
}
