package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
)

func TestHarness_CloseWithoutEvents(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := NewHarness(t, core.AgentInfo{Name: "meal_planner"}, "Plan kar do bhai", 0)

		done := make(chan []core.Event, 1)
		go func() { done <- h.Events() }()

		select {
		case events := <-done:
			assert.Empty(t, events)
		case <-time.After(2 * time.Second):
			t.Fatal("Events blocked on a harness that never emitted")
		}

		h.Close()
	}
}

func TestHarness_PersistsAndAcknowledges(t *testing.T) {
	h := NewHarness(t, core.AgentInfo{Name: "meal_planner"}, "Plan kar do bhai", 0)

	ev := core.NewMessageEvent("meal_planner", "| Mon | Poha |")
	ev.Actions.StateDelta = map[string]any{"meal_plan": "| Mon | Poha |"}
	h.RunCtx.Emit <- ev

	select {
	case <-h.RunCtx.Resume:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not acknowledged")
	}

	require.Len(t, h.Events(), 1)
	v, ok := h.Session(t).GetState("meal_plan")
	require.True(t, ok)
	assert.Equal(t, "| Mon | Poha |", v)
}
