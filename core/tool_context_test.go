package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolContext_AccumulatesActions(t *testing.T) {
	rc, _ := newTestRunContext(t, make(chan Event, 1))
	tc := NewToolContext(rc, "call-1")
	require.NoError(t, tc.Validate())

	assert.Equal(t, "session1", tc.SessionID())
	assert.Equal(t, "user1", tc.UserID())
	assert.Equal(t, "MessMealPlanner", tc.AgentName())
	assert.Equal(t, "Plan kar do bhai", tc.UserText())

	tc.SetState("validated", true)
	tc.TransferToAgent("meal_planner")
	tc.SkipSummarization()

	v, ok := rc.GetState("validated")
	require.True(t, ok, "state is visible on the run context immediately")
	assert.Equal(t, true, v)

	ev := NewFunctionResponseEvent("MessMealPlanner", "call-1", "transfer_to_agent", "ok", nil)
	tc.InternalApplyActions(&ev)

	require.NotNil(t, ev.Actions.TransferToAgent)
	assert.Equal(t, "meal_planner", *ev.Actions.TransferToAgent)
	assert.Equal(t, true, ev.Actions.StateDelta["validated"])
	require.NotNil(t, ev.Actions.SkipSummarization)
	assert.True(t, ev.IsFinalResponse())
}

func TestToolContext_SearchMemoryWithoutStore(t *testing.T) {
	rc, _ := newTestRunContext(t, make(chan Event, 1))
	tc := NewToolContext(rc, "call-1")

	_, err := tc.SearchMemory("paneer", 3)
	assert.Error(t, err)
}

func TestToolContext_ValidateRequiresCallID(t *testing.T) {
	rc, _ := newTestRunContext(t, make(chan Event, 1))
	assert.Error(t, NewToolContext(rc, "").Validate())
}
