package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunContext(t *testing.T, emit chan Event) (*RunContext, *stubStore) {
	t.Helper()
	store := newStubStore()
	sess, err := store.Create(context.Background(), testKey)
	require.NoError(t, err)

	rc := NewRunContext(
		context.Background(),
		testKey,
		"run-1",
		AgentInfo{Name: "MessMealPlanner", Type: "model"},
		Content{Role: "user", Parts: []Part{TextPart{Text: "Plan kar do bhai"}}},
		3,
		emit,
		nil,
		sess,
		store,
		nil,
		nil,
	)
	return rc, store
}

func TestRunContext_StateStagingAndCommit(t *testing.T) {
	rc, store := newTestRunContext(t, make(chan Event, 1))

	rc.SetState("people", 4)
	v, ok := rc.GetState("people")
	require.True(t, ok)
	assert.Equal(t, 4, v)

	require.NoError(t, rc.CommitStateDelta())
	assert.Empty(t, rc.StateDelta)

	persisted, err := store.Get(context.Background(), testKey)
	require.NoError(t, err)
	v, ok = persisted.GetState("people")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestRunContext_EmitEventMergesDelta(t *testing.T) {
	emit := make(chan Event, 1)
	rc, _ := newTestRunContext(t, emit)
	rc.Branch = "MessMealPlanner.meal_planner"

	rc.SetState("plan_ready", true)
	require.NoError(t, rc.EmitEvent(NewMessageEvent("meal_planner", "menu")))

	ev := <-emit
	assert.Equal(t, "run-1", ev.RunID)
	require.NotNil(t, ev.Branch)
	assert.Equal(t, "MessMealPlanner.meal_planner", *ev.Branch)
	assert.Equal(t, true, ev.Actions.StateDelta["plan_ready"])
	assert.Empty(t, rc.StateDelta, "delta is cleared after emission")
}

func TestRunContext_EmitEventHonorsCancellation(t *testing.T) {
	rc, _ := newTestRunContext(t, make(chan Event))
	ctx, cancel := context.WithCancel(context.Background())
	rc.Context = ctx
	cancel()

	err := rc.EmitEvent(NewMessageEvent("meal_planner", "menu"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunContext_WithAgentIsolatesDelta(t *testing.T) {
	rc, _ := newTestRunContext(t, make(chan Event, 1))
	rc.SetState("a", 1)

	child := rc.WithAgent(AgentInfo{Name: "meal_planner", Type: "model"})
	child.SetState("b", 2)

	assert.Equal(t, "meal_planner", child.GetAgentName())
	assert.Equal(t, "MessMealPlanner", rc.GetAgentName())
	_, ok := rc.StateDelta["b"]
	assert.False(t, ok)
	assert.Same(t, rc.Limiter, child.Limiter, "limiter is shared across the run")
}

func TestRunContext_RefreshSessionAndMemoryWithoutStore(t *testing.T) {
	rc, store := newTestRunContext(t, make(chan Event, 1))
	require.NoError(t, store.AppendEvent(context.Background(), testKey, NewUserMessageEvent("run-1", "hi")))

	require.NoError(t, rc.RefreshSession())
	assert.Len(t, rc.GetSessionHistory(), 1)

	res, err := rc.SearchMemory("rajma", 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	require.NoError(t, l.Increment("MessMealPlanner"))
	require.NoError(t, l.Increment("meal_planner"))
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment("MessMealPlanner")
	assert.ErrorIs(t, err, ErrModelCallLimit)
	assert.ErrorContains(t, err, "MessMealPlanner made call 3")
	assert.Equal(t, 3, l.Count())
	assert.Equal(t, 0, l.Remaining())
	assert.Equal(t, map[string]int{"MessMealPlanner": 2, "meal_planner": 1}, l.CountByAgent())

	assert.Equal(t, -1, NewModelLimiter(0).Remaining())
}
