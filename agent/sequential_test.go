package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/testutil"
	"github.com/hupe1980/messplanner/model"
)

func pipelineAgents(llm model.Model) []core.Agent {
	mk := func(name, key string) core.Agent {
		return NewModelAgent(name, llm, func(o *ModelAgentOptions) {
			o.OutputKey = key
			o.AllowTransfer = false
		})
	}
	return []core.Agent{
		mk("input_collector", "preferences"),
		mk("constraint_validator", "validated_preferences"),
		mk("meal_planner", "meal_plan"),
	}
}

func TestNewSequentialAgent(t *testing.T) {
	children := pipelineAgents(nil)
	seq := NewSequentialAgent("MessMealPlanner", children...)

	assert.Equal(t, "sequential", seq.Type())
	assert.Len(t, seq.SubAgents(), 3)
	assert.Equal(t, core.Agent(seq), children[0].Parent())
	assert.Equal(t, children[2], seq.FindAgent("meal_planner"))
}

func TestNewSequentialAgent_PanicsOnForeignChild(t *testing.T) {
	children := pipelineAgents(nil)
	_ = NewSequentialAgent("first", children...)

	assert.Panics(t, func() { _ = NewSequentialAgent("second", children[0]) })
}

func TestSequentialAgent_RunsInOrder(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Reply("prefs"),
		model.Reply("validated"),
		model.Reply("| Day | Lunch |"),
	)
	seq := NewSequentialAgent("MessMealPlanner", pipelineAgents(llm)...)

	h := testutil.NewHarness(t, Info(seq), "Plan kar do bhai", 10)
	require.NoError(t, seq.Run(h.RunCtx))

	events := h.Events()
	require.Len(t, events, 3)
	assert.Equal(t, []string{"input_collector", "constraint_validator", "meal_planner"},
		[]string{events[0].Author, events[1].Author, events[2].Author})

	sess := h.Session(t)
	for key, want := range map[string]string{
		"preferences":           "prefs",
		"validated_preferences": "validated",
		"meal_plan":             "| Day | Lunch |",
	} {
		got, ok := sess.GetState(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got)
	}

	// The validator sees the collector's answer as context.
	validatorReq := llm.Requests()[1]
	last := validatorReq.Contents[len(validatorReq.Contents)-1]
	assert.Contains(t, last.Text(), "[input_collector] said: prefs")
}

func TestSequentialAgent_StopsOnError(t *testing.T) {
	boom := errors.New("validator down")
	llm := model.NewScriptedModel(model.Reply("prefs"), model.Fail(boom))
	seq := NewSequentialAgent("MessMealPlanner", pipelineAgents(llm)...)

	h := testutil.NewHarness(t, Info(seq), "Plan kar do bhai", 10)
	err := seq.Run(h.RunCtx)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "constraint_validator")
	assert.Equal(t, 0, llm.Remaining())
	assert.Len(t, h.Events(), 1)
}
