package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/testutil"
	"github.com/hupe1980/messplanner/logging"
)

func newTestRunContext() *core.RunContext {
	sess := core.NewSession(testutil.DefaultKey)
	sess.State["meal_plan"] = "Mon: dal chawal"
	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: "Plan kar do bhai"}}}
	return core.NewRunContext(
		context.Background(),
		testutil.DefaultKey,
		"run-id",
		core.AgentInfo{Name: "MessMealPlanner", Type: "model"},
		userContent,
		0,
		make(chan core.Event, 1),
		nil,
		sess,
		nil,
		nil,
		logging.NoOpLogger{},
	)
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("Collect the mess preferences.")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "Collect the mess preferences.", got)
}

func TestInstruction_FromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(rc *core.RunContext) (string, error) {
		plan, _ := rc.GetState("meal_plan")
		return "Current plan: " + plan.(string), nil
	})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "Current plan: Mon: dal chawal", got)
}

func TestInstruction_Compose(t *testing.T) {
	inst := ComposeInstructions(
		NewInstructionFromText("You coordinate the mess planner."),
		NewInstructionFromFunc(func(*core.RunContext) (string, error) { return "", nil }),
		NewInstructionFromFunc(func(*core.RunContext) (string, error) { return "  A plan exists.  ", nil }),
	)
	assert.False(t, inst.IsStatic())
	assert.True(t, ComposeInstructions(NewInstructionFromText("a"), NewInstructionFromText("b")).IsStatic())

	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "You coordinate the mess planner.\n\nA plan exists.", got)
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	boom := errors.New("boom")
	inst := ComposeInstructions(
		NewInstructionFromText("x"),
		NewInstructionFromFunc(func(*core.RunContext) (string, error) { return "", boom }),
	)

	_, err := inst.Resolve(newTestRunContext())
	assert.ErrorIs(t, err, boom)
}
