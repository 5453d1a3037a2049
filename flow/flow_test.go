package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/testutil"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/tool"
)

// peerAgent is a bare core.Agent used as a transfer target.
type peerAgent struct{ name, desc string }

func (p *peerAgent) Name() string                        { return p.name }
func (p *peerAgent) Description() string                 { return p.desc }
func (p *peerAgent) Run(*core.RunContext) error          { return nil }
func (p *peerAgent) SetSubAgents(...core.Agent) error    { return nil }
func (p *peerAgent) SubAgents() []core.Agent             { return nil }
func (p *peerAgent) Parent() core.Agent                  { return nil }
func (p *peerAgent) FindAgent(string) core.Agent         { return nil }

type stubAgent struct {
	name        string
	llm         model.Model
	instruction string
	tools       map[string]tool.Tool
	targets     []core.Agent
	transfer    bool
	outputKey   string
	maxHistory  int
	transferred []string
}

func newStubAgent(llm model.Model, tools ...tool.Tool) *stubAgent {
	a := &stubAgent{
		name:        "constraint_validator",
		llm:         llm,
		instruction: "Apply mess rules.",
		tools:       map[string]tool.Tool{},
		maxHistory:  20,
	}
	for _, t := range tools {
		a.tools[t.Name()] = t
	}
	return a
}

func (a *stubAgent) GetName() string                 { return a.name }
func (a *stubAgent) GetLLM() model.Model             { return a.llm }
func (a *stubAgent) GetTools() map[string]tool.Tool  { return a.tools }
func (a *stubAgent) TransferTargets() []core.Agent   { return a.targets }
func (a *stubAgent) IsFunctionCallingEnabled() bool  { return true }
func (a *stubAgent) IsStreamingEnabled() bool        { return false }
func (a *stubAgent) IsTransferEnabled() bool         { return a.transfer }
func (a *stubAgent) GetOutputKey() string            { return a.outputKey }
func (a *stubAgent) MaxHistoryMessages() int         { return a.maxHistory }
func (a *stubAgent) ToolTimeout() time.Duration      { return time.Second }

func (a *stubAgent) ResolveInstructions(*core.RunContext) (string, error) {
	return a.instruction, nil
}

func (a *stubAgent) ExecuteTool(tc *core.ToolContext, name string, args map[string]any) (any, error) {
	t, ok := a.tools[name]
	if !ok {
		return nil, tool.NewToolError(name, "tool "+name+" not found", tool.CodeNotFound)
	}
	return t.Call(tc, args)
}

func (a *stubAgent) TransferToAgent(_ *core.RunContext, name string) error {
	a.transferred = append(a.transferred, name)
	return nil
}

func budgetTool() tool.Tool {
	return tool.NewFunctionTool("weekly_budget", "Weekly budget of the mess",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"people": map[string]any{"type": "integer"},
			},
			"required": []string{"people"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			people := args["people"].(float64)
			tc.SetState("budget", people*400)
			return map[string]any{"budget": people * 400}, nil
		})
}

func newHarness(t *testing.T, a *stubAgent, maxCalls int) *testutil.Harness {
	return testutil.NewHarness(t, core.AgentInfo{Name: a.name, Type: "model"}, "We are 4 people", maxCalls)
}

func TestBaseFlow_PlainReply(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("Validated: 4 people, ₹400 each"))
	a := newStubAgent(llm)
	a.outputKey = "validated_preferences"
	h := newHarness(t, a, 10)

	require.NoError(t, NewSingleAgentFlow(a).Run(h.RunCtx))

	events := h.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsFinalResponse())
	assert.Equal(t, "constraint_validator", events[0].Author)
	assert.Equal(t, "run-test", events[0].RunID)
	assert.Equal(t, "stop", events[0].CustomMetadata["finish_reason"])

	v, ok := h.Session(t).GetState("validated_preferences")
	require.True(t, ok)
	assert.Equal(t, "Validated: 4 people, ₹400 each", v)

	req := llm.Requests()[0]
	assert.Equal(t, "Apply mess rules.", req.Instructions)
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "We are 4 people", req.Contents[0].Text())
	assert.Empty(t, req.Tools)
}

func TestBaseFlow_ToolLoop(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Call("call-1", "weekly_budget", `{"people": 4}`),
		model.Reply("Budget is 1600"),
	)
	a := newStubAgent(llm, budgetTool())
	h := newHarness(t, a, 10)

	require.NoError(t, NewSingleAgentFlow(a).Run(h.RunCtx))

	events := h.Events()
	require.Len(t, events, 3)
	assert.Len(t, events[0].GetFunctionCalls(), 1)

	responses := events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "call-1", responses[0].ID)
	assert.Empty(t, responses[0].Error)
	assert.Equal(t, map[string]any{"budget": float64(1600)}, responses[0].Response)
	assert.Equal(t, float64(1600), events[1].Actions.StateDelta["budget"])

	assert.Equal(t, []string{"Budget is 1600"}, testutil.FinalTexts(events))

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, reqs[0].HasTool("weekly_budget"))
	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	assert.Equal(t, "tool", last.Role)
}

func TestBaseFlow_ToolErrorsReturnToModel(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Call("call-1", "weekly_budget", `{}`),
		model.Call("call-2", "missing_tool", `{}`),
		model.Reply("done"),
	)
	a := newStubAgent(llm, budgetTool())
	h := newHarness(t, a, 10)

	require.NoError(t, NewSingleAgentFlow(a).Run(h.RunCtx))

	events := h.Events()
	require.Len(t, events, 5)
	assert.Contains(t, events[1].GetFunctionResponses()[0].Error, tool.CodeValidation)
	assert.Contains(t, events[3].GetFunctionResponses()[0].Error, tool.CodeNotFound)
}

func TestBaseFlow_RepairsMalformedArguments(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Call("call-1", "weekly_budget", `{'people': 2,}`),
		model.Reply("ok"),
	)
	a := newStubAgent(llm, budgetTool())
	h := newHarness(t, a, 10)

	require.NoError(t, NewSingleAgentFlow(a).Run(h.RunCtx))

	fr := h.Events()[1].GetFunctionResponses()[0]
	assert.Empty(t, fr.Error)
	assert.Equal(t, map[string]any{"budget": float64(800)}, fr.Response)
}

func TestBaseFlow_ModelErrorAbortsRun(t *testing.T) {
	boom := errors.New("quota exceeded")
	a := newStubAgent(model.NewScriptedModel(model.Fail(boom)))
	h := newHarness(t, a, 10)

	err := NewSingleAgentFlow(a).Run(h.RunCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.Events())
}

// silentModel never answers and never closes its channels.
type silentModel struct{}

func (silentModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	return make(chan model.Response), make(chan error)
}

func (silentModel) Info() model.Info { return model.Info{Name: "silent"} }

func TestBaseFlow_CancelWhileModelSilent(t *testing.T) {
	a := newStubAgent(silentModel{})
	h := newHarness(t, a, 10)

	ctx, cancel := context.WithCancel(context.Background())
	h.RunCtx.Context = ctx
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- NewSingleAgentFlow(a).Run(h.RunCtx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("flow kept waiting on a silent model after cancellation")
	}
}

func TestBaseFlow_ModelCallLimit(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Call("c1", "weekly_budget", `{"people": 1}`),
		model.Call("c2", "weekly_budget", `{"people": 1}`),
		model.Reply("never"),
	)
	a := newStubAgent(llm, budgetTool())
	h := newHarness(t, a, 2)

	err := NewSingleAgentFlow(a).Run(h.RunCtx)
	assert.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Equal(t, 1, llm.Remaining())
}

func TestBaseFlow_NoModel(t *testing.T) {
	a := newStubAgent(nil)
	h := newHarness(t, a, 10)

	assert.ErrorIs(t, NewSingleAgentFlow(a).Run(h.RunCtx), ErrNoModel)
}

func TestBaseFlow_EmptyReplyStillFinal(t *testing.T) {
	a := newStubAgent(model.NewScriptedModel(model.Reply("")))
	h := newHarness(t, a, 10)

	require.NoError(t, NewSingleAgentFlow(a).Run(h.RunCtx))

	events := h.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].IsFinalResponse())
	assert.Empty(t, testutil.FinalTexts(events))
}

func TestBaseFlow_StreamingAssemblesFinal(t *testing.T) {
	mock := model.NewMockModel("mock", "mock")
	mock.SetDefault("Sunday special: biryani")
	a := newStubAgent(mock)
	h := newHarness(t, a, 10)

	fl := NewSingleAgentFlow(&streamingAgent{a})
	require.NoError(t, fl.Run(h.RunCtx))

	events := h.Events()
	var partials int
	for _, ev := range events {
		if ev.IsPartial() {
			partials++
		}
	}
	assert.Positive(t, partials)
	assert.Equal(t, []string{"Sunday special: biryani"}, testutil.FinalTexts(events))
}

type streamingAgent struct{ *stubAgent }

func (s *streamingAgent) IsStreamingEnabled() bool { return true }

func TestMultiAgentFlow_Transfer(t *testing.T) {
	llm := model.NewScriptedModel(model.Call("t1", tool.TransferToAgentName, `{"agent_name":"meal_planner"}`))
	a := newStubAgent(llm)
	a.name = "MessMealPlanner"
	a.transfer = true
	a.targets = []core.Agent{&peerAgent{name: "meal_planner", desc: "Generates full 7-day mess menu."}}
	h := newHarness(t, a, 10)

	fl := For(a)
	require.IsType(t, &MultiAgentFlow{}, fl)
	require.NoError(t, fl.Run(h.RunCtx))

	assert.Equal(t, []string{"meal_planner"}, a.transferred)

	events := h.Events()
	require.Len(t, events, 2)
	require.NotNil(t, events[1].Actions.TransferToAgent)
	assert.Equal(t, "meal_planner", *events[1].Actions.TransferToAgent)

	req := llm.Requests()[0]
	assert.True(t, req.HasTool(tool.TransferToAgentName))
	assert.Contains(t, req.Instructions, "- meal_planner: Generates full 7-day mess menu.")
}

func TestFor(t *testing.T) {
	a := newStubAgent(nil)
	assert.IsType(t, &SingleAgentFlow{}, For(a))

	a.transfer = true
	assert.IsType(t, &SingleAgentFlow{}, For(a), "no targets")

	a.targets = []core.Agent{&peerAgent{name: "feedback"}}
	assert.IsType(t, &MultiAgentFlow{}, For(a))
}

func TestFunctionExecutor_OrderAndPanics(t *testing.T) {
	a := newStubAgent(nil)
	h := newHarness(t, a, 10)

	calls := make([]core.FunctionCall, 5)
	for i := range calls {
		calls[i] = core.FunctionCall{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("t%d", i), Arguments: "{}"}
	}

	invoke := func(tc *core.ToolContext, name string, _ map[string]any) (any, error) {
		if name == "t3" {
			panic("kaboom")
		}
		time.Sleep(time.Duration(5-int(name[1]-'0')) * time.Millisecond)
		return strings.ToUpper(name), nil
	}

	exec := NewFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2})
	events, err := exec.Execute(h.RunCtx, a.name, calls, time.Second, invoke)
	require.NoError(t, err)
	require.Len(t, events, 5)

	for i, ev := range events {
		fr := ev.GetFunctionResponses()[0]
		assert.Equal(t, calls[i].ID, fr.ID)
		if i == 3 {
			assert.Contains(t, fr.Error, "panic: kaboom")
			continue
		}
		assert.Equal(t, strings.ToUpper(calls[i].Name), fr.Response)
	}
}

func TestFunctionExecutor_ToolTimeout(t *testing.T) {
	a := newStubAgent(nil)
	h := newHarness(t, a, 10)

	invoke := func(tc *core.ToolContext, _ string, _ map[string]any) (any, error) {
		<-tc.Context().Done()
		return nil, tc.Context().Err()
	}

	events, err := NewFunctionExecutor(FunctionExecutorConfig{}).Execute(h.RunCtx, a.name,
		[]core.FunctionCall{{ID: "c1", Name: "slow"}}, 10*time.Millisecond, invoke)
	require.NoError(t, err)
	assert.Contains(t, events[0].GetFunctionResponses()[0].Error, "deadline exceeded")
}
