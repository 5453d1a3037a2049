package messplanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/messplanner/agent"
	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/memory"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/planner"
)

func lastUserText(req model.Request) string {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		if req.Contents[i].Role == "user" {
			return req.Contents[i].Text()
		}
	}
	return ""
}

func TestPlan_ReturnsFirstFinalText(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("| Mon | Rajma chawal |"))
	mem := memory.NewInMemoryStore()
	app := New(agent.NewModelAgent(planner.RootName, llm), func(o *Options) { o.MemoryStore = mem })

	res, err := app.Plan(context.Background(), PlanRequest{Message: "4 log, ₹400 each"})
	require.NoError(t, err)
	assert.Equal(t, "| Mon | Rajma chawal |", res.Plan)
	assert.False(t, res.Pending)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, core.SessionKey{AppName: "mess_planner", UserID: "user1", SessionID: "session1"}, res.Key)
	assert.Equal(t, "4 log, ₹400 each", lastUserText(llm.Requests()[0]))

	require.Eventually(t, func() bool { return mem.Len("mess_planner", "user1") == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestPlan_DefaultMessage(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("ok"), model.Reply("ok"))
	app := New(agent.NewModelAgent(planner.RootName, llm))

	_, err := app.Plan(context.Background(), PlanRequest{})
	require.NoError(t, err)
	_, err = app.Plan(context.Background(), PlanRequest{Message: "   "})
	require.NoError(t, err)

	for _, req := range llm.Requests() {
		assert.Equal(t, "Plan kar do bhai", lastUserText(req))
	}
}

func TestPlan_PendingWhenNoFinalText(t *testing.T) {
	app := New(agent.NewModelAgent(planner.RootName, model.NewScriptedModel(model.Reply(""))))

	res, err := app.Plan(context.Background(), PlanRequest{})
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Equal(t, "Thinking... 10 sec mein plan ready", res.Plan)
}

func TestPlan_RunnerError(t *testing.T) {
	boom := errors.New("ConnectionError: model unreachable")
	app := New(agent.NewModelAgent(planner.RootName, model.NewScriptedModel(model.Fail(boom))))

	_, err := app.Plan(context.Background(), PlanRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ConnectionError")
}

func TestPlan_SessionContinuity(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("first plan"), model.Reply("second plan"))
	app := New(agent.NewModelAgent(planner.RootName, llm))

	_, err := app.Plan(context.Background(), PlanRequest{Message: "plan one"})
	require.NoError(t, err)
	res, err := app.Plan(context.Background(), PlanRequest{Message: "less chicken"})
	require.NoError(t, err)
	assert.Equal(t, "second plan", res.Plan)

	second := llm.Requests()[1]
	var texts []string
	for _, c := range second.Contents {
		texts = append(texts, c.Text())
	}
	assert.Equal(t, []string{"plan one", "first plan", "less chicken"}, texts)

	sess, err := app.SessionStore().Get(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Len(t, sess.GetEvents(), 4)
}

func TestPlan_IdentitySeparatesSessions(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("a"), model.Reply("b"))
	app := New(agent.NewModelAgent(planner.RootName, llm))

	resA, err := app.Plan(context.Background(), PlanRequest{UserID: "asha", SessionID: "hostel-3"})
	require.NoError(t, err)
	resB, err := app.Plan(context.Background(), PlanRequest{UserID: "ravi"})
	require.NoError(t, err)

	assert.Equal(t, core.SessionKey{AppName: "mess_planner", UserID: "asha", SessionID: "hostel-3"}, resA.Key)
	assert.Equal(t, core.SessionKey{AppName: "mess_planner", UserID: "ravi", SessionID: "session1"}, resB.Key)
	assert.Len(t, llm.Requests()[1].Contents, 1)
}

func TestPlan_LastFinalForPipelines(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Reply(`{"people": 4}`),
		model.Reply(`{"people": 4, "non_veg_per_week": 3}`),
		model.Reply("| Mon | Chole chawal |"),
		model.Reply("Final menu, ₹1500"),
	)
	root, err := planner.New(llm, func(o *planner.Options) { o.Mode = planner.ModeSequential })
	require.NoError(t, err)

	app := New(root, func(o *Options) { o.Selection = SelectLastFinal })
	res, err := app.Plan(context.Background(), PlanRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Final menu, ₹1500", res.Plan)
}

type stuckModel struct{}

func (stuckModel) Generate(ctx context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return make(chan model.Response), errCh
}

func (stuckModel) Info() model.Info { return model.Info{Name: "stuck"} }

func TestPlan_ContextCancelledBeforeFinal(t *testing.T) {
	app := New(agent.NewModelAgent(planner.RootName, stuckModel{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := app.Plan(ctx, PlanRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Eventually(t, func() bool { return app.Runner().ActiveRuns() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPlan_Timeout(t *testing.T) {
	app := New(agent.NewModelAgent(planner.RootName, stuckModel{}), func(o *Options) { o.PlanTimeout = 50 * time.Millisecond })

	_, err := app.Plan(context.Background(), PlanRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunSync(t *testing.T) {
	app := New(agent.NewModelAgent(planner.RootName, model.NewScriptedModel(model.Reply("done"))))

	runID, events, err := app.RunSync(context.Background(), app.Key("", ""), core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: "hi"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Text())
}
