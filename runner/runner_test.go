package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/messplanner/agent"
	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/testutil"
	"github.com/hupe1980/messplanner/memory"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/session"
)

// blockingModel never answers until the request context ends.
type blockingModel struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingModel() *blockingModel { return &blockingModel{started: make(chan struct{})} }

func (m *blockingModel) Generate(ctx context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	m.once.Do(func() { close(m.started) })
	go func() {
		defer close(respCh)
		defer close(errCh)
		<-ctx.Done()
		errCh <- ctx.Err()
	}()
	return respCh, errCh
}

func (m *blockingModel) Info() model.Info { return model.Info{Name: "blocking", Provider: "mock"} }

func userText(s string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: s}}}
}

func newStore(t *testing.T) *session.InMemoryStore {
	t.Helper()
	store := session.NewInMemoryStore()
	_, err := store.Create(context.Background(), testutil.DefaultKey)
	require.NoError(t, err)
	return store
}

func TestRunner_PersistsEventsAndRunsHooks(t *testing.T) {
	store := newStore(t)
	mem := memory.NewInMemoryStore()
	llm := model.NewScriptedModel(model.Reply("Monday: aloo paratha with curd"))
	root := agent.NewModelAgent("meal_planner", llm, func(o *agent.ModelAgentOptions) {
		o.OutputKey = "meal_plan"
	})

	var (
		mu    sync.Mutex
		turns []core.TurnResult
	)
	r := New(root, func(o *Options) {
		o.SessionStore = store
		o.MemoryStore = mem
		o.TurnHooks = []core.TurnHook{
			memory.NewTurnRecorder(mem, nil),
			core.TurnHookFunc(func(_ context.Context, turn core.TurnResult) error {
				mu.Lock()
				defer mu.Unlock()
				turns = append(turns, turn)
				return nil
			}),
		}
	})

	runID, events, errs, err := r.Run(context.Background(), testutil.DefaultKey, userText("Plan kar do bhai"))
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	got, runErr := testutil.Drain(t, events, errs, 2*time.Second)
	require.NoError(t, runErr)
	assert.Equal(t, []string{"Monday: aloo paratha with curd"}, testutil.FinalTexts(got))

	sess, err := store.Get(context.Background(), testutil.DefaultKey)
	require.NoError(t, err)
	evs := sess.GetEvents()
	require.Len(t, evs, 2)
	assert.Equal(t, "user", evs[0].Author)
	assert.Equal(t, runID, evs[0].RunID)
	assert.Equal(t, "meal_planner", evs[1].Author)

	plan, ok := sess.GetState("meal_plan")
	require.True(t, ok)
	assert.Equal(t, "Monday: aloo paratha with curd", plan)

	mu.Lock()
	require.Len(t, turns, 1)
	assert.Equal(t, runID, turns[0].RunID)
	assert.NoError(t, turns[0].Err)
	assert.Len(t, turns[0].Session.GetEvents(), 2)
	mu.Unlock()

	hits, err := mem.Search(context.Background(), "mess_planner", "user1", "paratha", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
	assert.Equal(t, 0, r.ActiveRuns())
}

func TestRunner_MissingSession(t *testing.T) {
	r := New(agent.NewModelAgent("meal_planner", model.NewScriptedModel()))

	_, _, _, err := r.Run(context.Background(), testutil.DefaultKey, userText("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRunner_InvalidKey(t *testing.T) {
	r := New(agent.NewModelAgent("meal_planner", model.NewScriptedModel()))

	_, _, _, err := r.Run(context.Background(), core.SessionKey{}, userText("hi"))
	assert.Error(t, err)
}

func TestRunner_AgentErrorReachesHooks(t *testing.T) {
	store := newStore(t)
	boom := errors.New("upstream 503")
	root := agent.NewModelAgent("meal_planner", model.NewScriptedModel(model.Fail(boom)))

	hookErr := make(chan error, 1)
	r := New(root, func(o *Options) {
		o.SessionStore = store
		o.TurnHooks = []core.TurnHook{core.TurnHookFunc(func(_ context.Context, turn core.TurnResult) error {
			hookErr <- turn.Err
			return errors.New("hook failures are only logged")
		})}
	})

	_, events, errs, err := r.Run(context.Background(), testutil.DefaultKey, userText("hi"))
	require.NoError(t, err)

	_, runErr := testutil.Drain(t, events, errs, 2*time.Second)
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, boom)
	assert.ErrorIs(t, <-hookErr, boom)
}

func TestRunner_Cancel(t *testing.T) {
	store := newStore(t)
	llm := newBlockingModel()
	r := New(agent.NewModelAgent("meal_planner", llm), func(o *Options) { o.SessionStore = store })

	runID, events, errs, err := r.Run(context.Background(), testutil.DefaultKey, userText("hi"))
	require.NoError(t, err)

	<-llm.started
	assert.Equal(t, 1, r.ActiveRuns())
	require.NoError(t, r.Cancel(runID))

	_, runErr := testutil.Drain(t, events, errs, 2*time.Second)
	assert.ErrorIs(t, runErr, context.Canceled)
	assert.Error(t, r.Cancel(runID))
	assert.Error(t, r.Cancel("unknown"))
}

func TestRunner_ConcurrencyLimit(t *testing.T) {
	store := newStore(t)
	llm := newBlockingModel()
	r := New(agent.NewModelAgent("meal_planner", llm), func(o *Options) {
		o.SessionStore = store
		o.MaxConcurrentRuns = 1
	})

	runID, events, errs, err := r.Run(context.Background(), testutil.DefaultKey, userText("first"))
	require.NoError(t, err)
	<-llm.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, _, err = r.Run(ctx, testutil.DefaultKey, userText("second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, r.Cancel(runID))
	_, _ = testutil.Drain(t, events, errs, 2*time.Second)

	assert.Equal(t, 0, r.ActiveRuns())

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	runID, events, errs, err = r.Run(ctx2, testutil.DefaultKey, userText("third"))
	require.NoError(t, err)
	require.NoError(t, r.Cancel(runID))
	_, runErr := testutil.Drain(t, events, errs, 2*time.Second)
	assert.ErrorIs(t, runErr, context.Canceled)
}

func TestRunner_ModelCallLimit(t *testing.T) {
	store := newStore(t)
	llm := model.NewScriptedModel(
		model.Call("c1", "missing_tool", `{}`),
		model.Call("c2", "missing_tool", `{}`),
		model.Reply("never reached"),
	)
	r := New(agent.NewModelAgent("meal_planner", llm), func(o *Options) {
		o.SessionStore = store
		o.MaxModelCalls = 2
	})

	_, events, errs, err := r.Run(context.Background(), testutil.DefaultKey, userText("hi"))
	require.NoError(t, err)

	_, runErr := testutil.Drain(t, events, errs, 2*time.Second)
	assert.ErrorIs(t, runErr, core.ErrModelCallLimit)
	assert.Equal(t, 1, llm.Remaining())
}

func TestRunner_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store := newStore(t)
	r := New(agent.NewModelAgent("meal_planner", model.NewScriptedModel(model.Reply("ok"), model.Fail(errors.New("boom")))), func(o *Options) {
		o.SessionStore = store
		o.Tracer = tp.Tracer(TracerName)
	})

	for range 2 {
		_, events, errs, err := r.Run(context.Background(), testutil.DefaultKey, userText("hi"))
		require.NoError(t, err)
		_, _ = testutil.Drain(t, events, errs, 2*time.Second)
	}

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "runner.run", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "session1", attrs["messplanner.session_id"])
	assert.Equal(t, "meal_planner", attrs["messplanner.agent"])
	assert.Equal(t, "success", attrs["messplanner.status"])
}
