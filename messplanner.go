// Package messplanner provides the façade the HTTP endpoint and the examples
// build on. An App owns the runner of the planner agent graph and turns one
// user message into one plan:
//  1. ensure the session for (app, user, session) exists
//  2. start a run of the root agent
//  3. return the text of the first final event, keep draining the rest in the
//     background so turn hooks (memory recording) complete
//
// When no final text arrives, the still-processing text is returned instead of
// an error. All defaults are in-memory and safe for local development.
package messplanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/memory"
	"github.com/hupe1980/messplanner/runner"
	"github.com/hupe1980/messplanner/session"
)

// Defaults of the public endpoint.
const (
	DefaultAppName   = "mess_planner"
	DefaultUserID    = "user1"
	DefaultSessionID = "session1"
	DefaultMessage   = "Plan kar do bhai"
	PendingText      = "Thinking... 10 sec mein plan ready"
)

// Selection decides which final event becomes the plan.
type Selection int

const (
	// SelectFirstFinal returns as soon as the first final text arrives.
	SelectFirstFinal Selection = iota
	// SelectLastFinal waits for the run to finish and uses the last final
	// text, which suits pipelines where every step answers.
	SelectLastFinal
)

// Options configures an App.
type Options struct {
	AppName          string
	DefaultUserID    string
	DefaultSessionID string
	DefaultMessage   string
	PendingText      string
	Selection        Selection

	// PlanTimeout bounds a whole run (0 = none).
	PlanTimeout time.Duration

	MaxConcurrentRuns int
	MaxModelCalls     int
	EventBufferSize   int

	// Stores (defaults to in-memory implementations if not provided)
	SessionStore core.SessionStore
	MemoryStore  core.MemoryStore

	// DisableMemoryRecording skips appending finished turns to MemoryStore.
	DisableMemoryRecording bool
	TurnHooks              []core.TurnHook

	Tracer trace.Tracer
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// PlanRequest is one call of the endpoint. Empty fields fall back to the
// configured defaults.
type PlanRequest struct {
	Message   string
	UserID    string
	SessionID string
}

// PlanResult is the outcome of a successful turn.
type PlanResult struct {
	Plan  string
	RunID string
	Key   core.SessionKey
	// Pending is set when no final text arrived and Plan holds PendingText.
	Pending bool
}

// App is the high-level façade aggregating the runner and its stores.
type App struct {
	opts   Options
	runner *runner.Runner
}

// New creates an App around the root agent of the planner graph.
func New(root core.Agent, optFns ...func(o *Options)) *App {
	opts := Options{
		AppName:           DefaultAppName,
		DefaultUserID:     DefaultUserID,
		DefaultSessionID:  DefaultSessionID,
		DefaultMessage:    DefaultMessage,
		PendingText:       PendingText,
		MaxConcurrentRuns: 10,
		MaxModelCalls:     25,
		EventBufferSize:   100,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	hooks := make([]core.TurnHook, 0, len(opts.TurnHooks)+1)
	if !opts.DisableMemoryRecording {
		hooks = append(hooks, memory.NewTurnRecorder(opts.MemoryStore, opts.Logger))
	}
	hooks = append(hooks, opts.TurnHooks...)

	r := runner.New(root, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.MaxModelCalls = opts.MaxModelCalls
		o.EventBufferSize = opts.EventBufferSize
		o.SessionStore = opts.SessionStore
		o.MemoryStore = opts.MemoryStore
		o.TurnHooks = hooks
		o.Tracer = opts.Tracer
		o.Logger = opts.Logger
	})

	return &App{opts: opts, runner: r}
}

// Runner exposes the underlying runner.
func (a *App) Runner() *runner.Runner { return a.runner }

// SessionStore returns the session store in use.
func (a *App) SessionStore() core.SessionStore { return a.opts.SessionStore }

// MemoryStore returns the memory store in use.
func (a *App) MemoryStore() core.MemoryStore { return a.opts.MemoryStore }

// Key resolves the session key for a user/session pair, applying defaults.
func (a *App) Key(userID, sessionID string) core.SessionKey {
	if strings.TrimSpace(userID) == "" {
		userID = a.opts.DefaultUserID
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = a.opts.DefaultSessionID
	}
	return core.SessionKey{AppName: a.opts.AppName, UserID: strings.TrimSpace(userID), SessionID: strings.TrimSpace(sessionID)}
}

// Plan runs one turn and extracts the plan text.
//
// The run is detached from ctx once started so that a client returning early
// does not abort turn hooks; if ctx ends before a final text arrives the run
// is cancelled.
func (a *App) Plan(ctx context.Context, req PlanRequest) (PlanResult, error) {
	key := a.Key(req.UserID, req.SessionID)
	message := req.Message
	if strings.TrimSpace(message) == "" {
		message = a.opts.DefaultMessage
	}

	if _, err := core.EnsureSession(ctx, a.opts.SessionStore, key); err != nil {
		return PlanResult{}, fmt.Errorf("ensure session %s: %w", key, err)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if a.opts.PlanTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), a.opts.PlanTimeout)
	} else {
		runCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}

	content := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: message}}}

	runID, events, errs, err := a.runner.Run(runCtx, key, content)
	if err != nil {
		cancel()
		return PlanResult{}, err
	}

	result := PlanResult{RunID: runID, Key: key}

	for {
		select {
		case <-ctx.Done():
			_ = a.runner.Cancel(runID)
			go a.drain(runID, events, errs, cancel)
			return PlanResult{}, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				cancel()
				if err := <-errs; err != nil {
					return PlanResult{}, err
				}
				return a.finish(result), nil
			}

			if !ev.IsFinalResponse() || ev.Content == nil {
				continue
			}
			text := ev.Text()
			if text == "" {
				continue
			}
			result.Plan = text

			if a.opts.Selection == SelectFirstFinal {
				go a.drain(runID, events, errs, cancel)
				return a.finish(result), nil
			}
		}
	}
}

func (a *App) finish(result PlanResult) PlanResult {
	if result.Plan == "" {
		result.Plan = a.opts.PendingText
		result.Pending = true
	}
	a.opts.Logger.Info("app.plan.done", "run_id", result.RunID, "session", result.Key.String(), "pending", result.Pending)
	return result
}

// drain consumes what is left of a run so it can persist its events and run
// its hooks. Late errors are only logged.
func (a *App) drain(runID string, events <-chan core.Event, errs <-chan error, cancel context.CancelFunc) {
	defer cancel()
	for range events {
	}
	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		a.opts.Logger.Warn("app.plan.late_error", "run_id", runID, "error", err.Error())
	}
}

// RunSync is a synchronous helper that drains the async channels and returns
// every event of the turn. The session is created when missing.
func (a *App) RunSync(ctx context.Context, key core.SessionKey, content core.Content) (string, []core.Event, error) {
	if _, err := core.EnsureSession(ctx, a.opts.SessionStore, key); err != nil {
		return "", nil, fmt.Errorf("ensure session %s: %w", key, err)
	}

	runID, eventsCh, errorsCh, err := a.runner.Run(ctx, key, content)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event
	for ev := range eventsCh {
		events = append(events, ev)
	}

	return runID, events, <-errorsCh
}
