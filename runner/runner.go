package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
	"github.com/hupe1980/messplanner/memory"
	"github.com/hupe1980/messplanner/session"
)

// TracerName is the instrumentation scope of runner spans.
const TracerName = "messplanner/runner"

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits turns executing at the same time. Further
	// Run calls wait for a free slot or their context.
	MaxConcurrentRuns int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// MaxModelCalls limits the number of model calls per run (0 = unlimited).
	MaxModelCalls int
	// SessionStore persists sessions and their events.
	SessionStore core.SessionStore
	// MemoryStore backs memory recall tools.
	MemoryStore core.MemoryStore
	// TurnHooks are notified after every turn, in order.
	TurnHooks []core.TurnHook
	// Tracer creates the per-run span. Defaults to the global provider.
	Tracer trace.Tracer
	// Logging services.
	Logger logging.Logger
}

// Runner coordinates agent execution: creates run contexts, streams events,
// applies side‑effects and persists history. Public methods are safe for
// concurrent use.
type Runner struct {
	agent core.Agent
	opts  Options
	sem   *semaphore.Weighted

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

var _ core.Runner = (*Runner)(nil)

// New constructs a Runner with optional overrides.
func New(agent core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		MaxModelCalls:     25,
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
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(TracerName)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = 1
	}

	return &Runner{
		agent:      agent,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Agent returns the root agent.
func (r *Runner) Agent() core.Agent { return r.agent }

// SessionStore returns the store the runner persists to.
func (r *Runner) SessionStore() core.SessionStore { return r.opts.SessionStore }

// MemoryStore returns the long-term memory store handed to agents.
func (r *Runner) MemoryStore() core.MemoryStore { return r.opts.MemoryStore }

// ActiveRuns reports the number of runs in flight.
func (r *Runner) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeRuns)
}

// Run starts an asynchronous turn. The session identified by key must exist.
func (r *Runner) Run(
	ctx context.Context,
	key core.SessionKey,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	if err := key.Validate(); err != nil {
		return "", nil, nil, err
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", nil, nil, fmt.Errorf("wait for run slot: %w", err)
	}

	sess, err := r.opts.SessionStore.Get(ctx, key)
	if err != nil {
		r.sem.Release(1)
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	runID := core.NewID()

	userEvent := core.NewUserContentEvent(runID, &userContent)
	if err := r.opts.SessionStore.AppendEvent(ctx, key, userEvent); err != nil {
		r.sem.Release(1)
		return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
	}
	sess.AddEvent(userEvent)

	ctx, span := r.opts.Tracer.Start(ctx, "runner.run", trace.WithAttributes(
		attribute.String("messplanner.app", key.AppName),
		attribute.String("messplanner.user_id", key.UserID),
		attribute.String("messplanner.session_id", key.SessionID),
		attribute.String("messplanner.run_id", runID),
		attribute.String("messplanner.agent", r.agent.Name()),
	))

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	eventsCh := make(chan core.Event, r.opts.EventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.opts.EventBufferSize)
	resumeCh := make(chan struct{}, 1)

	runCtx := core.NewRunContext(
		ctx,
		key,
		runID,
		core.AgentInfo{Name: r.agent.Name(), Type: agentType(r.agent)},
		userContent,
		r.opts.MaxModelCalls,
		agentEmit,
		resumeCh,
		sess,
		r.opts.SessionStore,
		r.opts.MemoryStore,
		r.opts.Logger,
	)

	r.opts.Logger.Info("runner.run.start", "run_id", runID, "session", key.String(), "agent", r.agent.Name())

	go func() {
		start := time.Now()
		p := &processor{runner: r, key: key, cancel: cancel}

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.processEvents(ctx, agentEmit, resumeCh, eventsCh)
		}()

		err := r.agent.Run(runCtx)
		if perr := p.failure(); perr != nil {
			err = perr
		}
		if err != nil {
			err = fmt.Errorf("agent execution failed: %w", err)
		}

		r.runTurnHooks(ctx, key, runID, err)

		if err != nil {
			errorsCh <- err
		}

		close(agentEmit)
		wg.Wait()

		markSpanResult(span, err)
		span.End()

		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
		cancel()
		r.sem.Release(1)

		if err != nil {
			r.opts.Logger.Warn("runner.run.failed", "run_id", runID, "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		} else {
			r.opts.Logger.Info("runner.run.complete", "run_id", runID, "model_calls", runCtx.Limiter.Count(), "model_calls_by_agent", runCtx.Limiter.CountByAgent(), "duration_ms", time.Since(start).Milliseconds())
		}

		close(eventsCh)
		close(errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// runTurnHooks hands the refreshed session to every hook. Hook failures are
// logged; they never change the outcome of the turn.
func (r *Runner) runTurnHooks(ctx context.Context, key core.SessionKey, runID string, runErr error) {
	if len(r.opts.TurnHooks) == 0 {
		return
	}

	// Hooks persist side effects and must not be cut short by a client
	// that already went away.
	hookCtx := context.WithoutCancel(ctx)

	sess, err := r.opts.SessionStore.Get(hookCtx, key)
	if err != nil {
		r.opts.Logger.Error("runner.turn_hook.session", "run_id", runID, "error", err.Error())
		return
	}

	turn := core.TurnResult{Key: key, RunID: runID, Agent: r.agent.Name(), Session: sess, Err: runErr}
	for i, hook := range r.opts.TurnHooks {
		if err := hook.OnTurnComplete(hookCtx, turn); err != nil {
			r.opts.Logger.Error("runner.turn_hook.error", "run_id", runID, "hook", i, "error", err.Error())
		}
	}
}

// processor persists and forwards the events of one run.
type processor struct {
	runner *Runner
	key    core.SessionKey
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (p *processor) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
		p.cancel()
	}
}

func (p *processor) failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// processEvents drains agentEmit until it is closed. After a persistence
// failure or cancellation events are still drained but no longer delivered.
func (p *processor) processEvents(
	ctx context.Context,
	agentEmit <-chan core.Event,
	resumeCh chan<- struct{},
	eventsCh chan<- core.Event,
) {
	store := p.runner.opts.SessionStore
	logger := p.runner.opts.Logger

	for ev := range agentEmit {
		if p.failure() != nil || ctx.Err() != nil {
			continue
		}

		if len(ev.Actions.StateDelta) > 0 {
			if err := store.ApplyDelta(ctx, p.key, ev.Actions.StateDelta); err != nil {
				p.fail(fmt.Errorf("failed to apply state delta: %w", err))
				continue
			}
		}

		if !ev.IsPartial() {
			if err := store.AppendEvent(ctx, p.key, ev); err != nil {
				p.fail(fmt.Errorf("failed to append event to session: %w", err))
				continue
			}
		}

		if target := ev.Actions.TransferToAgent; target != nil && *target != "" {
			logger.Debug("runner.event.transfer_to_agent", "target", *target, "session", p.key.String())
		}

		select {
		case <-ctx.Done():
			continue
		case eventsCh <- ev:
			logger.Debug("runner.event.delivered", "event_id", ev.ID, "author", ev.Author, "partial", ev.IsPartial())
		}

		if !ev.IsPartial() {
			select {
			case resumeCh <- struct{}{}:
			default:
			}
		}
	}
}

func agentType(a core.Agent) string {
	if typed, ok := a.(interface{ Type() string }); ok {
		return typed.Type()
	}
	return "custom"
}

func markSpanResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		status := "error"
		if errors.Is(err, context.Canceled) {
			status = "cancelled"
		}
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("messplanner.status", status))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String("messplanner.status", "success"))
}
