package flow

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/messplanner/core"
	internalutil "github.com/hupe1980/messplanner/internal/util"
	"github.com/hupe1980/messplanner/tool"
)

// ToolInvoker runs a named tool with decoded arguments.
type ToolInvoker func(toolCtx *core.ToolContext, name string, args map[string]any) (any, error)

// FunctionExecutorConfig configures the parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel    int  // <1 => one goroutine per call
	LogStartEvents bool // log a start line per function
}

// FunctionExecutor executes a batch of function calls in parallel and turns
// every call into exactly one function response event. Tool failures and
// panics become error responses the model can react to; only cancellation of
// the run aborts the batch.
type FunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewFunctionExecutor constructs a new executor with the given config.
func NewFunctionExecutor(cfg FunctionExecutorConfig) *FunctionExecutor {
	return &FunctionExecutor{cfg: cfg}
}

// Execute runs calls and returns their response events in call order.
func (e *FunctionExecutor) Execute(
	runCtx *core.RunContext,
	author string,
	calls []core.FunctionCall,
	timeout time.Duration,
	invoke ToolInvoker,
) ([]core.Event, error) {
	results := make([]core.Event, len(calls))

	g, gctx := errgroup.WithContext(runCtx.Context)
	if e.cfg.MaxParallel > 0 {
		g.SetLimit(e.cfg.MaxParallel)
	}

	batchStart := time.Now()

	for i, fc := range calls {
		// Every call gets its own context copy so parallel tools never share
		// the staged state map.
		callCtx := runCtx.Clone()

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			ctx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}
			callCtx.Context = ctx

			results[i] = e.executeOne(callCtx, author, fc, invoke)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// errgroup only cancels gctx on error; a cancelled parent still has to stop the turn.
	if err := runCtx.Err(); err != nil {
		return nil, err
	}

	runCtx.LogDebug("agent.function.batch",
		"agent", author,
		"count", len(calls),
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results, nil
}

func (e *FunctionExecutor) executeOne(runCtx *core.RunContext, author string, fc core.FunctionCall, invoke ToolInvoker) core.Event {
	toolCtx := core.NewToolContext(runCtx, fc.ID)

	if e.cfg.LogStartEvents {
		runCtx.LogInfo("agent.function.start", "agent", author, "function", fc.Name, "function_call_id", fc.ID)
	}

	start := time.Now()

	var (
		result any
		err    error
	)

	args, repaired, parseErr := internalutil.ParseArguments(fc.Arguments)
	if parseErr != nil {
		err = tool.NewToolError(fc.Name, parseErr.Error(), tool.CodeValidation)
	} else {
		if repaired {
			runCtx.LogWarn("agent.function.args_repaired", "agent", author, "function", fc.Name)
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
					runCtx.LogError("agent.function.panic", "agent", author, "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
				}
			}()
			result, err = invoke(toolCtx, fc.Name, args)
		}()
	}

	runCtx.LogInfo("agent.function.executed",
		"agent", author,
		"function", fc.Name,
		"function_call_id", fc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	ev := core.NewFunctionResponseEvent(author, fc.ID, fc.Name, result, err)
	ev.RunID = runCtx.RunID
	toolCtx.InternalApplyActions(&ev)

	return ev
}

func panicError(r any) error {
	return fmt.Errorf("panic: %v", r)
}
