package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/tool"
)

// ErrNoModel is returned when an agent reaches the flow without a model.
var ErrNoModel = errors.New("agent has no model configured")

// BaseFlow implements the request -> LLM -> (optional tool loop) cycle with
// pluggable pre/post processors. Concrete flows differ only in the
// processors and builtin tools they register.
type BaseFlow struct {
	agent              FlowAgent
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
	builtins           map[string]tool.Tool
	executor           *FunctionExecutor
}

// NewBaseFlow creates a new flow without processors.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:              agent,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
		builtins:           map[string]tool.Tool{},
		executor:           NewFunctionExecutor(FunctionExecutorConfig{}),
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed on every final model response.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// AddBuiltinTool registers a flow owned tool that is routed before the agent's own tools.
func (f *BaseFlow) AddBuiltinTool(t tool.Tool) { f.builtins[t.Name()] = t }

// SetFunctionExecutor replaces the default tool executor.
func (f *BaseFlow) SetFunctionExecutor(e *FunctionExecutor) { f.executor = e }

// Run loops model turns until the agent answers without tool calls, a tool
// ends the turn or the agent hands over to another agent.
func (f *BaseFlow) Run(runCtx *core.RunContext) error {
	for {
		if err := runCtx.Err(); err != nil {
			return err
		}

		last, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}
		if last == nil {
			return nil
		}

		if target := last.Actions.TransferToAgent; target != nil {
			runCtx.LogInfo("flow.transfer", "from_agent", f.agent.GetName(), "to_agent", *target)
			return f.agent.TransferToAgent(runCtx, *target)
		}

		if len(last.GetFunctionResponses()) > 0 && !last.IsFinalResponse() {
			continue
		}

		return nil
	}
}

// runOnce performs one model turn (including any tool executions) and returns
// the event that decides how the loop continues. A nil event means the model
// produced nothing.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (*core.Event, error) {
	// Tool responses of the previous iteration must be part of the history.
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
	}

	req := model.Request{Stream: f.agent.IsStreamingEnabled()}
	if f.agent.IsFunctionCallingEnabled() {
		tools := f.agent.GetTools()
		for _, name := range sortedToolNames(tools) {
			req.Tools = append(req.Tools, toolDefinition(tools[name]))
		}
	}

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, &req, f.agent); err != nil {
			return nil, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	llm := f.agent.GetLLM()
	if llm == nil {
		return nil, fmt.Errorf("%s: %w", f.agent.GetName(), ErrNoModel)
	}

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(f.agent.GetName()); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	final, err := f.generate(runCtx, llm, req)
	if err != nil {
		runCtx.LogError("flow.model.error", "agent", f.agent.GetName(), "model", llm.Info().Name, "error", err.Error())
		return nil, fmt.Errorf("model %s: %w", llm.Info().Name, err)
	}
	if final == nil {
		runCtx.LogWarn("flow.model.empty", "agent", f.agent.GetName())
		return nil, nil
	}

	runCtx.LogDebug("flow.model.done",
		"agent", f.agent.GetName(),
		"finish_reason", final.FinishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	for _, processor := range f.responseProcessors {
		if err := processor.ProcessResponse(runCtx, final, f.agent); err != nil {
			return nil, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
		}
	}

	ensureCallIDs(&final.Content)

	ev := f.newModelEvent(runCtx, *final)
	if err := f.emit(runCtx, ev); err != nil {
		return nil, err
	}

	calls := ev.GetFunctionCalls()
	if len(calls) == 0 {
		return &ev, nil
	}

	responses, err := f.executor.Execute(runCtx, f.agent.GetName(), calls, f.agent.ToolTimeout(), f.invokeTool)
	if err != nil {
		return nil, err
	}

	var decisive *core.Event
	for i := range responses {
		if err := f.emit(runCtx, responses[i]); err != nil {
			return nil, err
		}
		if decisive == nil || responses[i].Actions.TransferToAgent != nil {
			decisive = &responses[i]
		}
	}

	// Without a transfer the last response drives the loop.
	if decisive.Actions.TransferToAgent == nil {
		decisive = &responses[len(responses)-1]
	}

	return decisive, nil
}

// generate drains the model stream. Partial chunks are emitted as they
// arrive; the final response is returned. Models that only stream partials
// get a final response assembled from the chunks.
func (f *BaseFlow) generate(runCtx *core.RunContext, llm model.Model, req model.Request) (*model.Response, error) {
	respCh, errCh := llm.Generate(runCtx.Context, req)

	var (
		final    *model.Response
		streamed strings.Builder
	)

	for respCh != nil {
		var (
			resp model.Response
			ok   bool
		)
		select {
		case <-runCtx.Done():
			return nil, runCtx.Err()
		case resp, ok = <-respCh:
		}
		if !ok {
			respCh = nil
			continue
		}

		if resp.Partial {
			streamed.WriteString(resp.Content.Text())

			ev := f.newModelEvent(runCtx, resp)
			partial := true
			ev.Partial = &partial
			if err := runCtx.EmitEvent(ev); err != nil {
				return nil, err
			}
			continue
		}

		r := resp
		final = &r
	}

	select {
	case <-runCtx.Done():
		return nil, runCtx.Err()
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	}

	if final == nil && streamed.Len() > 0 {
		final = &model.Response{
			Content:      core.Content{Role: "assistant", Parts: []core.Part{core.TextPart{Text: streamed.String()}}},
			FinishReason: "stop",
		}
	}

	return final, nil
}

func (f *BaseFlow) newModelEvent(runCtx *core.RunContext, resp model.Response) core.Event {
	ev := core.NewEvent(runCtx.RunID, f.agent.GetName())

	content := resp.Content
	if content.Role == "" {
		content.Role = "assistant"
	}
	ev.Content = &content

	if resp.Partial {
		return ev
	}

	meta := map[string]string{}
	if resp.FinishReason != "" {
		meta["finish_reason"] = resp.FinishReason
	}
	if resp.Usage != nil {
		meta["total_tokens"] = strconv.Itoa(resp.Usage.TotalTokens)
	}
	if len(meta) > 0 {
		ev.CustomMetadata = meta
	}

	if len(ev.GetFunctionCalls()) == 0 {
		complete := true
		ev.TurnComplete = &complete
	}

	return ev
}

// emit publishes a non-partial event and waits until the runner persisted it.
func (f *BaseFlow) emit(runCtx *core.RunContext, ev core.Event) error {
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	return runCtx.WaitForResume()
}

func (f *BaseFlow) invokeTool(toolCtx *core.ToolContext, name string, args map[string]any) (any, error) {
	if t, ok := f.builtins[name]; ok {
		return t.Call(toolCtx, args)
	}
	return f.agent.ExecuteTool(toolCtx, name, args)
}

// ensureCallIDs assigns ids to function calls the provider left unnamed so
// responses can be matched to their call.
func ensureCallIDs(content *core.Content) {
	for i, part := range content.Parts {
		fc, ok := part.(core.FunctionCallPart)
		if !ok || fc.FunctionCall.ID != "" {
			continue
		}
		fc.FunctionCall.ID = "call_" + core.NewID()
		content.Parts[i] = fc
	}
}
