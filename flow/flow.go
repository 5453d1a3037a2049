// Package flow drives a single model agent through its model -> tool loop.
//
// A flow assembles the model request through a chain of request processors
// (instructions, tool instructions, history, transfer tool), streams the model
// response as events, executes requested tools and repeats until the model
// produces a final answer or hands the turn to another agent.
package flow

import (
	"time"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/tool"
)

// Flow defines the interface for agent execution flows.
//
// Run blocks until the agent has finished its part of the turn. Events are
// emitted through runCtx and every non-partial event is acknowledged by the
// runner before the flow continues.
type Flow interface {
	Run(runCtx *core.RunContext) error
}

// FlowAgent defines the interface that agents must implement to work with flows.
//
// This interface provides flows with access to agent capabilities without
// exposing the full agent implementation details.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetLLM returns the language model instance.
	GetLLM() model.Model

	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the registered tools for function calling.
	GetTools() map[string]tool.Tool

	// TransferTargets lists the agents this agent may hand the turn to.
	TransferTargets() []core.Agent

	// IsFunctionCallingEnabled returns whether function calling is enabled.
	IsFunctionCallingEnabled() bool

	// IsStreamingEnabled returns whether streaming responses are enabled.
	IsStreamingEnabled() bool

	// IsTransferEnabled returns whether agent transfer is enabled.
	IsTransferEnabled() bool

	// GetOutputKey returns the session state key for saving responses.
	GetOutputKey() string

	// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
	MaxHistoryMessages() int

	// ToolTimeout bounds a single tool call. Zero means no extra deadline.
	ToolTimeout() time.Duration

	// ExecuteTool executes a named tool with the given decoded arguments.
	ExecuteTool(toolCtx *core.ToolContext, toolName string, args map[string]any) (any, error)

	// TransferToAgent hands the rest of the turn to a named agent.
	TransferToAgent(runCtx *core.RunContext, agentName string) error
}

// RequestProcessor processes the request before sending it to the LLM.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the chat request before LLM execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes the final model response before it is emitted.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse may rewrite the response or stage state changes on runCtx.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
