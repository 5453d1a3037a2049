package agent

import (
	"fmt"
	"time"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/flow"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description           string
	Instruction           Instruction
	EnableStreaming       bool
	EnableFunctionCalling bool
	ToolTimeout           time.Duration
	OutputKey             string
	MaxHistoryMessages    int
	AllowTransfer         bool
	Tools                 []tool.Tool
}

// ModelAgent integrates with a language model to process natural language
// input and generate responses.
//
// This agent implementation supports:
//   - Instructions rendered against session state
//   - Function calling with registered tools
//   - Streaming responses
//   - Saving the final answer to session state (OutputKey)
//   - Handing the turn to related agents via transfer_to_agent
//
// ModelAgent embeds BaseAgent to inherit hierarchy management.
type ModelAgent struct {
	BaseAgent                                  // Embedded base agent functionality
	llm                   model.Model          // Language model interface
	instruction           Instruction          // Instructions for the LLM
	tools                 map[string]tool.Tool // Registered tools for function calling
	toolOrder             []string             // Declaration order of tools
	enableFunctionCalling bool                 // Whether to enable tool usage
	enableStreaming       bool                 // Whether to stream responses
	toolTimeout           time.Duration        // Timeout for individual tool calls
	outputKey             string               // Key for saving responses to session state
	maxHistoryMessages    int                  // Maximum number of conversation history messages to keep
	allowTransfer         bool                 // Whether agent can transfer control to related agents
}

// NewModelAgent creates a new model-based agent with sensible defaults:
//   - streaming disabled, function calling enabled
//   - 15-second timeout for tool calls
//   - 20-message conversation history limit
//   - transfers enabled
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:           NewInstructionFromText(fmt.Sprintf("You are %s, part of a shared-kitchen meal planner.", name)),
		EnableFunctionCalling: true,
		ToolTimeout:           15 * time.Second,
		MaxHistoryMessages:    20,
		AllowTransfer:         true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:             NewBaseAgent(name),
		llm:                   llm,
		instruction:           opts.Instruction,
		tools:                 make(map[string]tool.Tool, len(opts.Tools)),
		enableStreaming:       opts.EnableStreaming,
		enableFunctionCalling: opts.EnableFunctionCalling,
		toolTimeout:           opts.ToolTimeout,
		outputKey:             opts.OutputKey,
		maxHistoryMessages:    opts.MaxHistoryMessages,
		allowTransfer:         opts.AllowTransfer,
	}
	a.bind(a)

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	for _, t := range opts.Tools {
		if _, dup := a.tools[t.Name()]; !dup {
			a.toolOrder = append(a.toolOrder, t.Name())
		}
		a.tools[t.Name()] = t
	}

	return a
}

// Type implements the agent type label used in core.AgentInfo.
func (a *ModelAgent) Type() string { return "model" }

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// ListTools returns the names of all registered tools in declaration order.
func (a *ModelAgent) ListTools() []string {
	return append([]string(nil), a.toolOrder...)
}

// GetTool retrieves a specific tool by name.
func (a *ModelAgent) GetTool(name string) (tool.Tool, bool) {
	t, exists := a.tools[name]
	return t, exists
}

// GetName returns the agent's display name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetLLM returns the language model instance.
func (a *ModelAgent) GetLLM() model.Model { return a.llm }

// GetTools returns a copy of the registered tools.
func (a *ModelAgent) GetTools() map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools))
	for name, t := range a.tools {
		tools[name] = t
	}
	return tools
}

// IsFunctionCallingEnabled returns whether function calling is enabled.
func (a *ModelAgent) IsFunctionCallingEnabled() bool { return a.enableFunctionCalling }

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.enableStreaming }

// IsTransferEnabled returns whether agent transfer is enabled.
func (a *ModelAgent) IsTransferEnabled() bool { return a.allowTransfer }

// GetOutputKey returns the session state key for saving responses.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ToolTimeout returns the per tool call deadline.
func (a *ModelAgent) ToolTimeout() time.Duration { return a.toolTimeout }

// ResolveInstructions produces the instruction string (system prompt) by
// resolving static or dynamic instruction sources.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// ExecuteTool invokes the named tool returning its result or a
// *tool.ToolError if the tool is unknown.
func (a *ModelAgent) ExecuteTool(toolCtx *core.ToolContext, toolName string, args map[string]any) (any, error) {
	t, exists := a.tools[toolName]
	if !exists {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("tool %s not found", toolName), tool.CodeNotFound)
	}

	return t.Call(toolCtx, args)
}

// TransferToAgent hands the rest of the turn to a related agent (child,
// parent or peer).
func (a *ModelAgent) TransferToAgent(runCtx *core.RunContext, agentName string) error {
	return a.transferTo(runCtx, agentName)
}

// Run implements core.Agent using the flow selector to choose the execution
// strategy. It returns once the agent, and any agent it handed over to, is done.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	start := time.Now()

	fl := flow.For(a)

	runCtx.LogDebug(
		"agent.run.start",
		"agent", a.Name(),
		"run", runCtx.RunID,
		"flow", fmt.Sprintf("%T", fl),
	)

	if err := fl.Run(runCtx); err != nil {
		runCtx.LogError("agent.run.error", "agent", a.Name(), "error", err.Error())
		return fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	runCtx.LogDebug("agent.run.complete", "agent", a.Name(), "duration_ms", time.Since(start).Milliseconds())

	return nil
}
