package tool

import "github.com/hupe1980/messplanner/core"

// TransferToAgentName is the reserved name of the transfer tool.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests orchestration transfer to a named agent. The
// flow injects it automatically into agents that have transfer targets.
type transferToAgentTool struct{}

// NewTransferToAgentTool constructs the transfer tool instance.
func NewTransferToAgentTool() Tool { return &transferToAgentTool{} }

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the conversation to another agent by name. Use when another agent is better suited to answer."
}

func (t *transferToAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "Target agent name"},
		},
		"required": []string{"agent_name"},
	}
}

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	raw, ok := args["agent_name"]
	if !ok {
		raw, ok = args["agent"] // tolerate the short form some models emit
	}
	if !ok {
		return nil, NewToolError(TransferToAgentName, "missing required field 'agent_name'", CodeValidation)
	}
	agentName, ok := raw.(string)
	if !ok || agentName == "" {
		return nil, NewToolError(TransferToAgentName, "field 'agent_name' must be a non-empty string", CodeValidation)
	}
	tc.TransferToAgent(agentName)
	return map[string]any{"transferred": true, "agent_name": agentName}, nil
}
