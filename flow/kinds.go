package flow

import "github.com/hupe1980/messplanner/tool"

// SingleAgentFlow runs an agent that answers on its own, such as a
// specialist inside the sequential pipeline.
type SingleAgentFlow struct{ *BaseFlow }

// MultiAgentFlow additionally offers transfer_to_agent, letting the
// coordinator hand the turn to a specialist and specialists hand it back.
type MultiAgentFlow struct{ *BaseFlow }

// NewSingleAgentFlow creates a flow without transfer support.
func NewSingleAgentFlow(agent FlowAgent) *SingleAgentFlow {
	return &SingleAgentFlow{BaseFlow: withDefaultProcessors(NewBaseFlow(agent), false)}
}

// NewMultiAgentFlow creates a flow that injects and routes transfers.
func NewMultiAgentFlow(agent FlowAgent) *MultiAgentFlow {
	base := withDefaultProcessors(NewBaseFlow(agent), true)
	base.AddBuiltinTool(tool.NewTransferToAgentTool())
	return &MultiAgentFlow{BaseFlow: base}
}

// For picks the flow matching agent: transfers are only offered when the
// agent allows them and has somewhere to go.
func For(agent FlowAgent) Flow {
	if agent.IsTransferEnabled() && len(agent.TransferTargets()) > 0 {
		return NewMultiAgentFlow(agent)
	}
	return NewSingleAgentFlow(agent)
}

// withDefaultProcessors installs, in order: instruction rendering, tool
// contributed instructions (recalled memories), history assembly, the
// optional transfer hint and the output_key writer.
func withDefaultProcessors(base *BaseFlow, transfer bool) *BaseFlow {
	base.AddRequestProcessor(NewInstructionsProcessor())
	base.AddRequestProcessor(NewToolInstructionsProcessor())
	base.AddRequestProcessor(NewContentsProcessor())
	if transfer {
		base.AddRequestProcessor(NewTransferToolInjector())
	}
	base.AddResponseProcessor(NewOutputKeyProcessor())
	return base
}
