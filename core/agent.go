package core

// Agent defines the interface that all agents in the runtime implement.
//
// Agents receive their input through a RunContext, emit events through it and
// return once their part of the turn is complete. Implementations must be safe
// for concurrent Runs: an agent graph is built once at start-up and shared by
// every request, so per-run state belongs in the RunContext, never in the agent.
type Agent interface {
	Name() string
	Description() string
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes implementation (e.g. "model", "sequential").
type AgentInfo struct{ Name, Type string }
