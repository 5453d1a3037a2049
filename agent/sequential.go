package agent

import (
	"fmt"

	"github.com/hupe1980/messplanner/core"
)

// SequentialAgent runs its child agents one after another within the same
// turn. Each child sees the events and state its predecessors produced, which
// makes it a deterministic pipeline (collect -> validate -> plan).
//
// The first child error stops the sequence.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a sequential coordinator owning children in order.
// It panics when a child already belongs to another agent.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	s := &SequentialAgent{BaseAgent: NewBaseAgent(name)}
	s.bind(s)

	if err := s.SetSubAgents(children...); err != nil {
		panic(err)
	}

	return s
}

// Type implements the agent type label used in core.AgentInfo.
func (s *SequentialAgent) Type() string { return "sequential" }

// Run implements core.Agent.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	for i, child := range s.SubAgents() {
		if err := runCtx.Err(); err != nil {
			return err
		}

		runCtx.LogDebug("agent.sequential.step", "agent", s.Name(), "step", i, "child", child.Name())

		if err := child.Run(runCtx.WithAgent(Info(child))); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
