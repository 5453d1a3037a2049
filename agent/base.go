package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/messplanner/core"
)

// ErrAgentNotFound is returned when a transfer names an unknown agent.
var ErrAgentNotFound = errors.New("agent not found")

// BaseAgent bundles hierarchy management and identity helpers. Embed it in
// concrete agent implementations, call bind with the outer value and supply a
// Run method to satisfy the core.Agent interface. All exported methods are
// goroutine-safe.
type BaseAgent struct {
	name        string       // Unique name inside the graph
	description string       // Shown to other agents deciding on a transfer
	mu          sync.RWMutex // Protects hierarchy links
	self        core.Agent   // Outer agent embedding this BaseAgent
	parent      core.Agent   // Parent agent in hierarchical structures
	subAgents   []core.Agent // Child agents managed by this agent
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// bind records the concrete agent so hierarchy links point at it rather than
// at the embedded BaseAgent.
func (b *BaseAgent) bind(self core.Agent) { b.self = self }

// Name returns the agent name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description. Call it while building the graph.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// SetSubAgents atomically replaces the child agent set, clearing any previous
// parent links then assigning this agent as the parent of each new child. A
// child that already has another parent is rejected.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	names := map[string]bool{}
	for _, child := range children {
		if names[child.Name()] {
			return fmt.Errorf("duplicate sub-agent name %q", child.Name())
		}
		names[child.Name()] = true

		if p := child.Parent(); p != nil && p != b.self {
			return fmt.Errorf("agent %q already has parent %q", child.Name(), p.Name())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, child := range b.subAgents {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(nil)
		}
	}
	b.subAgents = nil

	for _, child := range children {
		if setter, ok := child.(interface{ setParent(core.Agent) }); ok {
			setter.setParent(b.self)
		}
		b.subAgents = append(b.subAgents, child)
	}

	return nil
}

// setParent sets the internal parent reference.
func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Parent returns the current parent agent or nil if this agent is root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.parent
}

// SubAgents returns a shallow copy of current child agents for safe iteration.
func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]core.Agent, len(b.subAgents))
	copy(result, b.subAgents)
	return result
}

// FindAgent performs a depth-first search over the subtree rooted at this
// agent (including itself) returning the first agent whose Name matches.
// Returns nil if no match is found.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return b.self
	}

	for _, child := range b.SubAgents() {
		if found := child.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// TransferTargets returns the agents reachable by a transfer: children, the
// parent and the parent's other children.
func (b *BaseAgent) TransferTargets() []core.Agent {
	targets := b.SubAgents()

	parent := b.Parent()
	if parent == nil {
		return targets
	}

	targets = append(targets, parent)
	for _, peer := range parent.SubAgents() {
		if peer.Name() != b.name {
			targets = append(targets, peer)
		}
	}

	return targets
}

// transferTo runs the named transfer target under its own identity.
func (b *BaseAgent) transferTo(runCtx *core.RunContext, agentName string) error {
	for _, target := range b.TransferTargets() {
		if target.Name() != agentName {
			continue
		}

		runCtx.LogInfo("agent.transfer", "from_agent", b.name, "to_agent", agentName, "run", runCtx.RunID)

		return target.Run(runCtx.WithAgent(Info(target)))
	}

	return fmt.Errorf("transfer from %s to %q: %w", b.name, agentName, ErrAgentNotFound)
}

// Info derives the identity carried in run contexts and events.
func Info(a core.Agent) core.AgentInfo {
	info := core.AgentInfo{Name: a.Name(), Type: "custom"}
	if typed, ok := a.(interface{ Type() string }); ok {
		info.Type = typed.Type()
	}
	return info
}
