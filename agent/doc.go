// Package agent contains the agent implementations the planner graph is built
// from. The package focuses on three concerns:
//
//  1. Hierarchy plumbing shared by every agent (BaseAgent)
//  2. Ordered coordination of child agents (SequentialAgent)
//  3. Model-centric conversational / tool-calling agent (ModelAgent)
//
// An agent graph is assembled once at start-up and then only read. Per-turn
// data (session snapshot, staged state, emit channels) travels in the
// *core.RunContext handed to Run, so one graph serves concurrent requests.
//
// ModelAgent integrates with the model, tool and flow packages; persistence
// and provider specifics stay in their own packages to avoid cyclic deps.
package agent
