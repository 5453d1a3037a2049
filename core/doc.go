// Package core provides the foundational domain types, interfaces and execution
// contexts shared by the planner runtime. It defines the core abstractions for:
//
//   - Agents (units of orchestrated work bound to a language model)
//   - Sessions (keyed conversational containers with state and event history)
//   - Events (immutable communication + orchestration records)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - Pluggable stores for session state and long-term memory
//   - Turn hooks notified when a root agent completes a turn
//
// The package keeps implementation concerns (persistence backends, concrete
// agents, HTTP) out of scope and exposes small interfaces so durable stores
// can be substituted without touching orchestration code.
package core
