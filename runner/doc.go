// Package runner implements the orchestration layer of the planner.
//
// A Runner executes one conversational turn of the root agent for a session:
// it records the user message, runs the agent graph in the background,
// persists every completed event and applies state deltas, streams events to
// the caller in order and notifies turn hooks once the turn is over.
//
// # Responsibilities (abridged)
//   - Turn orchestration with a bounded number of concurrent runs
//   - Event persistence and state delta application
//   - Per-run model call budget and cooperative cancellation
//   - Turn hooks (e.g. recording sessions into long-term memory)
//   - One trace span per run
package runner
