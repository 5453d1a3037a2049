package core

import "context"

// Runner defines the minimal orchestration contract for executing a root agent
// within a conversational session. It provides:
//   - Asynchronous execution via Run (streaming events + terminal error channel)
//   - Cooperative cancellation through Cancel
//   - Stable run identifiers for tracking / external control
//
// Semantics & Guarantees:
//   - Event Ordering: Events emitted within a single run are delivered
//     in the order produced by the underlying agent pipeline.
//   - Channel Lifecycle: The returned events channel is closed after the
//     run completes (success, error, or cancellation). The error channel
//     carries at most one terminal error then closes (buffered size 1).
//   - Cancellation: Context cancellation or explicit Cancel(runID)
//     stops further event emission and triggers cleanup.
//   - Turn hooks run after the root agent returns and before the channels close.
type Runner interface {
	// Run starts an asynchronous turn for the session identified by key using
	// userContent as the new input. The session must exist. It returns:
	//   runID    - stable identifier for cancellation / tracking
	//   eventsCh - ordered stream of events (closed on completion)
	//   errorsCh - terminal error channel (size 1, closed after send/none)
	// The immediate error return covers startup failures (e.g. session load).
	Run(ctx context.Context, key SessionKey, userContent Content) (string, <-chan Event, <-chan error, error)

	// Cancel requests cooperative termination of an in-flight run. Cancelling
	// an unknown or already finished run returns an error.
	Cancel(runID string) error
}

// TurnResult describes a finished turn of the root agent.
type TurnResult struct {
	Key     SessionKey
	RunID   string
	Agent   string
	Session *Session // refreshed snapshot including the turn's events
	Err     error    // terminal error of the turn, nil on success
}

// TurnHook is notified once the root agent has completed a turn.
type TurnHook interface {
	OnTurnComplete(ctx context.Context, turn TurnResult) error
}

// TurnHookFunc adapts a plain function to the TurnHook interface.
type TurnHookFunc func(ctx context.Context, turn TurnResult) error

// OnTurnComplete calls f.
func (f TurnHookFunc) OnTurnComplete(ctx context.Context, turn TurnResult) error {
	return f(ctx, turn)
}
