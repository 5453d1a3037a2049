package memory

import (
	"context"
	"fmt"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/logging"
)

// TurnRecorder is a core.TurnHook that appends every successfully completed
// session turn to a MemoryStore, so later sessions of the same user can recall
// earlier preferences and plans.
type TurnRecorder struct {
	store  core.MemoryStore
	logger logging.Logger
}

// NewTurnRecorder creates a recorder writing to store.
func NewTurnRecorder(store core.MemoryStore, logger logging.Logger) *TurnRecorder {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &TurnRecorder{store: store, logger: logger}
}

// OnTurnComplete implements core.TurnHook. Failed turns are not recorded.
func (r *TurnRecorder) OnTurnComplete(ctx context.Context, turn core.TurnResult) error {
	if turn.Err != nil || turn.Session == nil {
		return nil
	}

	if err := r.store.AddSession(ctx, turn.Session); err != nil {
		return fmt.Errorf("record turn %s: %w", turn.RunID, err)
	}

	r.logger.Debug("memory.turn.recorded", "session", turn.Key.String(), "run_id", turn.RunID)

	return nil
}
