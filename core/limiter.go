package core

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrModelCallLimit is returned (wrapped) once a run exceeds its model call budget.
var ErrModelCallLimit = errors.New("model call limit exceeded")

// ModelLimiter caps the model calls of one planner turn across all agents of
// the graph. A coordinator and a specialist transferring back and forth
// would otherwise loop forever, so calls are also counted per agent to
// name the culprit.
type ModelLimiter struct {
	mu       sync.Mutex
	max      int
	total    int
	perAgent map[string]int
}

// NewModelLimiter creates a limiter allowing max calls; 0 means unlimited.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max, perAgent: map[string]int{}}
}

// Increment records one call made by agent.
func (ml *ModelLimiter) Increment(agent string) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.total++
	ml.perAgent[agent]++

	if ml.max > 0 && ml.total > ml.max {
		return fmt.Errorf("%w: %d calls allowed, %s made call %d of the run", ErrModelCallLimit, ml.max, agent, ml.total)
	}

	return nil
}

// Count returns the number of calls made so far.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.total
}

// CountByAgent returns a snapshot of calls per agent name.
func (ml *ModelLimiter) CountByAgent() map[string]int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return maps.Clone(ml.perAgent)
}

// Remaining returns the calls left, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1
	}

	return max(ml.max-ml.total, 0)
}
