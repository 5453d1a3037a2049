package model

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/messplanner/core"
)

// ErrScriptExhausted is returned by ScriptedModel once every step was consumed.
var ErrScriptExhausted = errors.New("scripted model: no steps left")

// Step is one scripted model turn. Exactly one outcome is produced: Err when
// set, otherwise a final response carrying Text and Calls.
type Step struct {
	Text  string
	Calls []core.FunctionCall
	Err   error
}

// Reply is a Step answering with plain text.
func Reply(text string) Step { return Step{Text: text} }

// Call is a Step requesting a single tool call.
func Call(id, name, args string) Step {
	return Step{Calls: []core.FunctionCall{{ID: id, Name: name, Arguments: args}}}
}

// Fail is a Step failing the generation with err.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedModel replays a fixed sequence of steps, one per Generate call, and
// records every request it receives. Agents sharing one ScriptedModel consume
// the script in call order, which makes multi-agent turns reproducible.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScriptedModel creates a model replaying steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Push appends further steps to the script.
func (m *ScriptedModel) Push(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Requests returns a copy of all requests seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Remaining reports how many steps have not been consumed yet.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var (
		step Step
		ok   bool
	)
	if len(m.steps) > 0 {
		step, m.steps, ok = m.steps[0], m.steps[1:], true
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		if !ok {
			errCh <- ErrScriptExhausted
			return
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}
		parts := make([]core.Part, 0, len(step.Calls)+1)
		if step.Text != "" {
			parts = append(parts, core.TextPart{Text: step.Text})
		}
		finish := "stop"
		for _, c := range step.Calls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: c})
			finish = "tool_calls"
		}
		respCh <- Response{
			ID:           core.NewID(),
			Content:      core.Content{Role: "assistant", Parts: parts},
			FinishReason: finish,
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: "scripted", Provider: "mock", SupportsTools: true}
}
