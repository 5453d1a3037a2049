package agent

import (
	"strings"

	"github.com/hupe1980/messplanner/core"
)

// InstructionFunc computes instruction text for one run, typically from
// session state. An empty result contributes nothing.
type InstructionFunc func(*core.RunContext) (string, error)

// Instruction is the system prompt of a ModelAgent: fixed text, text
// computed per run, or a sequence of both joined by blank lines. Session
// state placeholders ({{ .key }}) are rendered afterwards by the flow.
type Instruction struct {
	text  string
	fn    InstructionFunc
	parts []Instruction
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromFunc creates an Instruction resolved on every run.
func NewInstructionFromFunc(fn InstructionFunc) Instruction { return Instruction{fn: fn} }

// ComposeInstructions concatenates parts in order.
func ComposeInstructions(parts ...Instruction) Instruction {
	return Instruction{parts: parts}
}

// IsStatic reports whether the text is known without a RunContext.
func (i Instruction) IsStatic() bool {
	if i.fn != nil {
		return false
	}
	for _, p := range i.parts {
		if !p.IsStatic() {
			return false
		}
	}
	return true
}

// Resolve returns the instruction text for runCtx.
func (i Instruction) Resolve(runCtx *core.RunContext) (string, error) {
	switch {
	case i.fn != nil:
		return i.fn(runCtx)
	case i.parts == nil:
		return i.text, nil
	}

	blocks := make([]string, 0, len(i.parts))
	for _, p := range i.parts {
		text, err := p.Resolve(runCtx)
		if err != nil {
			return "", err
		}
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, text)
		}
	}

	return strings.Join(blocks, "\n\n"), nil
}
