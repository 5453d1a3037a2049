// Package tool implements the function calling subsystem that lets planner
// agents invoke structured capabilities (web search, memory preload, rule
// checks, agent transfer) with schema validated arguments and uniform errors.
package tool

import (
	"fmt"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// All tools have access to a ToolContext for session state, agent flow control
// and memory. Implementations must be safe for concurrent use; the same tool
// instance serves every request.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with validated, decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// InstructionProvider is implemented by tools that contribute text to the
// system instruction of the agent that owns them before every model call.
type InstructionProvider interface {
	ProcessInstruction(runCtx *core.RunContext) (string, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "TOOL_NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
