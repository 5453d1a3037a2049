package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., a JSON object produced by the
// input collector).
type DataPart struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Optional stable id (can be supplied later)
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (e.g. JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall   `json:"function_call"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse `json:"function_response"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system,...)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// partEnvelope is the tagged wire form of a Part used by durable session stores.
type partEnvelope struct {
	Type             string                `json:"type"`
	Text             *TextPart             `json:"text,omitempty"`
	Data             *DataPart             `json:"data,omitempty"`
	FunctionCall     *FunctionCallPart     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponsePart `json:"function_response,omitempty"`
}

type contentWire struct {
	Role  string         `json:"role,omitempty"`
	Parts []partEnvelope `json:"parts"`
}

// MarshalJSON encodes the content with type-tagged parts so it can be decoded
// back into concrete Part values.
func (c Content) MarshalJSON() ([]byte, error) {
	w := contentWire{Role: c.Role, Parts: make([]partEnvelope, 0, len(c.Parts))}
	for _, p := range c.Parts {
		switch v := p.(type) {
		case TextPart:
			w.Parts = append(w.Parts, partEnvelope{Type: "text", Text: &v})
		case DataPart:
			w.Parts = append(w.Parts, partEnvelope{Type: "data", Data: &v})
		case FunctionCallPart:
			w.Parts = append(w.Parts, partEnvelope{Type: "function_call", FunctionCall: &v})
		case FunctionResponsePart:
			w.Parts = append(w.Parts, partEnvelope{Type: "function_response", FunctionResponse: &v})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes type-tagged parts produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var w contentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Role = w.Role
	c.Parts = make([]Part, 0, len(w.Parts))
	for _, env := range w.Parts {
		switch {
		case env.Type == "text" && env.Text != nil:
			c.Parts = append(c.Parts, *env.Text)
		case env.Type == "data" && env.Data != nil:
			c.Parts = append(c.Parts, *env.Data)
		case env.Type == "function_call" && env.FunctionCall != nil:
			c.Parts = append(c.Parts, *env.FunctionCall)
		case env.Type == "function_response" && env.FunctionResponse != nil:
			c.Parts = append(c.Parts, *env.FunctionResponse)
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}
	return nil
}
