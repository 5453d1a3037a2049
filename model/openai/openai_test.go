package openai

import (
	"testing"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_InstructionsAndToolReplay(t *testing.T) {
	req := model.Request{
		Instructions: "You are meal_planner.",
		Contents: []core.Content{
			{Role: "user", Parts: []core.Part{core.TextPart{Text: "Plan kar do bhai"}}},
			{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID: "call-1", Name: "web_search", Arguments: `{"query":"rice price"}`,
			}}}},
			{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID: "call-1", Name: "web_search", Response: map[string]any{"price": 60},
			}}}},
			{Role: "assistant", Parts: []core.Part{core.TextPart{Text: "done"}}},
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 5)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "web_search", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call-1", msgs[3].OfTool.ToolCallID)
	require.NotNil(t, msgs[4].OfAssistant)
}

func TestFinalParts_OrderedByIndex(t *testing.T) {
	parts := finalParts("thinking", map[int64]*aggCall{
		1: {id: "b", name: "check_mess_rules"},
		0: {id: "a", name: "web_search"},
	})
	require.Len(t, parts, 3)
	assert.Equal(t, core.TextPart{Text: "thinking"}, parts[0])
	assert.Equal(t, "a", parts[1].(core.FunctionCallPart).FunctionCall.ID)
	assert.Equal(t, "b", parts[2].(core.FunctionCallPart).FunctionCall.ID)
}

func TestNewModel_Options(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "gpt-4o"
		o.APIKey = "test-key"
	})
	info := m.Info()
	assert.Equal(t, "gpt-4o", info.Name)
	assert.Equal(t, "openai", info.Provider)
}
