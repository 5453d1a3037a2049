package flow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/messplanner/core"
	internalutil "github.com/hupe1980/messplanner/internal/util"
	"github.com/hupe1980/messplanner/model"
	"github.com/hupe1980/messplanner/tool"
)

// InstructionsProcessor handles system prompt and instruction processing.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest resolves the agent instruction and renders it against the
// current session state.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("agent.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	if runCtx.Session == nil {
		req.Instructions = instructions
		return nil
	}

	rendered, err := internalutil.RenderTemplate(instructions, runCtx.Session.Clone().State)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	req.Instructions = rendered

	return nil
}

// ToolInstructionsProcessor appends text contributed by tools implementing
// tool.InstructionProvider, such as recalled memories.
type ToolInstructionsProcessor struct{}

// NewToolInstructionsProcessor creates a new tool instructions processor.
func NewToolInstructionsProcessor() *ToolInstructionsProcessor {
	return &ToolInstructionsProcessor{}
}

// Name returns the processor's identifier.
func (p *ToolInstructionsProcessor) Name() string { return "tool_instructions" }

// ProcessRequest implements RequestProcessor.
func (p *ToolInstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	tools := agent.GetTools()
	for _, name := range sortedToolNames(tools) {
		provider, ok := tools[name].(tool.InstructionProvider)
		if !ok {
			continue
		}

		text, err := provider.ProcessInstruction(runCtx)
		if err != nil {
			return fmt.Errorf("tool %s instruction: %w", name, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		req.Instructions = joinInstructions(req.Instructions, text)
	}

	return nil
}

// ContentsProcessor converts the session history into model contents.
// Messages authored by other agents are presented as user side context so the
// model never sees tool calls it did not make.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest implements RequestProcessor.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var contents []core.Content

	if runCtx.Session != nil {
		for _, ev := range runCtx.Session.GetConversationHistory() {
			if ev.Content == nil || len(ev.Content.Parts) == 0 {
				continue
			}
			if isForeignEvent(ev, agent.GetName()) {
				if c, ok := foreignContent(ev); ok {
					contents = append(contents, c)
				}
				continue
			}
			contents = append(contents, *ev.Content)
		}
	}

	if limit := agent.MaxHistoryMessages(); limit > 0 && len(contents) > limit {
		contents = contents[len(contents)-limit:]
	}

	// A window may not open with tool results whose call was trimmed away.
	for len(contents) > 0 && contents[0].Role == "tool" {
		contents = contents[1:]
	}

	req.Contents = contents

	return nil
}

func isForeignEvent(ev core.Event, agentName string) bool {
	return ev.Author != "" && ev.Author != "user" && ev.Author != agentName
}

func foreignContent(ev core.Event) (core.Content, bool) {
	var lines []string
	for _, part := range ev.Content.Parts {
		switch p := part.(type) {
		case core.TextPart:
			if strings.TrimSpace(p.Text) != "" {
				lines = append(lines, fmt.Sprintf("[%s] said: %s", ev.Author, p.Text))
			}
		case core.DataPart:
			lines = append(lines, fmt.Sprintf("[%s] shared data: %v", ev.Author, p.Data))
		case core.FunctionCallPart:
			lines = append(lines, fmt.Sprintf("[%s] called tool `%s` with parameters: %s",
				ev.Author, p.FunctionCall.Name, p.FunctionCall.Arguments))
		case core.FunctionResponsePart:
			lines = append(lines, fmt.Sprintf("[%s] tool `%s` returned result: %s",
				ev.Author, p.FunctionResponse.Name, model.FunctionResponseText(p.FunctionResponse)))
		}
	}

	if len(lines) == 0 {
		return core.Content{}, false
	}

	text := "For context:\n" + strings.Join(lines, "\n")

	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}, true
}

// TransferToolInjector offers the transfer_to_agent tool and describes the
// reachable agents in the system instruction.
type TransferToolInjector struct{}

// NewTransferToolInjector creates a new transfer tool injector.
func NewTransferToolInjector() *TransferToolInjector { return &TransferToolInjector{} }

// Name returns the processor's identifier.
func (p *TransferToolInjector) Name() string { return "transfer_tool_injector" }

// ProcessRequest implements RequestProcessor.
func (p *TransferToolInjector) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	if !agent.IsTransferEnabled() {
		return nil
	}

	targets := agent.TransferTargets()
	if len(targets) == 0 || req.HasTool(tool.TransferToAgentName) {
		return nil
	}

	transfer := tool.NewTransferToAgentTool()
	req.Tools = append(req.Tools, toolDefinition(transfer))

	var b strings.Builder
	b.WriteString("You can hand the conversation to one of these agents:\n")
	for _, t := range targets {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}
	fmt.Fprintf(&b, "To hand over, call %s with agent_name set to the target agent.", tool.TransferToAgentName)

	req.Instructions = joinInstructions(req.Instructions, b.String())

	return nil
}

// OutputKeyProcessor stores the final text answer under the agent's output key.
type OutputKeyProcessor struct{}

// NewOutputKeyProcessor creates a new output key processor.
func NewOutputKeyProcessor() *OutputKeyProcessor { return &OutputKeyProcessor{} }

// Name returns the processor's identifier.
func (p *OutputKeyProcessor) Name() string { return "output_key" }

// ProcessResponse implements ResponseProcessor.
func (p *OutputKeyProcessor) ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error {
	key := agent.GetOutputKey()
	if key == "" {
		return nil
	}

	for _, part := range resp.Content.Parts {
		if _, ok := part.(core.FunctionCallPart); ok {
			return nil
		}
	}

	if text := strings.TrimSpace(resp.Content.Text()); text != "" {
		runCtx.SetState(key, text)
	}

	return nil
}

func toolDefinition(t tool.Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

func sortedToolNames(tools map[string]tool.Tool) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func joinInstructions(base, extra string) string {
	if strings.TrimSpace(base) == "" {
		return extra
	}
	return base + "\n\n" + extra
}
