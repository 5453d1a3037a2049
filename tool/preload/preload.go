// Package preload provides the preload_memory tool. Before every model call
// of its owning agent it recalls long-term memory matching the current user
// message and appends it to the system instruction. Models may also call it
// explicitly with a custom query.
package preload

import (
	"fmt"
	"strings"

	"github.com/hupe1980/messplanner/core"
	"github.com/hupe1980/messplanner/tool"
)

// Name is the tool name exposed to models.
const Name = "preload_memory"

// Options configures the tool.
type Options struct {
	// Limit caps the number of recalled records.
	Limit int
	// IncludeCurrentSession also recalls records of the running session. They
	// are excluded by default because they are already part of the history.
	IncludeCurrentSession bool
}

// Tool recalls past conversations of the same user.
type Tool struct {
	opts Options
}

var (
	_ tool.Tool                = (*Tool)(nil)
	_ tool.InstructionProvider = (*Tool)(nil)
)

// New creates the preload_memory tool.
func New(optFns ...func(o *Options)) *Tool {
	opts := Options{Limit: 5}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	return &Tool{opts: opts}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return Name }

// Description implements tool.Tool.
func (t *Tool) Description() string {
	return "Recall earlier conversations with this user, e.g. past preferences, ratings or meal plans."
}

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "What to look for in past conversations"},
		},
	}
}

// Call implements tool.Tool. Without a query the current user message is used.
func (t *Tool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		query = tc.UserText()
	}

	hits, err := tc.SearchMemory(query, t.fetchLimit())
	if err != nil {
		return nil, tool.NewToolError(Name, err.Error(), tool.CodeExecution)
	}
	hits = t.filter(hits, tc.SessionID())

	memories := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		memories = append(memories, map[string]any{
			"author":     h.Record.Author,
			"content":    h.Record.Content,
			"session_id": h.Record.SessionID,
			"created_at": h.Record.CreatedAt,
		})
	}

	return map[string]any{"query": query, "memories": memories}, nil
}

// ProcessInstruction implements tool.InstructionProvider.
func (t *Tool) ProcessInstruction(runCtx *core.RunContext) (string, error) {
	query := runCtx.UserContent.Text()
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	hits, err := runCtx.SearchMemory(query, t.fetchLimit())
	if err != nil {
		return "", fmt.Errorf("preload memory: %w", err)
	}
	hits = t.filter(hits, runCtx.SessionID())
	if len(hits) == 0 {
		return "", nil
	}

	runCtx.LogDebug("tool.preload_memory.recalled", "records", len(hits))

	return Format(hits), nil
}

// Format renders recalled records as an instruction block.
func Format(hits []core.SearchResult) string {
	var b strings.Builder
	b.WriteString("The following lines come from earlier conversations with this user and may help with the current request:\n")
	b.WriteString("<PAST_CONVERSATIONS>\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "[%s] %s: %s\n", h.Record.CreatedAt.Format("2006-01-02 15:04"), h.Record.Author, h.Record.Content)
	}
	b.WriteString("</PAST_CONVERSATIONS>")
	return b.String()
}

// fetchLimit over-fetches when records of the running session are dropped
// afterwards.
func (t *Tool) fetchLimit() int {
	if t.opts.IncludeCurrentSession {
		return t.opts.Limit
	}
	return t.opts.Limit * 3
}

func (t *Tool) filter(hits []core.SearchResult, sessionID string) []core.SearchResult {
	out := hits[:0:0]
	for _, h := range hits {
		if !t.opts.IncludeCurrentSession && h.Record.SessionID == sessionID {
			continue
		}
		out = append(out, h)
		if len(out) == t.opts.Limit {
			break
		}
	}
	return out
}
