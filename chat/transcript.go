package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role tags a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role
	Content string
	At      time.Time
}

// Transcript is the ordered chat history of one client session. It is safe
// for concurrent use.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// Add appends a message.
func (t *Transcript) Add(role Role, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, Message{Role: role, Content: content, At: time.Now()})
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Message(nil), t.messages...)
}

// Len reports the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Markdown renders the history as a markdown document.
func (t *Transcript) Markdown() string {
	var b strings.Builder
	for i, m := range t.Messages() {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case RoleUser:
			fmt.Fprintf(&b, "**You:** %s", m.Content)
		default:
			fmt.Fprintf(&b, "**Planner:**\n\n%s", m.Content)
		}
	}
	return b.String()
}
