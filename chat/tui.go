package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Asker answers one prompt. *Client implements it.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

const (
	title       = "My Meal Planner Agent"
	subtitle    = "₹400/week se luxury tak — Weight loss, Diabetes, Muscle gain, Mess life"
	placeholder = "Bhai plan bana do..."
	thinking    = "Soch raha hoon bhai..."
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type replyMsg struct {
	text string
	err  error
}

// Model is the bubbletea model of the chat UI.
type Model struct {
	ctx        context.Context
	asker      Asker
	transcript *Transcript

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	waiting bool
	ready   bool
	width   int
	err     error
}

// NewModel creates the chat UI. Replies are appended to transcript.
func NewModel(ctx context.Context, asker Asker, transcript *Transcript) Model {
	ta := textarea.New()
	ta.Placeholder = placeholder
	ta.Focus()
	ta.CharLimit = 2000
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if transcript == nil {
		transcript = &Transcript{}
	}

	return Model{
		ctx:        ctx,
		asker:      asker,
		transcript: transcript,
		viewport:   viewport.New(80, 20),
		textarea:   ta,
		spinner:    sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = max(msg.Height-9, 3)
		m.textarea.SetWidth(msg.Width - 4)

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(m.viewport.Width-4, 20)),
		)
		if err == nil {
			m.renderer = renderer
		}
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			prompt := strings.TrimSpace(m.textarea.Value())
			if m.waiting || prompt == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.transcript.Add(RoleUser, prompt)
			m.waiting = true
			m.err = nil
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(prompt))
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.transcript.Add(RoleAssistant, msg.text)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(taCmd, vpCmd)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var status string
	switch {
	case m.waiting:
		status = m.spinner.View() + " " + thinking
	case m.err != nil:
		status = dimStyle.Render("error: " + m.err.Error())
	default:
		status = dimStyle.Render("Enter to send · Esc to quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title),
		dimStyle.Render(subtitle),
		m.viewport.View(),
		status,
		inputStyle.Render(m.textarea.View()),
	)
}

// Transcript returns the history shown by the model.
func (m Model) Transcript() *Transcript { return m.transcript }

func (m Model) ask(prompt string) tea.Cmd {
	return func() tea.Msg {
		text, err := m.asker.Ask(m.ctx, prompt)
		return replyMsg{text: text, err: err}
	}
}

func (m *Model) refresh() {
	var b strings.Builder
	for _, msg := range m.transcript.Messages() {
		switch msg.Role {
		case RoleUser:
			b.WriteString(userStyle.Render("> " + msg.Content))
			b.WriteString("\n")
		default:
			b.WriteString(m.render(msg.Content))
			b.WriteString("\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *Model) render(markdown string) string {
	if m.renderer == nil {
		return markdown
	}
	out, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
