package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hupe1980/messplanner/chat"
)

func newChatCommand(c *cli) *cobra.Command {
	var userID, sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running planner server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}

			client := chat.NewClient(func(o *chat.Options) {
				o.BaseURL = cfg.Chat.BaseURL
				o.Attempts = cfg.Chat.Attempts
				o.Delay = cfg.Chat.Delay
				o.Backoff = cfg.Chat.Backoff
				o.Timeout = cfg.Chat.Timeout
				o.UserID = userID
				o.SessionID = sessionID
			})

			transcript := &chat.Transcript{}
			p := tea.NewProgram(
				chat.NewModel(cmd.Context(), client, transcript),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("chat ui: %w", err)
			}

			fmt.Println(gray(fmt.Sprintf("%d messages exchanged", transcript.Len())))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.String("base-url", "http://localhost:8080", "planner server URL")
	fs.Int("attempts", 3, "request attempts before giving up")
	fs.StringVarP(&userID, "user", "u", "", "user id sent with each message")
	fs.StringVarP(&sessionID, "session", "s", "", "session id sent with each message")
	bind(c.v, "chat.base_url", fs.Lookup("base-url"))
	bind(c.v, "chat.attempts", fs.Lookup("attempts"))

	return cmd
}
