package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/hupe1980/messplanner"
	"github.com/hupe1980/messplanner/internal/bootstrap"
)

func newPlanCommand(c *cli) *cobra.Command {
	var userID, sessionID string

	cmd := &cobra.Command{
		Use:   "plan [message]",
		Short: "Run one planner turn in-process and print the plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindPlannerFlags(c, cmd.Flags())

			cfg, err := c.load()
			if err != nil {
				return err
			}

			logger, err := bootstrap.NewLogger(cfg.Log)
			if err != nil {
				return err
			}

			stack, err := bootstrap.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = stack.Close() }()

			fmt.Println(yellow("… planning"))

			res, err := stack.App.Plan(cmd.Context(), messplanner.PlanRequest{
				Message:   strings.Join(args, " "),
				UserID:    userID,
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}

			out := res.Plan
			if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
				if rendered, err := r.Render(res.Plan); err == nil {
					out = rendered
				}
			}
			fmt.Println(out)

			status := green("✔ done")
			if res.Pending {
				status = yellow("⌛ still cooking")
			}
			fmt.Println(status, gray(fmt.Sprintf("run=%s user=%s session=%s", res.RunID, res.Key.UserID, res.Key.SessionID)))

			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&userID, "user", "u", "", "user id (app.default_user when empty)")
	fs.StringVarP(&sessionID, "session", "s", "", "session id (app.default_session when empty)")
	addPlannerFlags(fs)

	return cmd
}
