package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/messplanner/internal/bootstrap"
	"github.com/hupe1980/messplanner/server"
)

func newServeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET / and POST /plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			defer func() {
				if err := stack.Close(); err != nil {
					logger.Warn("close stores", "error", err)
				}
			}()

			srv := server.New(stack.App, func(o *server.Options) {
				o.Addr = cfg.Server.Addr
				o.EnableCORS = cfg.Server.CORS
				o.AllowOrigins = cfg.Server.AllowOrigins
				o.Debug = cfg.Server.Debug
				o.Logger = logger
			})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, green("▶ mess planner listening on "+cfg.Server.Addr))
			fmt.Fprintln(out, gray(fmt.Sprintf("  model=%s/%s mode=%s sessions=%s memory=%s",
				stack.Model.Info().Provider, stack.Model.Info().Name, stack.Mode,
				cfg.Session.Backend, cfg.Memory.Backend)))

			err = srv.ListenAndServe(cmd.Context())
			fmt.Fprintln(out, yellow("🛑 Shutting down."))
			return err
		},
	}

	fs := cmd.Flags()
	fs.String("addr", ":8080", "listen address")
	fs.Duration("plan-timeout", 0, "upper bound for one planner run (0 = none)")
	fs.Bool("debug", false, "gin debug mode")
	bind(c.v, "server.addr", fs.Lookup("addr"))
	bind(c.v, "server.plan_timeout", fs.Lookup("plan-timeout"))
	bind(c.v, "server.debug", fs.Lookup("debug"))
	addPlannerFlags(fs)

	return cmd
}
