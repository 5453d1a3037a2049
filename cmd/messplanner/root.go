package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/messplanner/config"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// cli carries the viper instance shared by all subcommands.
type cli struct {
	v          *viper.Viper
	configFile string
}

func (c *cli) load() (config.Config, error) {
	return config.Load(c.v, c.configFile)
}

func newRootCommand() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:   "messplanner",
		Short: "Desi mess meal planner",
		Long: fmt.Sprintf(`%s

Plans a weekly mess menu for a shared kitchen from free-form preferences,
checks it against budget and house rules and estimates grocery cost.

%s
  messplanner serve                         # HTTP API on :8080
  messplanner serve --provider mock         # offline, canned plans
  messplanner chat                          # terminal chat against the API
  messplanner plan "4 log, 400/day, no paneer"

%s
  Every key can be set in messplanner.yaml or as MESS_<SECTION>_<KEY>,
  for example MESS_MODEL_PROVIDER=anthropic.`,
			bold("messplanner"),
			bold("EXAMPLES:"),
			bold("CONFIG:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "config file (default ./messplanner.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	bind(c.v, "log.level", flags.Lookup("log-level"))
	bind(c.v, "log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newServeCommand(c),
		newPlanCommand(c),
		newChatCommand(c),
		newConfigCommand(c),
	)

	return root
}
