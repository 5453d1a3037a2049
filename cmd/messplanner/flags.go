package main

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bind ties a flag to a config key so an explicitly set flag wins over file
// and environment values.
func bind(v *viper.Viper, key string, f *pflag.Flag) {
	if f == nil {
		panic("unknown flag for " + key)
	}
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// addPlannerFlags registers the flags shared by serve and plan.
func addPlannerFlags(fs *pflag.FlagSet) {
	fs.String("provider", "openai", "model provider (openai, anthropic, mock)")
	fs.String("model", "", "model name (provider default when empty)")
	fs.String("mode", "coordinator", "agent graph (coordinator, sequential)")
	fs.Bool("no-search", false, "disable the web_search tool")
}

// bindPlannerFlags binds the shared flags of the command that actually runs.
// Both serve and plan define them, so binding happens at run time rather
// than at construction where the last command would win.
func bindPlannerFlags(c *cli, fs *pflag.FlagSet) {
	bind(c.v, "model.provider", fs.Lookup("provider"))
	bind(c.v, "model.name", fs.Lookup("model"))
	bind(c.v, "planner.mode", fs.Lookup("mode"))

	if off, err := fs.GetBool("no-search"); err == nil && off {
		c.v.Set("search.enabled", false)
	}
}
