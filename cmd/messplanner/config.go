package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newConfigCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := c.load(); err != nil {
				return err
			}

			if used := c.v.ConfigFileUsed(); used != "" {
				fmt.Println(gray("# " + used))
			}

			keys := c.v.AllKeys()
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s = %v\n", cyan(k), c.v.Get(k))
			}
			return nil
		},
	}
}
