package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "domain-reader",
		Short:        "Branch-aware domain data reader",
		Long:         "Serves named-filter reads over the entities store and accepts batch writes for the import pipeline.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a config file (yaml); environment variables override it")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newResolveCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}
