package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shopbot",
		Short: "Telegram shop bot backed by the Moltin commerce API",
		Long: "shopbot runs a Telegram bot that lets users browse a Moltin catalog, fill a cart " +
			"and leave an email to check out. Configuration comes from the environment, " +
			"CONFIG_FILE or, in production, GCP Secret Manager.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newTokenCmd(),
		newCatalogCmd(),
	)

	return rootCmd
}
