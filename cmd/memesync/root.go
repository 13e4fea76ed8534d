package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var apiKeyFlag string

	ctx := newCommandContext(&serverFlag, &apiKeyFlag)

	rootCmd := &cobra.Command{
		Use:           "memesync",
		Short:         "Create and track MemeSync video generation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "API base URL (falls back to $MEMESYNC_SERVER, then http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "API key for protected servers (falls back to $MEMESYNC_API_KEY)")

	rootCmd.AddCommand(newCreateCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newReviewCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newCleanupCommand(ctx))

	return rootCmd
}
