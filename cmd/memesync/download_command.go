package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the finished video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = fmt.Sprintf("memesync_%s.mp4", id)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			n, err := client.Download(cmd.Context(), id, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(path)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", path, formatBytes(n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default memesync_<job-id>.mp4)")
	return cmd
}
