package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all jobs on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.ListJobs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}

			rows := make([][]string, 0, len(resp.Jobs))
			for _, job := range resp.Jobs {
				rows = append(rows, []string{
					job.ID.String(),
					string(job.Status),
					fmt.Sprintf("%d%%", job.Progress),
					jobSource(job),
					truncate(job.Message, 40),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Progress", "Source", "Message"},
				rows,
				3,
			))
			fmt.Fprintf(out, "%d job(s)\n", resp.Total)
			return nil
		},
	}
	return cmd
}
