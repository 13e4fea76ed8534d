package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mondo989/MemeSync/internal/models"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job's progress until it finishes",
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
			return followJob(cmd, client, id)
		},
	}
	return cmd
}

// followJob prints one line per observed change until the job goes terminal.
// The event feed re-sends unchanged snapshots on its heartbeat, so identical
// consecutive snapshots are skipped.
func followJob(cmd *cobra.Command, client *apiClient, id uuid.UUID) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	var last models.Job
	var seen bool
	err := client.StreamJob(cmd.Context(), id, func(job models.Job) bool {
		if seen && job.Status == last.Status && job.Progress == last.Progress && job.Message == last.Message {
			return true
		}
		last, seen = job, true
		fmt.Fprintln(out, renderProgressLine(job, colorize))
		if job.Status == models.JobStatusAwaitingReview {
			fmt.Fprintf(out, "Edit and resume with: memesync review %s --keywords \"kw1,kw2,...\" (or --approve)\n", id)
		}
		return true
	})
	if err != nil {
		return err
	}
	if !seen {
		return fmt.Errorf("job %s produced no snapshots", id)
	}
	switch last.Status {
	case models.JobStatusCompleted:
		if last.Result != nil {
			fmt.Fprintf(out, "Done: %s, %s. Download it with: memesync download %s\n",
				formatSeconds(last.Result.DurationSec), formatBytes(last.Result.ByteSize), id)
		}
		return nil
	case models.JobStatusError:
		if last.Error != nil {
			return fmt.Errorf("job failed: %s", last.Error.Error())
		}
		return fmt.Errorf("job %s failed", id)
	default:
		// Stream closed without a terminal snapshot (server shutdown).
		return fmt.Errorf("stream ended while job %s was still %s", id, last.Status)
	}
}
