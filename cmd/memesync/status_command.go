package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mondo989/MemeSync/internal/models"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job in detail",
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
			job, err := client.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJobDetail(cmd, job)
			return nil
		},
	}
	return cmd
}

func printJobDetail(cmd *cobra.Command, job models.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	status := string(job.Status)
	if colorize {
		status = statusColor(job.Status) + status + ansiReset
	}

	detail := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(out, "  %-12s %s\n", label+":", value)
	}

	fmt.Fprintf(out, "Job %s\n", job.ID)
	detail("Status", status)
	detail("Progress", fmt.Sprintf("%d%% (%s)", job.Progress, job.Message))
	detail("Mode", string(job.Mode))
	if job.SourceURL != nil {
		detail("Source", *job.SourceURL)
	}
	if job.Trim != nil {
		detail("Trim", formatTimeRange(*job.Trim))
	}
	if job.ScriptText != nil {
		detail("Script", truncate(*job.ScriptText, 60))
	}
	if job.VoiceStyle != nil {
		detail("Voice", *job.VoiceStyle)
	}
	detail("Created", job.CreatedAt.Local().Format(time.DateTime))
	if job.CompletedAt != nil {
		detail("Finished", job.CompletedAt.Local().Format(time.DateTime))
	}
	if job.Result != nil {
		detail("Video", fmt.Sprintf("%s, %s", formatSeconds(job.Result.DurationSec), formatBytes(job.Result.ByteSize)))
		fmt.Fprintf(out, "\nDownload it with: memesync download %s\n", job.ID)
	}
	if job.Error != nil {
		detail("Error", job.Error.Error())
	}

	if len(job.Keywords) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderKeywordTable(job.Keywords))
		if job.Status == models.JobStatusAwaitingReview {
			fmt.Fprintf(out, "Edit and resume with: memesync review %s --keywords \"kw1,kw2,...\" (or --approve)\n", job.ID)
		}
	}
}
