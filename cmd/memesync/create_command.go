package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mondo989/MemeSync/internal/models"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var sourceURL string
	var trimStart float64
	var trimEnd float64
	var script string
	var voiceStyle string
	var detailed bool
	var follow bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a video generation job",
		Long: `Create a video generation job from a source URL (--url) or from a
script to synthesize (--script). Exactly one of the two must be given;
the server rejects anything else.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			req := models.CreateJobRequest{Detailed: detailed}
			if sourceURL != "" {
				req.SourceURL = &sourceURL
			}
			if script != "" {
				req.ScriptText = &script
			}
			if voiceStyle != "" {
				req.VoiceStyle = &voiceStyle
			}
			// Send whichever trim bounds were given and let the server
			// validate the pairing.
			if cmd.Flags().Changed("start") {
				req.TrimStart = &trimStart
			}
			if cmd.Flags().Changed("end") {
				req.TrimEnd = &trimEnd
			}

			job, err := client.CreateJob(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created job %s\n", job.ID)
			if !follow {
				fmt.Fprintf(out, "Follow it with: memesync watch %s\n", job.ID)
				return nil
			}
			return followJob(cmd, client, job.ID)
		},
	}

	cmd.Flags().StringVarP(&sourceURL, "url", "u", "", "Source video or audio URL")
	cmd.Flags().Float64Var(&trimStart, "start", 0, "Trim start in seconds (requires --end)")
	cmd.Flags().Float64Var(&trimEnd, "end", 0, "Trim end in seconds (requires --start)")
	cmd.Flags().StringVar(&script, "script", "", "Script text to synthesize instead of a source URL")
	cmd.Flags().StringVar(&voiceStyle, "voice-style", "", "Delivery hint for synthesized speech (e.g. \"slow and deadpan\")")
	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "Pause for keyword review before matching assets")
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "Follow progress until the job finishes")
	return cmd
}
