package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mondo989/MemeSync/internal/models"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var keywordsFlag string
	var keywordsFile string
	var approve bool

	cmd := &cobra.Command{
		Use:   "review <job-id>",
		Short: "Inspect or submit the keyword review for a paused job",
		Long: `Without flags, review shows the keywords a paused job is waiting on.
Pass --keywords (comma-separated, one per lyric segment, in order) or
--keywords-file (a JSON array) to replace them, or --approve to resume
with the extracted keywords unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			if keywordsFlag != "" && keywordsFile != "" {
				return fmt.Errorf("--keywords and --keywords-file are mutually exclusive")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			job, err := client.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if keywordsFlag == "" && keywordsFile == "" && !approve {
				if len(job.Keywords) == 0 {
					return fmt.Errorf("job is %s and exposes no keywords to review", job.Status)
				}
				fmt.Fprintln(out, renderKeywordTable(job.Keywords))
				fmt.Fprintf(out, "Submit with: memesync review %s --keywords \"kw1,kw2,...\" (or --approve)\n", id)
				return nil
			}

			var edits []string
			switch {
			case keywordsFlag != "":
				edits = splitKeywords(keywordsFlag)
			case keywordsFile != "":
				edits, err = readKeywordsFile(keywordsFile)
				if err != nil {
					return err
				}
			}

			merged := job.Keywords
			if edits != nil {
				if len(edits) != len(merged) {
					return fmt.Errorf("the job exposes %d keywords but the edit has %d; pass one per segment, in order", len(merged), len(edits))
				}
				for i := range merged {
					merged[i].Keyword = edits[i]
				}
			}

			updated, err := client.ReviewJob(cmd.Context(), id, merged)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Review accepted; job %s is resuming\n", updated.ID)
			fmt.Fprintf(out, "Follow it with: memesync watch %s\n", updated.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&keywordsFlag, "keywords", "k", "", "Comma-separated replacement keywords, one per segment")
	cmd.Flags().StringVar(&keywordsFile, "keywords-file", "", "JSON file with the replacement keywords (array of strings, or of {keyword: ...} objects)")
	cmd.Flags().BoolVar(&approve, "approve", false, "Resume with the extracted keywords unchanged")
	return cmd
}

// readKeywordsFile accepts either a plain JSON string array or the keywords
// array from a job snapshot (objects carrying a "keyword" field), so edits
// can start from a dumped GET /v1/jobs/{id} response.
func readKeywordsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, nil
	}

	var assignments []models.KeywordAssignment
	if err := json.Unmarshal(data, &assignments); err != nil {
		return nil, fmt.Errorf("parse %s: expected a JSON array of strings or keyword objects: %w", path, err)
	}
	out := make([]string, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, a.Keyword)
	}
	return out, nil
}
