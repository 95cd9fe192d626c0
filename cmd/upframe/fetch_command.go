package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "fetch <job-id>",
		Short: "Download the enhanced video for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobID := args[0]

			dest := strings.TrimSpace(outputPath)
			if dest == "" {
				job, err := client.job(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				dest = defaultArtifactName(job.SourceRef, jobID)
			}

			if err := client.saveArtifact(cmd.Context(), jobID, dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved enhanced video to %s\n", dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path for the downloaded video")
	return cmd
}

func defaultArtifactName(sourceRef, jobID string) string {
	base := strings.TrimSpace(sourceRef)
	if base == "" {
		return jobID + ".mp4"
	}
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return base + ".enhanced.mp4"
}
