package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.job(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:      %s\n", job.ID)
			fmt.Fprintf(out, "Source:   %s\n", job.SourceRef)
			fmt.Fprintf(out, "Status:   %s\n", statusLabel(job.Status))
			fmt.Fprintf(out, "Progress: %s\n", jobSummaryLine(job))
			if job.Status == "running" || job.Status == "completed" {
				fmt.Fprintf(out, "Frames:   %d total, %d enhanced, %d dropped\n",
					job.FramesTotal, job.FramesEnhanced, job.FramesDropped)
			}
			if job.Warning != "" {
				fmt.Fprintf(out, "Warning:  %s\n", job.Warning)
			}
			if job.Status == "completed" {
				fmt.Fprintf(out, "Fetch the result with `upframe fetch %s`\n", job.ID)
			}
			return nil
		},
	}
}
