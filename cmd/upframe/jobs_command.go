package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"upframe/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List submitted jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.jobs(cmd.Context(), statuses)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}
			fmt.Fprintln(out, renderJobsTable(jobs))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, running, completed, failed)")
	return cmd
}

func renderJobsTable(jobs []api.JobView) string {
	rows := make([]tableRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, tableRow{
			cells: []string{
				shortID(job.ID),
				job.SourceRef,
				strings.ToUpper(job.Status),
				stageLabel(job.Stage),
				formatPercent(job.ProgressPercent),
				formatAge(job.CreatedAt),
			},
			color: statusColor(job.Status),
		})
	}
	return renderTable(
		[]string{"ID", "Source", "Status", "Stage", "Progress", "Age"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}
