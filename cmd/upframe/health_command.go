package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon and queue health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.health(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s\n", health.Status)
			fmt.Fprintf(out, "Workflow: %s\n", yesNo(health.WorkflowRunning))
			if health.LastError != "" {
				fmt.Fprintf(out, "Last error: %s\n", health.LastError)
			}
			fmt.Fprintf(out, "Jobs:     %d total (%d pending, %d running, %d completed, %d failed)\n",
				health.Queue.Total, health.Queue.Pending, health.Queue.Running,
				health.Queue.Completed, health.Queue.Failed)
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
