package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"upframe/internal/progress"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Stream job progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return watchJob(cmd, client, args[0])
		},
	}
}

// watchJob prints progress events as they arrive and reports the terminal
// outcome through the command's error.
func watchJob(cmd *cobra.Command, client *apiClient, jobID string) error {
	out := cmd.OutOrStdout()

	var failed *progress.Event
	err := client.streamEvents(cmd.Context(), jobID, func(evt progress.Event) error {
		if evt.Terminal {
			switch {
			case evt.Error != "":
				failed = &evt
			default:
				fmt.Fprintf(out, "[%s] %s %s\n", statusLabel(string(evt.Status)), formatPercent(evt.Percent), evt.Message)
				if warning := evt.Meta["warning"]; warning != "" {
					fmt.Fprintf(out, "Warning: %s\n", warning)
				}
			}
			return nil
		}
		fmt.Fprintf(out, "[%s] %s %s\n", stageLabel(string(evt.Stage)), formatPercent(evt.Percent), evt.Message)
		return nil
	})
	if err != nil {
		return err
	}
	if failed != nil {
		return fmt.Errorf("job failed (%s): %s", failed.Code, failed.Error)
	}
	return nil
}
