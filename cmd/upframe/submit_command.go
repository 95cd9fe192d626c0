package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"upframe/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var asRef bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <video-file>",
		Short: "Submit a video for enhancement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			source := strings.TrimSpace(args[0])
			if source == "" {
				return fmt.Errorf("source path is required")
			}

			var job api.JobView
			if asRef {
				abs, err := filepath.Abs(source)
				if err != nil {
					return fmt.Errorf("resolve source path: %w", err)
				}
				job, err = client.submitSourceRef(cmd.Context(), abs)
				if err != nil {
					return err
				}
			} else {
				if _, err := os.Stat(source); err != nil {
					return fmt.Errorf("source file %q is not readable", source)
				}
				job, err = client.submitUpload(cmd.Context(), source)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted %s as job %s\n", job.SourceRef, job.ID)
			if !watch {
				fmt.Fprintf(out, "Track progress with `upframe watch %s`\n", job.ID)
				return nil
			}
			return watchJob(cmd, client, job.ID)
		},
	}

	cmd.Flags().BoolVar(&asRef, "ref", false, "Reference a file already visible to the daemon instead of uploading")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress until the job finishes")
	return cmd
}
