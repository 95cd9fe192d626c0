package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"upframe/internal/api"
)

var titleCaser = cases.Title(language.English)

func stageLabel(stage string) string {
	if stage == "" {
		return "-"
	}
	return titleCaser.String(stage)
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// statusLabel colors the status when stdout is a terminal.
func statusLabel(status string) string {
	label := strings.ToUpper(status)
	if !stdoutIsTerminal() {
		return label
	}
	switch status {
	case "completed":
		return text.FgGreen.Sprint(label)
	case "failed":
		return text.FgRed.Sprint(label)
	case "running":
		return text.FgCyan.Sprint(label)
	default:
		return label
	}
}

func formatPercent(percent float64) string {
	return fmt.Sprintf("%.0f%%", percent)
}

func formatAge(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	age := time.Since(ts)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func jobSummaryLine(job api.JobView) string {
	switch job.Status {
	case "completed":
		return fmt.Sprintf("completed: %d of %d frames enhanced", job.FramesEnhanced, job.FramesTotal)
	case "failed":
		return fmt.Sprintf("failed (%s): %s", job.FailureCode, job.Error)
	default:
		message := job.ProgressMessage
		if message == "" {
			message = stageLabel(job.Stage)
		}
		return fmt.Sprintf("%s %s", formatPercent(job.ProgressPercent), message)
	}
}
