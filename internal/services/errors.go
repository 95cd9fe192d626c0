package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Stage failure markers. Every job-fatal error produced by the pipeline is
// wrapped with exactly one of these so the workflow manager and the status
// gateway can report a stable failure code.
var (
	ErrSourceUnreadable     = errors.New("source unreadable")
	ErrNoFramesExtracted    = errors.New("no frames extracted")
	ErrNoFramesAnalyzed     = errors.New("no frames analyzed")
	ErrEnhancementFailed    = errors.New("enhancement failed")
	ErrReconstructionFailed = errors.New("reconstruction failed")
	ErrTimeout              = errors.New("timeout")
	ErrCancelled            = errors.New("cancelled")
)

// Failure codes recorded on terminal job rows and terminal progress events.
const (
	CodeSourceUnreadable     = "SourceUnreadable"
	CodeNoFramesExtracted    = "NoFramesExtracted"
	CodeNoFramesAnalyzed     = "NoFramesAnalyzed"
	CodeEnhancementFailed    = "EnhancementFailed"
	CodeReconstructionFailed = "ReconstructionFailed"
	CodeTimeout              = "Timeout"
	CodeCancelled            = "Cancelled"
	CodeInternal             = "Internal"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later failure-code classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = errors.New("stage failure")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureCode maps a stage error to the failure code persisted on the job.
// Bare context cancellation and deadline errors are classified too, so an
// externally enforced wall-clock budget still yields a Timeout code even when
// no stage tagged the error itself.
func FailureCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnreadable):
		return CodeSourceUnreadable
	case errors.Is(err, ErrNoFramesExtracted):
		return CodeNoFramesExtracted
	case errors.Is(err, ErrNoFramesAnalyzed):
		return CodeNoFramesAnalyzed
	case errors.Is(err, ErrEnhancementFailed):
		return CodeEnhancementFailed
	case errors.Is(err, ErrReconstructionFailed):
		return CodeReconstructionFailed
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

// Message extracts the human-readable portion of a wrapped stage error,
// stripping the sentinel prefix so job rows record operator-facing text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrSourceUnreadable,
		ErrNoFramesExtracted,
		ErrNoFramesAnalyzed,
		ErrEnhancementFailed,
		ErrReconstructionFailed,
		ErrTimeout,
		ErrCancelled,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return strings.TrimSpace(msg)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
