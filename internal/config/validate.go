package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep inside the pipeline.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return fmt.Errorf("config: staging_dir must not be empty")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return fmt.Errorf("config: queue_poll_interval must be positive, got %d", c.Workflow.QueuePollInterval)
	}
	if c.Workflow.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: max_concurrent_jobs must be positive, got %d", c.Workflow.MaxConcurrentJobs)
	}
	if c.Workflow.JobTimeout <= 0 {
		return fmt.Errorf("config: job_timeout must be positive, got %d", c.Workflow.JobTimeout)
	}
	if c.Media.DefaultFrameRate <= 0 {
		return fmt.Errorf("config: default_frame_rate must be positive, got %v", c.Media.DefaultFrameRate)
	}
	if c.Enhancer.MaxConcurrent <= 0 {
		return fmt.Errorf("config: enhancer max_concurrent must be positive, got %d", c.Enhancer.MaxConcurrent)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("config: analysis workers must be positive, got %d", c.Analysis.Workers)
	}
	if c.Analysis.BlockSize <= 1 {
		return fmt.Errorf("config: analysis block_size must be at least 2, got %d", c.Analysis.BlockSize)
	}
	if c.API.MaxUploadMiB <= 0 {
		return fmt.Errorf("config: max_upload_mib must be positive, got %d", c.API.MaxUploadMiB)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
