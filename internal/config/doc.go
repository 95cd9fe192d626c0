// Package config loads, validates, and defaults the TOML configuration that
// drives the daemon, the pipeline, and the CLI.
//
// Load resolves the config path (explicit flag, then the user config dir,
// then a project-local upframe.toml), expands ~ in every path field, and
// rejects values that would surface as confusing runtime failures later.
package config
