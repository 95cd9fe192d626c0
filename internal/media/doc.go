// Package media handles on-disk frame storage and image geometry for the
// enhancement pipeline. Subpackages wrap the external ffmpeg and ffprobe
// binaries.
package media
