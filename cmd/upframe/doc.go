// Command upframe is the client CLI for the upframe daemon: it submits
// videos, inspects and lists jobs, streams progress, downloads finished
// artifacts, and manages configuration.
package main
