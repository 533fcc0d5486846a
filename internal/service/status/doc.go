// Package status implements the `home-guard status` command: it asks a
// running service for its snapshot, or reads the state file when the status
// endpoint is not configured, and renders it for a terminal.
package status
