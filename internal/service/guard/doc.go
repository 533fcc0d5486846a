// Package guard runs the home-guard service: both monitors under their
// supervisors, the alert coordinator, and the optional status endpoint and
// configuration watcher.
package guard
