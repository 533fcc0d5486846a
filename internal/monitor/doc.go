// Package monitor implements the two sensing loops.
//
// PresenceMonitor polls a presence Probe and owns the writes to the
// arbitration lock. DetectionMonitor polls a Detector unless the lock is held.
// Both publish every state assignment synchronously to their observers in
// registration order and return from Run when a collaborator fails, leaving
// recovery to the supervisor.
package monitor
