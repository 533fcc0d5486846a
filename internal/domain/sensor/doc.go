// Package sensor contains the value types shared by the monitors, the alert
// coordinator and the status surface.
//
// It defines the sensor kinds, the closed state enums for presence and
// detection, the per-cycle results produced by probes and detectors, and the
// Snapshot of the latest known state with Clone helpers to avoid leaking
// internal references.
package sensor
