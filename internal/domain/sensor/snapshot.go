package sensor

import (
	"maps"
	"time"
)

// Snapshot is the most recent known state of both sensors.
type Snapshot struct {
	// Presence is the last presence state reported.
	Presence PresenceState
	// Detection is the last detection state reported.
	Detection DetectionState
	// UpdatedAt is when any of the states was last reported.
	UpdatedAt time.Time
	// Alerts counts dispatched intrusion alerts.
	Alerts uint64
	// LastAlertAt is when the last alert was dispatched.
	LastAlertAt time.Time
	// LastImagePath is the archived image of the last positive detection.
	LastImagePath string
	// Restarts counts supervisor restarts per sensor since startup.
	Restarts map[Kind]uint64
}

// Intrusion reports whether the composite alert predicate holds.
func (s *Snapshot) Intrusion() bool {
	return s.Presence == PresenceAbsent && s.Detection == DetectionDetected
}

// Clone returns a copy of the snapshot to avoid leaking internal references.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.Restarts = maps.Clone(s.Restarts)

	return &cloned
}
