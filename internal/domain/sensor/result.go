package sensor

import (
	"slices"
	"time"
)

// Device is a trusted device whose presence on the network disarms the camera.
type Device struct {
	// Name is a human-readable label, e.g. "Oleg's phone".
	Name string
	// Address is a MAC address for scan based probes or an IP/host for ping.
	Address string
}

// Clone returns a copy of the device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cloned := *d

	return &cloned
}

// PresenceResult is produced once per presence poll cycle.
type PresenceResult struct {
	// Device is the trusted device that matched, if any.
	Device *Device
	// Matched reports whether a trusted device was found.
	Matched bool
}

// Region is a bounding box of a detected person in frame coordinates.
type Region struct {
	MinX int
	MinY int
	MaxX int
	MaxY int
}

// DetectionResult is produced once per detection poll cycle.
// It is treated as immutable after creation.
type DetectionResult struct {
	// Image is the annotated frame. It may be nil.
	Image []byte
	// Matched reports whether a person was found.
	Matched bool
	// Regions are the annotated bounding boxes.
	Regions []Region
}

// Clone returns a deep copy of the result.
func (r *DetectionResult) Clone() *DetectionResult {
	if r == nil {
		return nil
	}

	return &DetectionResult{
		Image:   slices.Clone(r.Image),
		Matched: r.Matched,
		Regions: slices.Clone(r.Regions),
	}
}

// Change is pushed to observers on every state assignment of a monitor.
type Change struct {
	// Kind is the sensor that produced the change.
	Kind Kind
	// State is the newly assigned state.
	State State
	// Result is the detection result of the cycle, nil for presence changes
	// and for suppressed detection cycles.
	Result *DetectionResult
	// ImagePath is where the image of Result was archived, if it was.
	ImagePath string
	// At is when the state was assigned.
	At time.Time
}
