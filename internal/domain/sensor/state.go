package sensor

import "fmt"

// Kind identifies which sensing loop produced a state.
type Kind uint8

const (
	// KindPresence is the trusted device (geofence) sensor.
	KindPresence Kind = iota + 1
	// KindDetection is the visual intrusion sensor.
	KindDetection
)

// String returns the lowercase name used in logs, health checks and the status API.
func (k Kind) String() string {
	switch k {
	case KindPresence:
		return "presence"
	case KindDetection:
		return "detection"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// State is a value of one of the closed sensor state enums.
type State interface {
	fmt.Stringer

	// Kind reports which sensor the state belongs to.
	Kind() Kind
}

// PresenceState is the state published by the presence monitor.
type PresenceState uint8

const (
	// PresenceUnknown is the state before the first poll completes.
	PresenceUnknown PresenceState = iota
	// PresencePresent means a trusted device is on the network.
	PresencePresent
	// PresenceAbsent means no trusted device was found.
	PresenceAbsent
)

// Kind implements State.
func (PresenceState) Kind() Kind { return KindPresence }

// String implements fmt.Stringer.
func (s PresenceState) String() string {
	switch s {
	case PresenceUnknown:
		return "UNKNOWN"
	case PresencePresent:
		return "PRESENT"
	case PresenceAbsent:
		return "ABSENT"
	default:
		return fmt.Sprintf("PresenceState(%d)", uint8(s))
	}
}

// DetectionState is the state published by the detection monitor.
type DetectionState uint8

const (
	// DetectionUnknown is the state before the first poll completes.
	DetectionUnknown DetectionState = iota
	// DetectionDetected means a person was found in the last frame.
	DetectionDetected
	// DetectionNotDetected means the last frame contained nobody.
	DetectionNotDetected
	// DetectionSuppressed means the camera was left alone because the
	// arbitration lock is held by the presence monitor.
	DetectionSuppressed
)

// Kind implements State.
func (DetectionState) Kind() Kind { return KindDetection }

// String implements fmt.Stringer.
func (s DetectionState) String() string {
	switch s {
	case DetectionUnknown:
		return "UNKNOWN"
	case DetectionDetected:
		return "DETECTED"
	case DetectionNotDetected:
		return "NOT_DETECTED"
	case DetectionSuppressed:
		return "SUPPRESSED"
	default:
		return fmt.Sprintf("DetectionState(%d)", uint8(s))
	}
}

// ParsePresenceState converts the String form back to a PresenceState.
func ParsePresenceState(s string) (PresenceState, bool) {
	for _, state := range []PresenceState{PresenceUnknown, PresencePresent, PresenceAbsent} {
		if state.String() == s {
			return state, true
		}
	}

	return PresenceUnknown, false
}

// ParseDetectionState converts the String form back to a DetectionState.
func ParseDetectionState(s string) (DetectionState, bool) {
	states := []DetectionState{
		DetectionUnknown,
		DetectionDetected,
		DetectionNotDetected,
		DetectionSuppressed,
	}

	for _, state := range states {
		if state.String() == s {
			return state, true
		}
	}

	return DetectionUnknown, false
}
