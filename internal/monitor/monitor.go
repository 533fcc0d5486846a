package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/domain/sensor"
)

// Observer receives every state assignment of the monitors it is attached to.
type Observer interface {
	OnStateChange(ctx context.Context, change sensor.Change) error
}

// Monitor is a sensing loop driven by a collaborator of type C.
type Monitor[C any] interface {
	Kind() sensor.Kind
	State() sensor.State
	Attach(o Observer)
	Detach(o Observer)
	Run(ctx context.Context, collaborator C, lock *arbitration.Lock) error
}

// Probe reports whether a trusted device is on the network.
type Probe interface {
	CheckPresence(ctx context.Context) (sensor.PresenceResult, error)
}

// Detector looks for people in front of the camera.
type Detector interface {
	CheckIfDetected(ctx context.Context) (sensor.DetectionResult, error)
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// ImageStore archives images. It never deletes.
type ImageStore interface {
	Save(ctx context.Context, image []byte, ts time.Time) (string, error)
}

// errMissingCollaborator is returned when Run is called without a probe,
// detector or lock.
var errMissingCollaborator = errors.New("collaborator and lock must be provided")

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
