package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/home-guard/internal/domain/sensor"
)

var (
	errProbeDown  = errors.New("router unreachable")
	errCameraDown = errors.New("camera busy")
	errDiskFull   = errors.New("disk full")
	errObserver   = errors.New("observer failed")
)

// presenceStep is one scripted answer of scriptedProbe.
type presenceStep struct {
	matched bool
	err     error
}

// scriptedProbe replays steps and repeats the last one when they run out.
type scriptedProbe struct {
	mu    sync.Mutex
	steps []presenceStep
	calls int
}

// CheckPresence returns the next scripted step.
func (p *scriptedProbe) CheckPresence(context.Context) (sensor.PresenceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.steps[min(p.calls, len(p.steps)-1)]
	p.calls++

	if step.err != nil {
		return sensor.PresenceResult{}, step.err
	}

	result := sensor.PresenceResult{Matched: step.matched}
	if step.matched {
		result.Device = &sensor.Device{Name: "phone", Address: "AA:BB:CC:DD:EE:FF"}
	}

	return result, nil
}

// Calls returns how many times the probe was asked.
func (p *scriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}

// detectionStep is one scripted answer of scriptedDetector.
type detectionStep struct {
	matched bool
	err     error
}

// scriptedDetector replays steps and repeats the last one when they run out.
type scriptedDetector struct {
	mu         sync.Mutex
	steps      []detectionStep
	calls      int
	frames     int
	captureErr error
}

// CheckIfDetected returns the next scripted step with a fake JPEG payload.
func (d *scriptedDetector) CheckIfDetected(context.Context) (sensor.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	step := d.steps[min(d.calls, len(d.steps)-1)]
	d.calls++

	if step.err != nil {
		return sensor.DetectionResult{}, step.err
	}

	result := sensor.DetectionResult{
		Image:   []byte("frame"),
		Matched: step.matched,
	}
	if step.matched {
		result.Regions = []sensor.Region{{MinX: 10, MinY: 20, MaxX: 30, MaxY: 40}}
	}

	return result, nil
}

// CaptureFrame returns a baseline frame.
func (d *scriptedDetector) CaptureFrame(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.frames++

	if d.captureErr != nil {
		return nil, d.captureErr
	}

	return []byte("baseline"), nil
}

// Calls returns how many times detection ran.
func (d *scriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.calls
}

// Frames returns how many baseline frames were captured.
func (d *scriptedDetector) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.frames
}

// memoryStore is an ImageStore that keeps images in memory.
type memoryStore struct {
	mu     sync.Mutex
	images map[string][]byte
	err    error
}

// Save stores image under a timestamp key unless err is set.
func (s *memoryStore) Save(_ context.Context, image []byte, ts time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}

	if s.images == nil {
		s.images = make(map[string][]byte)
	}

	path := "/images/" + ts.UTC().Format("20060102T150405.000000000") + ".jpg"
	s.images[path] = image

	return path, nil
}

// Len returns how many images were saved.
func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.images)
}

// recorder is an Observer that remembers every change.
type recorder struct {
	mu      sync.Mutex
	changes []sensor.Change
	err     error
}

// OnStateChange records change.
func (r *recorder) OnStateChange(_ context.Context, change sensor.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.changes = append(r.changes, change)

	return r.err
}

// Changes returns a copy of the recorded changes.
func (r *recorder) Changes() []sensor.Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]sensor.Change(nil), r.changes...)
}

// States returns the recorded states in order.
func (r *recorder) States() []sensor.State {
	changes := r.Changes()

	states := make([]sensor.State, 0, len(changes))
	for _, c := range changes {
		states = append(states, c.State)
	}

	return states
}
