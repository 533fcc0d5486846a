package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

const (
	// DefaultIdleInterval is the pause after a quiet or suppressed cycle.
	DefaultIdleInterval = 5 * time.Second
	// DefaultAlertInterval is the pause after a positive detection.
	DefaultAlertInterval = 1 * time.Second
)

// InitialFrameHandler receives the baseline frame captured on first start.
// path is empty when the frame could not be archived.
type InitialFrameHandler func(ctx context.Context, image []byte, path string)

// DetectionMonitor polls a Detector and publishes DETECTED, NOT_DETECTED or
// SUPPRESSED. The detector is never touched while the arbitration lock is held.
type DetectionMonitor struct {
	subject[sensor.DetectionState]

	// idleInterval follows quiet and suppressed cycles.
	idleInterval time.Duration
	// alertInterval follows positive detections.
	alertInterval time.Duration
	// store archives positive frames; nil disables archiving.
	store ImageStore
	// initialFrame enables the one-off baseline capture.
	initialFrame bool
	// onInitialFrame is called with the baseline frame.
	onInitialFrame InitialFrameHandler
	// baseline guards the baseline capture across restarts.
	baseline sync.Once
}

// DetectionOption configures a DetectionMonitor.
type DetectionOption func(*DetectionMonitor)

// WithIntervals overrides the idle and alert intervals. Non-positive values keep defaults.
func WithIntervals(idle, alert time.Duration) DetectionOption {
	return func(m *DetectionMonitor) {
		if idle > 0 {
			m.idleInterval = idle
		}

		if alert > 0 {
			m.alertInterval = alert
		}
	}
}

// WithImageStore sets where positive frames are archived.
func WithImageStore(store ImageStore) DetectionOption {
	return func(m *DetectionMonitor) {
		m.store = store
	}
}

// WithInitialFrame enables the baseline capture on first start.
// handler may be nil.
func WithInitialFrame(handler InitialFrameHandler) DetectionOption {
	return func(m *DetectionMonitor) {
		m.initialFrame = true
		m.onInitialFrame = handler
	}
}

// NewDetectionMonitor creates a monitor in the UNKNOWN state.
func NewDetectionMonitor(opts ...DetectionOption) *DetectionMonitor {
	m := &DetectionMonitor{
		idleInterval:  DefaultIdleInterval,
		alertInterval: DefaultAlertInterval,
	}

	m.setup(sensor.KindDetection, sensor.DetectionUnknown)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Run polls detector until ctx is done or the detector fails.
// Archiving failures are logged and never stop the loop. A rerun withdraws
// the state of the previous run by publishing UNKNOWN.
func (m *DetectionMonitor) Run(ctx context.Context, detector Detector, lock *arbitration.Lock) error {
	if detector == nil || lock == nil {
		return errMissingCollaborator
	}

	ctx = logger.WithName(ctx, sensor.KindDetection.String())

	if err := m.reset(ctx); err != nil {
		return fmt.Errorf("reset detection state: %w", err)
	}

	logger.InfoKV(
		ctx,
		"Detection monitor started",
		"idle_interval", m.idleInterval.String(),
		"alert_interval", m.alertInterval.String(),
	)

	if m.initialFrame {
		m.baseline.Do(func() {
			m.captureInitialFrame(ctx, detector, lock)
		})
	}

	for {
		interval, err := m.poll(ctx, detector, lock)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Detection monitor stopped")
				return nil
			}

			return err
		}

		if !sleep(ctx, interval) {
			logger.Info(ctx, "Detection monitor stopped")
			return nil
		}
	}
}

// poll runs a single cycle and returns the pause before the next one.
func (m *DetectionMonitor) poll(ctx context.Context, detector Detector, lock *arbitration.Lock) (time.Duration, error) {
	if lock.Held() {
		return m.idleInterval, m.set(ctx, sensor.DetectionSuppressed, sensor.Change{})
	}

	result, err := detector.CheckIfDetected(ctx)
	if err != nil {
		return 0, fmt.Errorf("check if detected: %w", err)
	}

	if !result.Matched {
		return m.idleInterval, m.set(ctx, sensor.DetectionNotDetected, sensor.Change{Result: &result})
	}

	now := time.Now()

	logger.InfoKV(ctx, "Person detected", "regions", len(result.Regions))

	change := sensor.Change{
		Result:    &result,
		ImagePath: m.archive(ctx, result.Image, now),
		At:        now,
	}

	return m.alertInterval, m.set(ctx, sensor.DetectionDetected, change)
}

// archive saves image and returns its path, or "" when it was not saved.
func (m *DetectionMonitor) archive(ctx context.Context, image []byte, ts time.Time) string {
	if m.store == nil || len(image) == 0 {
		return ""
	}

	path, err := m.store.Save(ctx, image, ts)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to archive image", "error", err)
		return ""
	}

	return path
}

// captureInitialFrame grabs one baseline frame unless the camera is reserved.
func (m *DetectionMonitor) captureInitialFrame(ctx context.Context, detector Detector, lock *arbitration.Lock) {
	if lock.Held() {
		logger.Info(ctx, "Skipping initial frame, a trusted device is present")
		return
	}

	image, err := detector.CaptureFrame(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to capture initial frame", "error", err)
		return
	}

	path := m.archive(ctx, image, time.Now())

	logger.InfoKV(ctx, "Initial frame captured", "path", path)

	if m.onInitialFrame != nil {
		m.onInitialFrame(ctx, image, path)
	}
}

var _ Monitor[Detector] = (*DetectionMonitor)(nil)
