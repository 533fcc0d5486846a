package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

// DefaultPresenceInterval is the pause between two presence polls.
const DefaultPresenceInterval = 5 * time.Second

// PresenceMonitor polls a Probe and publishes PRESENT or ABSENT.
// It holds the arbitration lock exactly while the state is PRESENT.
type PresenceMonitor struct {
	subject[sensor.PresenceState]

	// interval is the fixed pause between cycles.
	interval time.Duration
}

// PresenceOption configures a PresenceMonitor.
type PresenceOption func(*PresenceMonitor)

// WithPresenceInterval overrides DefaultPresenceInterval.
func WithPresenceInterval(interval time.Duration) PresenceOption {
	return func(m *PresenceMonitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// NewPresenceMonitor creates a monitor in the UNKNOWN state.
func NewPresenceMonitor(opts ...PresenceOption) *PresenceMonitor {
	m := &PresenceMonitor{
		interval: DefaultPresenceInterval,
	}

	m.setup(sensor.KindPresence, sensor.PresenceUnknown)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Run polls probe until ctx is done or the probe fails.
// A probe failure is returned as is; restarting is up to the caller.
// Every run starts from UNKNOWN with the lock released.
func (m *PresenceMonitor) Run(ctx context.Context, probe Probe, lock *arbitration.Lock) error {
	if probe == nil || lock == nil {
		return errMissingCollaborator
	}

	ctx = logger.WithName(ctx, sensor.KindPresence.String())

	if lock.Release() {
		logger.Debug(ctx, "Arbitration lock released on restart")
	}

	if err := m.reset(ctx); err != nil {
		return fmt.Errorf("reset presence state: %w", err)
	}

	logger.InfoKV(ctx, "Presence monitor started", "interval", m.interval.String())

	for {
		if err := m.poll(ctx, probe, lock); err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Presence monitor stopped")
				return nil
			}

			return err
		}

		if !sleep(ctx, m.interval) {
			logger.Info(ctx, "Presence monitor stopped")
			return nil
		}
	}
}

// poll runs a single cycle: probe, update the lock, publish.
func (m *PresenceMonitor) poll(ctx context.Context, probe Probe, lock *arbitration.Lock) error {
	result, err := probe.CheckPresence(ctx)
	if err != nil {
		return fmt.Errorf("check presence: %w", err)
	}

	if !result.Matched {
		if lock.Release() {
			logger.Debug(ctx, "Arbitration lock released")
		}

		return m.set(ctx, sensor.PresenceAbsent, sensor.Change{})
	}

	if lock.TryAcquire() {
		logger.DebugKV(ctx, "Arbitration lock acquired", "device", deviceName(result.Device))
	}

	return m.set(ctx, sensor.PresencePresent, sensor.Change{})
}

func deviceName(d *sensor.Device) string {
	if d == nil {
		return "<unknown>"
	}

	return d.Name
}

var _ Monitor[Probe] = (*PresenceMonitor)(nil)
