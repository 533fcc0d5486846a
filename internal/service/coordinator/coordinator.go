package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/monitor"
	"github.com/oshokin/home-guard/internal/notifier"
	repo "github.com/oshokin/home-guard/internal/repository/snapshot"
)

// IntruderMessage is the text of every intrusion alert.
const IntruderMessage = "There is an intruder!"

// DefaultDispatchTimeout bounds a single alert dispatch.
const DefaultDispatchTimeout = 10 * time.Second

// Policy decides how often an ongoing intrusion is alerted.
type Policy int

const (
	// PolicyEveryTick alerts on every report received while the intrusion holds.
	PolicyEveryTick Policy = iota
	// PolicyRisingEdge alerts once when the intrusion starts.
	PolicyRisingEdge
)

var (
	// ErrUnknownKind is returned for a change from an unsupported sensor.
	ErrUnknownKind = errors.New("unknown sensor kind")
	// ErrUnexpectedState is returned when the state does not belong to the sensor kind.
	ErrUnexpectedState = errors.New("unexpected state for sensor kind")
	// errUnknownPolicy is returned by ParsePolicy.
	errUnknownPolicy = errors.New("unknown alert policy")
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "every_tick":
		return PolicyEveryTick, nil
	case "rising_edge":
		return PolicyRisingEdge, nil
	default:
		return PolicyEveryTick, fmt.Errorf("%w: %q", errUnknownPolicy, s)
	}
}

// Coordinator observes both monitors and dispatches intrusion alerts.
type Coordinator struct {
	dispatcher notifier.Dispatcher
	// repo persists the snapshot after every change, optional.
	repo    repo.Repository
	policy  Policy
	timeout time.Duration

	// mu protects the fields below.
	mu        sync.Mutex
	snapshot  *sensor.Snapshot
	lastImage []byte
	intrusion bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy selects the alert policy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithRepository persists the snapshot after every change.
func WithRepository(r repo.Repository) Option {
	return func(c *Coordinator) {
		c.repo = r
	}
}

// WithDispatchTimeout bounds every dispatch. Non-positive values are ignored.
func WithDispatchTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a coordinator. When a repository is configured, the alert
// history of the previous run is restored; sensor states always start UNKNOWN.
func New(ctx context.Context, dispatcher notifier.Dispatcher, opts ...Option) (*Coordinator, error) {
	if dispatcher == nil {
		dispatcher = notifier.Nop{}
	}

	c := &Coordinator{
		dispatcher: dispatcher,
		timeout:    DefaultDispatchTimeout,
		snapshot:   &sensor.Snapshot{Restarts: make(map[sensor.Kind]uint64)},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.repo == nil {
		return c, nil
	}

	previous, err := c.repo.Load(ctx)
	switch {
	case err == nil:
		c.snapshot.Alerts = previous.Alerts
		c.snapshot.LastAlertAt = previous.LastAlertAt
		c.snapshot.LastImagePath = previous.LastImagePath
	case errors.Is(err, repo.ErrNotFound):
		// Keep default snapshot.
	default:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return c, nil
}

// OnStateChange records the reported state and dispatches an alert when
// the home is empty and a person is detected.
func (c *Coordinator) OnStateChange(ctx context.Context, change sensor.Change) error {
	if err := validate(change); err != nil {
		return err
	}

	c.mu.Lock()

	switch state := change.State.(type) {
	case sensor.PresenceState:
		c.snapshot.Presence = state
	case sensor.DetectionState:
		c.snapshot.Detection = state

		if change.Result != nil {
			c.lastImage = slices.Clone(change.Result.Image)
		}
	}

	if change.ImagePath != "" {
		c.snapshot.LastImagePath = change.ImagePath
	}

	c.snapshot.UpdatedAt = change.At
	if c.snapshot.UpdatedAt.IsZero() {
		c.snapshot.UpdatedAt = time.Now()
	}

	intrusion := c.snapshot.Intrusion()
	fire := intrusion && (c.policy == PolicyEveryTick || !c.intrusion)
	c.intrusion = intrusion

	if fire {
		c.snapshot.Alerts++
		c.snapshot.LastAlertAt = c.snapshot.UpdatedAt
	}

	image := c.lastImage

	c.persist(ctx)
	c.mu.Unlock()

	if fire {
		logger.WarnKV(ctx, "Intrusion detected", "source", change.Kind, "image_bytes", len(image))
		c.dispatch(ctx, IntruderMessage, image)
	}

	return nil
}

// RecordRestart counts a supervisor restart of the monitor of the given kind.
func (c *Coordinator) RecordRestart(ctx context.Context, kind sensor.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot.Restarts[kind]++
	c.persist(ctx)
}

// Snapshot returns a copy of the current snapshot.
func (c *Coordinator) Snapshot() *sensor.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snapshot.Clone()
}

// persist saves the snapshot. The caller must hold mu.
func (c *Coordinator) persist(ctx context.Context) {
	if c.repo == nil {
		return
	}

	if err := c.repo.Save(ctx, c.snapshot); err != nil {
		logger.ErrorKV(ctx, "Failed to persist snapshot", "error", err)
	}
}

// dispatch sends the alert. Failures are logged and never reach the monitor.
func (c *Coordinator) dispatch(ctx context.Context, message string, image []byte) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.dispatcher.NotifyAll(ctx, message, image); err != nil {
		logger.ErrorKV(ctx, "Failed to dispatch alert", "error", err)
	}
}

func validate(change sensor.Change) error {
	switch change.Kind {
	case sensor.KindPresence:
		if _, ok := change.State.(sensor.PresenceState); !ok {
			return fmt.Errorf("%w: %v from %s", ErrUnexpectedState, change.State, change.Kind)
		}
	case sensor.KindDetection:
		if _, ok := change.State.(sensor.DetectionState); !ok {
			return fmt.Errorf("%w: %v from %s", ErrUnexpectedState, change.State, change.Kind)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, change.Kind)
	}

	return nil
}

var _ monitor.Observer = (*Coordinator)(nil)
