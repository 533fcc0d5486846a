package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"google.golang.org/grpc/health"

	apistatus "github.com/oshokin/home-guard/internal/api/grpc/status"
	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/config"
	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/monitor"
	"github.com/oshokin/home-guard/internal/notifier"
	"github.com/oshokin/home-guard/internal/presence"
	"github.com/oshokin/home-guard/internal/repository/snapshot"
	"github.com/oshokin/home-guard/internal/service/coordinator"
	"github.com/oshokin/home-guard/internal/supervisor"
)

// Messages sent through the dispatcher besides intrusion alerts.
const (
	StartedMessage      = "home-guard started"
	StoppedMessage      = "home-guard stopped"
	InitialFrameMessage = "home-guard: initial frame"
)

// stopNotifyTimeout bounds the goodbye notification sent after cancellation.
const stopNotifyTimeout = 5 * time.Second

// Components are the collaborators the guard is assembled from.
type Components struct {
	Probe      monitor.Probe
	Detector   monitor.Detector
	Store      monitor.ImageStore
	Dispatcher notifier.Dispatcher
	// Repository is optional.
	Repository snapshot.Repository
	// Devices is the trusted device list behind Probe, optional. When set,
	// configuration reloads replace it.
	Devices *presence.Devices
}

// Guard owns the arbitration lock and every long-lived component.
type Guard struct {
	cfg         *config.Config
	components  Components
	lock        *arbitration.Lock
	coordinator *coordinator.Coordinator
	presence    *monitor.PresenceMonitor
	detection   *monitor.DetectionMonitor
	health      *health.Server
}

// New assembles the guard. Nothing runs until Run is called.
func New(ctx context.Context, cfg *config.Config, c Components) (*Guard, error) {
	if c.Dispatcher == nil {
		c.Dispatcher = notifier.Nop{}
	}

	policy, err := coordinator.ParsePolicy(cfg.Alert.Policy)
	if err != nil {
		return nil, err
	}

	coord, err := coordinator.New(ctx, c.Dispatcher,
		coordinator.WithPolicy(policy),
		coordinator.WithRepository(c.Repository),
		coordinator.WithDispatchTimeout(cfg.Notifier.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise coordinator: %w", err)
	}

	g := &Guard{
		cfg:         cfg,
		components:  c,
		lock:        arbitration.New(),
		coordinator: coord,
		health:      apistatus.NewHealth(sensor.KindPresence.String(), sensor.KindDetection.String()),
	}

	g.presence = monitor.NewPresenceMonitor(monitor.WithPresenceInterval(cfg.Presence.Interval))

	detectionOpts := []monitor.DetectionOption{
		monitor.WithIntervals(cfg.Detection.IdleInterval, cfg.Detection.AlertInterval),
		monitor.WithImageStore(c.Store),
	}

	if cfg.Detection.InitialFrame {
		detectionOpts = append(detectionOpts, monitor.WithInitialFrame(g.onInitialFrame))
	}

	g.detection = monitor.NewDetectionMonitor(detectionOpts...)

	g.presence.Attach(g.coordinator)
	g.detection.Attach(g.coordinator)

	return g, nil
}

// Coordinator exposes the alert coordinator, mainly for the status endpoint.
func (g *Guard) Coordinator() *coordinator.Coordinator {
	return g.coordinator
}

// Run starts both supervised monitors and the optional status endpoint and
// configuration watcher. It returns nil once ctx is done, or the error of
// the first component that gives up; the others are cancelled then.
func (g *Guard) Run(ctx context.Context, configPath string) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	presenceSupervisor := supervisor.New[monitor.Probe](
		sensor.KindPresence.String(), g.presence, g.components.Probe, g.lock,
		g.supervisorOptions(sensor.KindPresence)...,
	)

	detectionSupervisor := supervisor.New[monitor.Detector](
		sensor.KindDetection.String(), g.detection, g.components.Detector, g.lock,
		g.supervisorOptions(sensor.KindDetection)...,
	)

	p.Go(presenceSupervisor.Run)
	p.Go(detectionSupervisor.Run)

	if address := g.cfg.Status.ListenAddress; address != "" {
		p.Go(func(ctx context.Context) error {
			return apistatus.ListenAndServe(ctx, address, g.coordinator, g.health)
		})
	}

	if configPath != "" && g.components.Devices != nil {
		p.Go(func(ctx context.Context) error {
			return config.Watch(ctx, configPath, g.reload)
		})
	}

	logger.InfoKV(ctx, "Home guard started",
		"presence_strategy", g.cfg.Presence.Strategy,
		"devices", len(g.cfg.Presence.Devices),
		"alert_policy", g.cfg.Alert.Policy,
	)

	g.notify(ctx, StartedMessage, nil)

	err := p.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopNotifyTimeout)
	defer cancel()

	g.notify(stopCtx, StoppedMessage, nil)

	if err != nil {
		return err
	}

	logger.Info(ctx, "Home guard stopped")

	return nil
}

// supervisorOptions wires restart policy and hooks for one monitor.
func (g *Guard) supervisorOptions(kind sensor.Kind) []supervisor.Option {
	return []supervisor.Option{
		supervisor.WithBackoff(g.cfg.Supervisor.Backoff, g.cfg.Supervisor.MaxBackoff),
		supervisor.WithMaxRestarts(g.cfg.Supervisor.MaxRestarts),
		supervisor.WithStartHook(func(_ context.Context, name string) {
			apistatus.SetServing(g.health, name, true)
		}),
		supervisor.WithRestartHook(func(ctx context.Context, name string, _ uint64, cause error) {
			apistatus.SetServing(g.health, name, false)
			g.coordinator.RecordRestart(ctx, kind)
			g.notify(ctx, fmt.Sprintf("home-guard: %s monitor restarted: %v", name, cause), nil)
		}),
	}
}

// onInitialFrame forwards the baseline frame to the dispatcher.
func (g *Guard) onInitialFrame(ctx context.Context, image []byte, path string) {
	message := InitialFrameMessage
	if path != "" {
		message += " " + path
	}

	g.notify(ctx, message, image)
}

// reload applies the parts of a new configuration that can change at runtime.
func (g *Guard) reload(cfg *config.Config) {
	g.components.Devices.Set(Devices(cfg.Presence.Devices))
	logger.InfoKV(context.Background(), "Trusted devices replaced", "devices", len(cfg.Presence.Devices))
}

// notify sends a service message; failures are only logged.
func (g *Guard) notify(ctx context.Context, message string, image []byte) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Notifier.Timeout)
	defer cancel()

	if err := g.components.Dispatcher.NotifyAll(ctx, message, image); err != nil {
		logger.WarnKV(ctx, "Failed to send notification", "message", message, "error", err)
	}
}

// Devices converts configured devices to domain devices.
func Devices(devices []config.Device) []sensor.Device {
	result := make([]sensor.Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, sensor.Device{Name: d.Name, Address: d.Address})
	}

	return result
}
