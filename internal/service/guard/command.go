package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/oshokin/home-guard/internal/config"
	"github.com/oshokin/home-guard/internal/detector"
	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/monitor"
	"github.com/oshokin/home-guard/internal/notifier"
	"github.com/oshokin/home-guard/internal/presence"
	"github.com/oshokin/home-guard/internal/repository/images"
	"github.com/oshokin/home-guard/internal/repository/snapshot"
	"github.com/oshokin/home-guard/internal/service/common"
)

// Options controls the home-guard process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// StateFile overrides state_file.
	StateFile string
	// StatusAddress overrides status.listen_address.
	StatusAddress string
	// AllowMultiple skips the single instance check.
	AllowMultiple bool
}

// errUnknownStrategy is returned for a presence strategy without a probe.
var errUnknownStrategy = errors.New("unknown presence strategy")

// Run loads the configuration, assembles the guard and blocks until ctx is
// canceled or a monitor exhausts its restarts.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "home-guard")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.StateFile != "" {
		settings.StateFile = opts.StateFile
	}

	if opts.StatusAddress != "" {
		settings.Status.ListenAddress = opts.StatusAddress
	}

	closeLog, err := setupLogging(settings)
	if err != nil {
		return err
	}

	defer func() { _ = closeLog() }()

	if !opts.AllowMultiple {
		if err = common.EnsureSingleInstance(nil); err != nil {
			return err
		}
	}

	components, err := NewComponents(settings)
	if err != nil {
		return err
	}

	g, err := New(ctx, settings, components)
	if err != nil {
		return err
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigFilename
	}

	return g.Run(ctx, configPath)
}

// setupLogging applies log_level and log_file. The returned function closes the file.
func setupLogging(settings *config.Config) (func() error, error) {
	level, ok := logger.ParseLogLevel(settings.LogLevel)
	if ok {
		logger.SetLevel(level)
	}

	if settings.LogFile == "" {
		return func() error { return nil }, nil
	}

	l, closeFile, err := logger.NewWithFile(nil, settings.LogFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger.SetLogger(l)

	return closeFile, nil
}

// NewComponents builds the production collaborators described by settings.
func NewComponents(settings *config.Config) (Components, error) {
	devices := presence.NewDevices(Devices(settings.Presence.Devices))

	probe, err := newProbe(settings.Presence, devices)
	if err != nil {
		return Components{}, err
	}

	imagesDir, err := config.ExpandHome(settings.Images.Dir)
	if err != nil {
		return Components{}, err
	}

	store, err := images.NewOS(imagesDir, images.WithMaxImages(settings.Images.MaxImages))
	if err != nil {
		return Components{}, fmt.Errorf("open image store: %w", err)
	}

	camera := detector.NewExec(
		settings.Detection.CaptureCommand,
		settings.Detection.DetectCommand,
		detector.WithTimeout(settings.Detection.Timeout),
	)

	return Components{
		Probe:      probe,
		Detector:   camera,
		Store:      store,
		Dispatcher: newDispatcher(settings.Notifier),
		Repository: snapshot.NewFileRepository(settings.StateFile),
		Devices:    devices,
	}, nil
}

//nolint:ireturn // The probe is selected by configuration.
func newProbe(settings config.Presence, devices *presence.Devices) (monitor.Probe, error) {
	switch settings.Strategy {
	case config.StrategyARPScan:
		return presence.NewARPScan(devices, nil), nil
	case config.StrategyPing:
		return presence.NewPing(devices, nil), nil
	case config.StrategyAdminPanel:
		return presence.NewAdminPanel(devices, presence.AdminPanelConfig{
			LoginURL:   settings.AdminPanel.LoginURL,
			FormURL:    settings.AdminPanel.FormURL,
			DevicesURL: settings.AdminPanel.DevicesURL,
			Form:       settings.AdminPanel.Form,
		}, nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownStrategy, settings.Strategy)
	}
}

// newDispatcher fans out to every configured transport.
func newDispatcher(settings config.Notifier) notifier.Multi {
	var transports notifier.Multi

	if settings.Log {
		transports = append(transports, notifier.Log{})
	}

	if tg := settings.Telegram; tg.BotToken != "" {
		var d notifier.Dispatcher = notifier.NewTelegram(tg.BotToken, tg.ChatIDs, notifier.WithAPIURL(tg.APIURL))

		if settings.Upload.URL != "" {
			d = notifier.NewUpload(d, settings.Upload.URL, settings.Upload.Key, http.DefaultClient)
		}

		transports = append(transports, d)
	}

	return transports
}
