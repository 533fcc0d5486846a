package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the home-guard service.
type Config struct {
	// LogLevel is the minimum zap level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// LogFile optionally duplicates logs into an append-only file.
	LogFile string `yaml:"log_file"`
	// StateFile is the path to the JSON file with the latest sensor snapshot.
	StateFile string `yaml:"state_file"`
	// UpdateFolder is the URL where release artifacts are hosted.
	UpdateFolder string `yaml:"update_folder"`
	// Presence configures the presence monitor and its probe.
	Presence Presence `yaml:"presence"`
	// Detection configures the detection monitor and its detector.
	Detection Detection `yaml:"detection"`
	// Images configures the archive of detected frames.
	Images Images `yaml:"images"`
	// Notifier configures alert delivery.
	Notifier Notifier `yaml:"notifier"`
	// Alert configures the alert coordinator.
	Alert Alert `yaml:"alert"`
	// Supervisor configures the restart policy of both monitors.
	Supervisor Supervisor `yaml:"supervisor"`
	// Status configures the optional gRPC status endpoint.
	Status Status `yaml:"status"`
}

// Presence configures the presence monitor.
type Presence struct {
	// Interval is the pause between two probes.
	Interval time.Duration `yaml:"interval"`
	// Strategy selects the probe: arp-scan, ping or admin-panel.
	Strategy string `yaml:"strategy"`
	// Devices lists the trusted devices.
	Devices []Device `yaml:"devices"`
	// AdminPanel configures the admin-panel strategy.
	AdminPanel AdminPanel `yaml:"admin_panel"`
}

// Device is a trusted device entry.
type Device struct {
	// Name is a human-readable label.
	Name string `yaml:"name"`
	// Address is a MAC address (arp-scan, admin-panel) or host (ping).
	Address string `yaml:"address"`
}

// AdminPanel describes how to log into the router and list its clients.
type AdminPanel struct {
	// LoginURL is fetched first to obtain session cookies.
	LoginURL string `yaml:"login_url"`
	// FormURL receives the login form.
	FormURL string `yaml:"form_url"`
	// DevicesURL lists the connected devices.
	DevicesURL string `yaml:"devices_url"`
	// Form holds the login form fields.
	Form map[string]string `yaml:"form,omitempty"`
}

// Detection configures the detection monitor.
type Detection struct {
	// IdleInterval follows quiet and suppressed cycles.
	IdleInterval time.Duration `yaml:"idle_interval"`
	// AlertInterval follows positive detections.
	AlertInterval time.Duration `yaml:"alert_interval"`
	// InitialFrame enables the baseline capture at startup.
	InitialFrame bool `yaml:"initial_frame"`
	// CaptureCommand prints a JPEG frame to stdout.
	CaptureCommand []string `yaml:"capture_command"`
	// DetectCommand reads a frame on stdin and prints a JSON verdict.
	DetectCommand []string `yaml:"detect_command"`
	// Timeout bounds a single capture or detection run.
	Timeout time.Duration `yaml:"timeout"`
}

// Images configures the image archive.
type Images struct {
	// Dir is where frames are written. A leading ~ is expanded.
	Dir string `yaml:"dir"`
	// MaxImages bounds the archive. Zero means unbounded.
	MaxImages int `yaml:"max_images"`
}

// Notifier configures alert delivery.
type Notifier struct {
	// Timeout bounds a single dispatch.
	Timeout time.Duration `yaml:"timeout"`
	// Log also writes every notification to the service log.
	Log bool `yaml:"log"`
	// Telegram configures the Telegram bot transport.
	Telegram Telegram `yaml:"telegram"`
	// Upload configures image hosting for transports without attachments.
	Upload Upload `yaml:"upload"`
}

// Telegram configures the Telegram bot transport.
type Telegram struct {
	// BotToken enables the transport when set.
	BotToken string `yaml:"bot_token"`
	// ChatIDs are the receivers.
	ChatIDs []string `yaml:"chat_ids,omitempty"`
	// APIURL overrides the Bot API base URL.
	APIURL string `yaml:"api_url"`
}

// Upload configures the file hosting used to share images as links.
type Upload struct {
	// URL of the upload endpoint. Empty disables uploading.
	URL string `yaml:"url"`
	// Key is sent as the basic auth user name.
	Key string `yaml:"key"`
}

// Alert configures the coordinator.
type Alert struct {
	// Policy is every_tick (alert on every qualifying report) or rising_edge.
	Policy string `yaml:"policy"`
}

// Supervisor configures monitor restarts.
type Supervisor struct {
	// Backoff is the first restart delay of a failure streak. Zero restarts immediately.
	Backoff time.Duration `yaml:"backoff"`
	// MaxBackoff caps the exponential delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// MaxRestarts stops the service after that many restarts of one monitor. Zero is unlimited.
	MaxRestarts uint64 `yaml:"max_restarts"`
}

// Status configures the gRPC status endpoint.
type Status struct {
	// ListenAddress enables the endpoint when set, e.g. "127.0.0.1:50051".
	ListenAddress string `yaml:"listen_address"`
	// Timeout is used by the status client.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "home-guard.yaml"

	// DefaultStateFilename is the default filename for the sensor snapshot.
	DefaultStateFilename = "home-guard-state.json"

	// DefaultImagesDir is where frames are archived by default.
	DefaultImagesDir = "~/.home-guard/images"

	// DefaultMaxImages bounds the archive by default.
	DefaultMaxImages = 10000

	// DefaultTimeout is the default duration for network operations and commands.
	DefaultTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// StrategyARPScan finds trusted MAC addresses with arp-scan.
	StrategyARPScan = "arp-scan"
	// StrategyPing pings every trusted host.
	StrategyPing = "ping"
	// StrategyAdminPanel scrapes the router admin panel.
	StrategyAdminPanel = "admin-panel"

	// PolicyEveryTick alerts on every qualifying report.
	PolicyEveryTick = "every_tick"
	// PolicyRisingEdge alerts only when the intrusion condition starts.
	PolicyRisingEdge = "rising_edge"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNoDevices is returned when no trusted device is configured.
	errNoDevices = errors.New("at least one trusted device must be provided")
	// errDeviceAddressRequired is returned for a device without address.
	errDeviceAddressRequired = errors.New("device address must be provided")
	// errUnknownStrategy is returned for an unsupported presence strategy.
	errUnknownStrategy = errors.New("unknown presence strategy")
	// errAdminPanelURLs is returned when the admin-panel strategy lacks its URLs.
	errAdminPanelURLs = errors.New("admin panel login_url, form_url and devices_url must be provided")
	// errDetectCommandRequired is returned when no detector command is configured.
	errDetectCommandRequired = errors.New("detection detect_command must be provided")
	// errCaptureCommandRequired is returned when no capture command is configured.
	errCaptureCommandRequired = errors.New("detection capture_command must be provided")
	// errTelegramChats is returned when a bot token has no receivers.
	errTelegramChats = errors.New("telegram chat_ids must be provided with bot_token")
	// errUnknownPolicy is returned for an unsupported alert policy.
	errUnknownPolicy = errors.New("unknown alert policy")
	// errInvalidLogLevel is returned for an unsupported log level.
	errInvalidLogLevel = errors.New("invalid log level")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds bot tokens and router passwords.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults.
//
//nolint:cyclop // One linear pass over every section reads better than many helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if !isLogLevel(cfg.LogLevel) {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, cfg.LogLevel)
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if err := validatePresence(&cfg.Presence); err != nil {
		return err
	}

	if err := validateDetection(&cfg.Detection); err != nil {
		return err
	}

	if cfg.Images.Dir == "" {
		cfg.Images.Dir = DefaultImagesDir
	}

	if cfg.Images.MaxImages < 0 {
		cfg.Images.MaxImages = 0
	}

	if cfg.Notifier.Timeout <= 0 {
		cfg.Notifier.Timeout = DefaultTimeout
	}

	if cfg.Notifier.Telegram.BotToken != "" && len(cfg.Notifier.Telegram.ChatIDs) == 0 {
		return errTelegramChats
	}

	if cfg.Notifier.Upload.URL != "" {
		if _, err := url.ParseRequestURI(cfg.Notifier.Upload.URL); err != nil {
			return fmt.Errorf("invalid upload URL: %w", err)
		}
	}

	switch cfg.Alert.Policy {
	case "":
		cfg.Alert.Policy = PolicyEveryTick
	case PolicyEveryTick, PolicyRisingEdge:
	default:
		return fmt.Errorf("%w: %q", errUnknownPolicy, cfg.Alert.Policy)
	}

	if cfg.Supervisor.MaxBackoff < cfg.Supervisor.Backoff {
		cfg.Supervisor.MaxBackoff = cfg.Supervisor.Backoff
	}

	if cfg.Status.Timeout <= 0 {
		cfg.Status.Timeout = DefaultTimeout
	}

	if cfg.Status.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.Status.ListenAddress); err != nil {
			return fmt.Errorf("invalid status listen address: %w", err)
		}
	}

	if cfg.UpdateFolder == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.UpdateFolder); err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	return nil
}

// validatePresence checks the presence section and fills its defaults.
func validatePresence(p *Presence) error {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}

	if p.Strategy == "" {
		p.Strategy = StrategyARPScan
	}

	if len(p.Devices) == 0 {
		return errNoDevices
	}

	for i, d := range p.Devices {
		if strings.TrimSpace(d.Address) == "" {
			return fmt.Errorf("device %d (%s): %w", i, d.Name, errDeviceAddressRequired)
		}
	}

	switch p.Strategy {
	case StrategyARPScan, StrategyPing:
		return nil
	case StrategyAdminPanel:
		a := p.AdminPanel
		if a.LoginURL == "" || a.FormURL == "" || a.DevicesURL == "" {
			return errAdminPanelURLs
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownStrategy, p.Strategy)
	}
}

// validateDetection checks the detection section and fills its defaults.
func validateDetection(d *Detection) error {
	if d.IdleInterval <= 0 {
		d.IdleInterval = 5 * time.Second
	}

	if d.AlertInterval <= 0 {
		d.AlertInterval = time.Second
	}

	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}

	if len(d.CaptureCommand) == 0 {
		return errCaptureCommandRequired
	}

	if len(d.DetectCommand) == 0 {
		return errDetectCommandRequired
	}

	return nil
}

// isLogLevel reports whether s names a zap level accepted by the service.
func isLogLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
