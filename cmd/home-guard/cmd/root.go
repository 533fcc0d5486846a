package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/home-guard/internal/config"
	"github.com/oshokin/home-guard/internal/service/guard"
	"github.com/oshokin/home-guard/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile overrides the state_file setting.
	stateFile string
	// statusAddress overrides status.listen_address.
	statusAddress string
	// allowMultiple skips the single instance check.
	allowMultiple bool

	// rootCmd runs the presence and detection monitors until interrupted.
	rootCmd = &cobra.Command{
		Use:   "home-guard",
		Short: "Watch the home and raise an alert when an intruder is detected.",
		Long: `Runs the presence monitor and the detection monitor side by side.

While a known device is present on the local network the camera stays idle.
When nobody is home the camera is polled and every positive detection is
dispatched to the configured notifiers. Crashed monitors are restarted by the
supervisor and the alert history is persisted to the state file.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &guard.Options{
				ConfigPath:    configPath,
				StateFile:     stateFile,
				StatusAddress: statusAddress,
				AllowMultiple: allowMultiple,
			}

			return guard.Run(ctx, options)
		},
	}
)

// Execute runs the home-guard CLI and exits with non-zero status on error.
func Execute() {
	rootCmd.AddCommand(
		newStatusCommand(),
		newUpdateCommand(),
		newPackageCommand(),
		version.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// notifyContext is shared by the subcommands.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Config is shared with every subcommand.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "path to persist the alert history")
	rootCmd.Flags().StringVar(&statusAddress, "status-address", "", "address of the status endpoint, e.g. 127.0.0.1:7070")
	rootCmd.Flags().BoolVar(&allowMultiple, "allow-multiple", false, "do not refuse to start next to a running instance")

	_ = rootCmd.Flags().MarkHidden("allow-multiple")
}
