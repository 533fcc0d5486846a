package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/home-guard/internal/service/status"
)

func newStatusCommand() *cobra.Command {
	var (
		address   string
		stateFile string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the state of the running service.",
		Long: `Asks the status endpoint of the running service for its snapshot.
If the endpoint is not configured or does not answer, the state file is read instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext()
			defer stop()

			return status.Run(ctx, &status.Options{
				ConfigPath: configPath,
				Address:    address,
				StateFile:  stateFile,
				Output:     cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "status endpoint address, overrides status.listen_address")
	cmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "state file to read when the endpoint is unavailable")

	return cmd
}
