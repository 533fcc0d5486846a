package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/home-guard/internal/service/updater"
)

func newUpdateCommand() *cobra.Command {
	var (
		updateFolder string
		force        bool
		restart      bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download and apply a newer home-guard binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext()
			defer stop()

			result, err := updater.Run(ctx, &updater.Options{
				ConfigPath:   configPath,
				UpdateFolder: updateFolder,
				Force:        force,
				Restart:      restart,
			})
			if err != nil {
				return err
			}

			if !result.Updated {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "home-guard %s is up to date\n", result.LocalVersion)

				return nil
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "home-guard updated: %s -> %s\n",
				result.LocalVersion, result.RemoteVersion)

			return nil
		},
	}

	cmd.Flags().StringVar(&updateFolder, "update-folder", "", "URL of the release folder, overrides update_folder")
	cmd.Flags().BoolVar(&force, "force", false, "apply the published binary even if it is not newer")
	cmd.Flags().BoolVar(&restart, "restart", false, "terminate other running instances after the update")

	return cmd
}
