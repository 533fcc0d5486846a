package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/home-guard/internal/service/packager"
)

func newPackageCommand() *cobra.Command {
	var (
		releaseVersion string
		outputDir      string
		updateFolder   string
	)

	cmd := &cobra.Command{
		Use:   "package [binary...]",
		Short: "Write the update manifest for the built binaries.",
		Long: `Computes the checksums of the given binaries and writes the update manifest.
Binaries must be named home-guard-<os>-<arch>, with .exe on Windows.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext()
			defer stop()

			manifest, err := packager.Run(ctx, &packager.Options{
				Binaries:     args,
				Version:      releaseVersion,
				OutputDir:    outputDir,
				UpdateFolder: updateFolder,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), manifest)

			return nil
		},
	}

	cmd.Flags().StringVar(&releaseVersion, "version", "", "release version, defaults to the version of this binary")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for the manifest")
	cmd.Flags().StringVar(&updateFolder, "update-folder", "", "release folder the files will be uploaded to")

	return cmd
}
