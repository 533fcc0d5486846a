package packager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/service/updater"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Binaries are the built artifacts, named like updater.ArtifactName.
	Binaries []string
	// Version overrides the release version; defaults to the running one.
	Version string
	// OutputDir is where the manifest is written; defaults to the current directory.
	OutputDir string
	// UpdateFolder is only used to print where the files must be uploaded.
	UpdateFolder string
}

var (
	// errNoBinaries is returned when nothing is packaged.
	errNoBinaries = errors.New("at least one binary must be provided")
	// errBadArtifactName is returned for a binary not named after its platform.
	errBadArtifactName = errors.New("binary name must look like home-guard-<os>-<arch>")
)

// Run writes the update manifest for the provided binaries and returns its path.
func Run(ctx context.Context, opts *Options) (string, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "packager")

	if len(opts.Binaries) == 0 {
		return "", errNoBinaries
	}

	desc := updater.NewDescription()
	if opts.Version != "" {
		desc.VersionNumber = opts.Version
	}

	logger.Info(ctx, "Preparing update description")

	for _, binary := range opts.Binaries {
		name := filepath.Base(binary)
		if !strings.HasPrefix(name, "home-guard-") {
			return "", fmt.Errorf("%s: %w", name, errBadArtifactName)
		}

		checksum, err := updater.GetFileChecksum(binary)
		if err != nil {
			return "", fmt.Errorf("checksum %s: %w", binary, err)
		}

		desc.Files[name] = updater.EncodeChecksum(checksum)
	}

	contents, err := yaml.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("marshal update description: %w", err)
	}

	manifest := filepath.Join(opts.OutputDir, updater.VersionFilename)

	logger.InfoKV(ctx, "Saving update description", "path", manifest, "version", desc.VersionNumber)

	if err = os.WriteFile(manifest, contents, updater.DefaultFileMode); err != nil {
		return "", fmt.Errorf("write update description: %w", err)
	}

	printNextSteps(ctx, desc, opts.UpdateFolder)

	return manifest, nil
}

// printNextSteps logs human-readable guidance for next actions with the created files.
func printNextSteps(ctx context.Context, desc *updater.Description, folder string) {
	if folder == "" {
		folder = "configured in update_folder"
	}

	files := make([]string, 0, len(desc.Files)+1)
	for name := range desc.Files {
		files = append(files, name)
	}

	files = append(files, updater.VersionFilename)
	slices.Sort(files)

	var builder strings.Builder

	builder.WriteString("You should upload the following files to the folder ")
	builder.WriteString(folder)
	builder.WriteString(":\n")
	builder.WriteString(strings.Join(files, ",\n"))
	builder.WriteString("\n\nThen run `home-guard update` on every installation, ")
	builder.WriteString("or let the service manager run it before starting home-guard.")

	logger.Info(ctx, builder.String())
}
