package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/oshokin/home-guard/internal/config"
	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/repository/images"
	"github.com/oshokin/home-guard/internal/repository/snapshot"
	"github.com/oshokin/home-guard/internal/service/common"
)

// Options controls the status command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// Address overrides status.listen_address.
	Address string
	// StateFile overrides state_file.
	StateFile string
	// Output receives the rendered panel.
	Output io.Writer
}

// Run prints the snapshot of the running service. The status endpoint is
// preferred; the state file is the fallback.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "status")

	var (
		address, stateFile, timeout = opts.Address, opts.StateFile, config.DefaultTimeout
		archive                     *Archive
	)

	if settings, err := config.Load(opts.ConfigPath); err == nil {
		if address == "" {
			address = settings.Status.ListenAddress
		}

		if stateFile == "" {
			stateFile = settings.StateFile
		}

		timeout = settings.Status.Timeout
		archive = inspectArchive(ctx, afero.NewOsFs(), settings.Images.Dir)
	} else if address == "" && stateFile == "" {
		return fmt.Errorf("load settings: %w", err)
	}

	snap, source, err := fetch(ctx, address, stateFile, timeout)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(opts.Output, Render(snap, source, time.Now(), archive))

	return err
}

// inspectArchive reads the frame archive if it exists. The status command
// never creates it.
func inspectArchive(ctx context.Context, fs afero.Fs, dir string) *Archive {
	dir, err := config.ExpandHome(dir)
	if err != nil {
		logger.DebugKV(ctx, "Cannot resolve images directory", "error", err)
		return nil
	}

	if exists, _ := afero.DirExists(fs, dir); !exists {
		return nil
	}

	store, err := images.New(fs, dir)
	if err != nil {
		logger.WarnKV(ctx, "Cannot open image archive", "dir", dir, "error", err)
		return nil
	}

	archive := &Archive{Frames: store.Count()}

	archive.Latest, err = store.Latest()
	if err != nil && !errors.Is(err, images.ErrNoImages) {
		logger.WarnKV(ctx, "Cannot find the latest frame", "dir", dir, "error", err)
	}

	return archive
}

func fetch(ctx context.Context, address, stateFile string, timeout time.Duration) (*sensor.Snapshot, string, error) {
	var endpointErr error

	if address != "" {
		snap, err := fromEndpoint(ctx, address, timeout)
		if err == nil {
			return snap, address, nil
		}

		logger.WarnKV(ctx, "Status endpoint unavailable, reading the state file", "address", address, "error", err)
		endpointErr = err
	}

	if stateFile == "" {
		stateFile = config.DefaultStateFilename
	}

	snap, err := snapshot.NewFileRepository(stateFile).Load(ctx)
	if err != nil {
		return nil, "", errors.Join(endpointErr, fmt.Errorf("read state file: %w", err))
	}

	return snap, stateFile, nil
}

func fromEndpoint(ctx context.Context, address string, timeout time.Duration) (*sensor.Snapshot, error) {
	client, err := common.Dial(ctx, address, common.WithCallTimeout(timeout))
	if err != nil {
		return nil, err
	}

	defer func() { _ = client.Close() }()

	return client.GetStatus(ctx)
}
