package updater

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/home-guard/internal/config"
	"github.com/oshokin/home-guard/internal/logger"
	"github.com/oshokin/home-guard/internal/service/common"
	"github.com/oshokin/home-guard/internal/version"
)

var (
	errNoUpdateFolder   = errors.New("update_folder is not configured")
	errEmptyDescription = errors.New("update description is empty")
	errNoChecksum       = errors.New("checksum missing for file")
	errBadHTTPStatus    = errors.New("unexpected http status")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to settings YAML file.
	ConfigPath string
	// UpdateFolder overrides the update_folder setting.
	UpdateFolder string
	// TargetPath is the binary to replace; defaults to the running executable.
	TargetPath string
	// Force applies the published binary even if the version is not newer.
	Force bool
	// Restart terminates other running instances after a successful update,
	// so the service manager starts the new binary.
	Restart bool
	// HTTPClient replaces http.DefaultClient.
	HTTPClient *http.Client
	// ListProcesses replaces the system process table.
	ListProcesses common.ProcessLister
}

// Result describes what the updater did.
type Result struct {
	// LocalVersion is the version of the running binary.
	LocalVersion string
	// RemoteVersion is the published version.
	RemoteVersion string
	// Updated reports whether the target binary was replaced.
	Updated bool
}

// runner holds the state of a single update execution.
type runner struct {
	opts        *Options
	folder      *url.URL
	client      *http.Client
	target      string
	artifact    string
	description *Description
}

// Run checks the update folder and replaces the target binary when a newer
// release, or a binary with a different checksum, is published.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "updater")

	u, err := newRunner(opts)
	if err != nil {
		return nil, err
	}

	result, err := u.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Updater run failed", "error", err)
		return nil, err
	}

	logger.InfoKV(ctx, "Updater completed", "updated", result.Updated, "version", result.RemoteVersion)

	return result, nil
}

// newRunner resolves the update folder and the target binary.
func newRunner(opts *Options) (*runner, error) {
	folder := opts.UpdateFolder
	if folder == "" {
		settings, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}

		folder = settings.UpdateFolder
	}

	if folder == "" {
		return nil, errNoUpdateFolder
	}

	folderURL, err := url.Parse(folder)
	if err != nil {
		return nil, fmt.Errorf("parse update folder: %w", err)
	}

	target := opts.TargetPath
	if target == "" {
		if target, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &runner{
		opts:     opts,
		folder:   folderURL,
		client:   client,
		target:   filepath.Clean(target),
		artifact: CurrentArtifactName(),
	}, nil
}

// Run executes the workflow:
// 1) Fetch the remote manifest.
// 2) Compare versions and checksums.
// 3) Download and apply the artifact if needed.
// 4) Stop other instances so the service manager restarts them.
func (u *runner) Run(ctx context.Context) (*Result, error) {
	logger.Info(ctx, "Downloading the update description")

	if err := u.fillUpdateDescription(ctx); err != nil {
		return nil, fmt.Errorf("download update description: %w", err)
	}

	result := &Result{
		LocalVersion:  version.Short(),
		RemoteVersion: u.description.VersionNumber,
	}

	remoteChecksum, err := u.remoteChecksum()
	if err != nil {
		return nil, err
	}

	if !u.updateNeeded(ctx, result, remoteChecksum) {
		logger.Info(ctx, "No update required - version and binary are current")
		return result, nil
	}

	logger.InfoKV(ctx, "Downloading update", "artifact", u.artifact)

	data, err := u.download(ctx, u.artifact)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", u.artifact, err)
	}

	logger.InfoKV(ctx, "Applying update", "target", u.target)

	if err = u.apply(data, remoteChecksum); err != nil {
		return nil, fmt.Errorf("apply update: %w", err)
	}

	result.Updated = true

	if u.opts.Restart {
		logger.Info(ctx, "Terminating running instances")

		if err = common.TerminateOthers(u.opts.ListProcesses, filepath.Base(u.target)); err != nil {
			return nil, fmt.Errorf("terminate running instances: %w", err)
		}
	}

	return result, nil
}

// updateNeeded compares versions first and the binary checksum second.
func (u *runner) updateNeeded(ctx context.Context, result *Result, remoteChecksum []byte) bool {
	if u.opts.Force {
		logger.InfoKV(ctx, "Update forced", "remote", result.RemoteVersion)
		return true
	}

	switch cmp := version.Compare(result.RemoteVersion, result.LocalVersion); {
	case cmp > 0:
		logger.InfoKV(ctx, "Version update required",
			"local", result.LocalVersion, "remote", result.RemoteVersion)

		return true
	case cmp < 0:
		logger.InfoKV(ctx, "Local version is newer than the published one",
			"local", result.LocalVersion, "remote", result.RemoteVersion)

		return false
	}

	localChecksum, err := GetFileChecksum(u.target)
	if err != nil {
		logger.WarnKV(ctx, "Unable to hash the local binary", "error", err)
		return true
	}

	if !bytes.Equal(localChecksum, remoteChecksum) {
		logger.InfoKV(ctx, "File update required", "reason", "checksum_mismatch")
		return true
	}

	return false
}

// fillUpdateDescription downloads and parses the remote update manifest.
func (u *runner) fillUpdateDescription(ctx context.Context) error {
	data, err := u.download(ctx, VersionFilename)
	if err != nil {
		return err
	}

	var desc Description
	if err = yaml.Unmarshal(data, &desc); err != nil {
		return err
	}

	if desc.VersionNumber == "" || len(desc.Files) == 0 {
		return errEmptyDescription
	}

	u.description = &desc

	return nil
}

// remoteChecksum decodes the published checksum of the artifact.
func (u *runner) remoteChecksum() ([]byte, error) {
	encoded, ok := u.description.Files[u.artifact]
	if !ok {
		return nil, fmt.Errorf("checksum for %s: %w", u.artifact, errNoChecksum)
	}

	sum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode checksum for %s: %w", u.artifact, err)
	}

	return sum, nil
}

// download fetches a file from the update folder.
func (u *runner) download(ctx context.Context, fileName string) ([]byte, error) {
	fileURL := *u.folder
	// Use path.Join to normalize duplicate slashes when composing the URL path.
	fileURL.Path = path.Join(fileURL.Path, fileName)
	finalURL := fileURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	return io.ReadAll(response.Body)
}

// apply replaces the target using go-update with checksum validation.
func (u *runner) apply(data, checksum []byte) error {
	options := goupdate.Options{
		TargetPath: u.target,
		TargetMode: DefaultFileMode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return err
	}

	oldFileName := u.target + ".old"
	if _, err := os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}
