package updater

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/oshokin/home-guard/internal/version"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

var errHashUnavailable = errors.New("hash function unavailable")

const (
	// VersionFilename stores the update description published next to the binaries.
	VersionFilename = "home-guard-version.yaml"

	// DefaultFileMode is used when producing artifacts for distribution.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to calculate update file hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// baseExecutable is the name every artifact starts with.
	baseExecutable = "home-guard"
)

// Description contains metadata about a published release.
type Description struct {
	// VersionNumber is the semantic version of this release.
	VersionNumber string `yaml:"version"`
	// Files maps artifact names to their base64-encoded checksums.
	Files map[string]string `yaml:"files"`
}

// NewDescription produces a Description initialized with defaults.
func NewDescription() *Description {
	return &Description{
		VersionNumber: version.Short(),
		Files:         make(map[string]string),
	}
}

// ArtifactName returns the published file name for a platform,
// e.g. "home-guard-linux-arm64" or "home-guard-windows-amd64.exe".
func ArtifactName(goos, goarch string) string {
	name := fmt.Sprintf("%s-%s-%s", baseExecutable, goos, goarch)
	if goos == "windows" {
		name += ".exe"
	}

	return name
}

// CurrentArtifactName is ArtifactName for the running platform.
func CurrentArtifactName() string {
	return ArtifactName(runtime.GOOS, runtime.GOARCH)
}

// Checksum returns the DefaultChecksumFunction digest of data.
func Checksum(data []byte) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := hasher.Write(data); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	return Checksum(contents)
}

// EncodeChecksum renders a checksum the way the manifest stores it.
func EncodeChecksum(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}
