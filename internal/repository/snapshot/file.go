package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/home-guard/internal/config"
	"github.com/oshokin/home-guard/internal/domain/sensor"
)

// Repository defines persistence operations for the sensor snapshot.
type Repository interface {
	Load(ctx context.Context) (*sensor.Snapshot, error)
	Save(ctx context.Context, snapshot *sensor.Snapshot) error
}

// FileRepository persists the snapshot to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("snapshot not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the snapshot from disk.
func (r *FileRepository) Load(_ context.Context) (*sensor.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var st structpb.Struct
	if err = protojson.Unmarshal(contents, &st); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return FromStruct(&st)
}

// Save writes the snapshot to disk. The file is replaced atomically so
// concurrent readers such as the status command never see a partial write.
func (r *FileRepository) Save(_ context.Context, snapshot *sensor.Snapshot) error {
	st, err := ToStruct(snapshot)
	if err != nil {
		return err
	}

	data, err := protojson.MarshalOptions{Multiline: true}.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dir := filepath.Dir(r.path); dir != "." {
		if err = os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
