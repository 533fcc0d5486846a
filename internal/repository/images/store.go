// Package images archives detected frames on a filesystem.
//
// Files are named after the UTC capture time; frames sharing a time get a
// numeric suffix. The store only ever creates files.
package images

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Extension of every archived frame.
const Extension = ".jpg"

// nameLayout keeps names sortable and free of characters Windows rejects.
const nameLayout = "20060102T150405.000000000Z"

var (
	// ErrStoreFull is returned when the archive reached its configured bound.
	ErrStoreFull = errors.New("image store is full")
	// ErrEmptyImage is returned when an empty frame is saved.
	ErrEmptyImage = errors.New("image is empty")
	// ErrNoImages is returned by Latest when nothing was archived yet.
	ErrNoImages = errors.New("no images archived")
)

// Store is an append-only image archive on top of an afero filesystem.
type Store struct {
	fs        afero.Fs
	dir       string
	maxImages int

	// mu serializes the count check with the file creation.
	mu    sync.Mutex
	count int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxImages bounds the archive. Zero or negative means unbounded.
func WithMaxImages(n int) Option {
	return func(s *Store) {
		s.maxImages = n
	}
}

// New creates the archive directory if needed and counts the frames already in it.
func New(fs afero.Fs, dir string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:  fs,
		dir: filepath.Clean(dir),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := fs.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create images directory: %w", err)
	}

	names, err := s.names()
	if err != nil {
		return nil, err
	}

	s.count = len(names)

	return s, nil
}

// NewOS is New on the operating system filesystem.
func NewOS(dir string, opts ...Option) (*Store, error) {
	return New(afero.NewOsFs(), dir, opts...)
}

// Save writes the image under a name derived from ts and returns its path.
// An existing file is never overwritten; a colliding name gets a numeric suffix.
func (s *Store) Save(_ context.Context, image []byte, ts time.Time) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxImages > 0 && s.count >= s.maxImages {
		return "", fmt.Errorf("%w: %d images", ErrStoreFull, s.count)
	}

	base := ts.UTC().Format(nameLayout)

	for attempt := 0; ; attempt++ {
		name := base + Extension
		if attempt > 0 {
			name = fmt.Sprintf("%s-%d%s", base, attempt, Extension)
		}

		path := filepath.Join(s.dir, name)

		f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}

		if err != nil {
			return "", fmt.Errorf("create image file: %w", err)
		}

		_, err = f.Write(image)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}

		if err != nil {
			// A truncated frame must not be mistaken for an archived one.
			_ = s.fs.Remove(path)

			return "", fmt.Errorf("write image file: %w", err)
		}

		s.count++

		return path, nil
	}
}

// Count returns the number of archived frames.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// Latest returns the path of the most recent frame.
func (s *Store) Latest() (string, error) {
	names, err := s.names()
	if err != nil {
		return "", err
	}

	if len(names) == 0 {
		return "", ErrNoImages
	}

	return filepath.Join(s.dir, names[len(names)-1]), nil
}

// names lists archived frames in chronological order.
func (s *Store) names() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list images directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}

		names = append(names, e.Name())
	}

	slices.SortFunc(names, compareNames)

	return names, nil
}

// compareNames orders frames by capture time, then by collision suffix, so
// "<ts>.jpg" comes before "<ts>-1.jpg".
func compareNames(a, b string) int {
	baseA, seqA := splitName(a)
	baseB, seqB := splitName(b)

	if c := strings.Compare(baseA, baseB); c != 0 {
		return c
	}

	return cmp.Compare(seqA, seqB)
}

// splitName returns the timestamp part of name and its collision suffix.
func splitName(name string) (string, int) {
	name = strings.TrimSuffix(name, Extension)

	base, suffix, found := strings.Cut(name, "-")
	if !found {
		return base, 0
	}

	seq, err := strconv.Atoi(suffix)
	if err != nil {
		return name, 0
	}

	return base, seq
}
