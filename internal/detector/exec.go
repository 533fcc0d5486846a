// Package detector runs person detection as external programs.
//
// A capture program prints one JPEG frame on stdout. A detect program reads
// that frame on stdin and prints a JSON verdict:
//
//	{"matched": true, "regions": [[10, 20, 110, 220]], "image": "<base64 JPEG>"}
//
// The image field is optional and lets the model return an annotated frame.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

// DefaultTimeout bounds a single program run.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNoCommand is returned when a program is not configured.
	ErrNoCommand = errors.New("command is not configured")
	// ErrEmptyFrame is returned when the capture program prints nothing.
	ErrEmptyFrame = errors.New("capture produced an empty frame")
	// errBadRegion is returned for a region without four coordinates.
	errBadRegion = errors.New("region must have four coordinates")
)

// Exec is a detector backed by two external programs.
type Exec struct {
	capture []string
	detect  []string
	timeout time.Duration
}

// Option configures Exec.
type Option func(*Exec)

// WithTimeout bounds every program run.
func WithTimeout(d time.Duration) Option {
	return func(e *Exec) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExec creates a detector. Both commands are argv lists, the first
// element being the program.
func NewExec(capture, detect []string, opts ...Option) *Exec {
	e := &Exec{
		capture: capture,
		detect:  detect,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// verdict is the JSON printed by the detect program.
type verdict struct {
	Matched bool    `json:"matched"`
	Regions [][]int `json:"regions"`
	Image   []byte  `json:"image"`
}

// CaptureFrame returns one frame from the capture program.
func (e *Exec) CaptureFrame(ctx context.Context) ([]byte, error) {
	frame, err := e.run(ctx, e.capture, nil)
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}

	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	return frame, nil
}

// CheckIfDetected captures a frame and asks the detect program about it.
// The returned image is the annotated frame when provided, the raw one otherwise.
func (e *Exec) CheckIfDetected(ctx context.Context) (sensor.DetectionResult, error) {
	frame, err := e.CaptureFrame(ctx)
	if err != nil {
		return sensor.DetectionResult{}, err
	}

	output, err := e.run(ctx, e.detect, frame)
	if err != nil {
		return sensor.DetectionResult{}, fmt.Errorf("detect: %w", err)
	}

	var v verdict
	if err = json.Unmarshal(output, &v); err != nil {
		return sensor.DetectionResult{}, fmt.Errorf("decode verdict: %w", err)
	}

	regions := make([]sensor.Region, 0, len(v.Regions))

	for i, r := range v.Regions {
		if len(r) != 4 {
			return sensor.DetectionResult{}, fmt.Errorf("region %d: %w", i, errBadRegion)
		}

		regions = append(regions, sensor.Region{MinX: r[0], MinY: r[1], MaxX: r[2], MaxY: r[3]})
	}

	image := frame
	if len(v.Image) > 0 {
		image = v.Image
	}

	logger.DebugKV(ctx, "Detection verdict", "matched", v.Matched, "regions", len(regions))

	return sensor.DetectionResult{
		Image:   image,
		Matched: v.Matched,
		Regions: regions,
	}, nil
}

func (e *Exec) run(ctx context.Context, argv []string, stdin []byte) ([]byte, error) {
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	//nolint:gosec // The programs come from the operator's configuration.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run %s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}

	return stdout.Bytes(), nil
}
