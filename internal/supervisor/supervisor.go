package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/logger"
)

// Runner is the part of a monitor the supervisor drives.
type Runner[C any] interface {
	Run(ctx context.Context, collaborator C, lock *arbitration.Lock) error
}

// RestartHook is called after a failure, right before the loop is started again.
// restarts is the number of restarts so far, including this one.
type RestartHook func(ctx context.Context, name string, restarts uint64, cause error)

// Supervisor keeps a single monitor loop alive.
type Supervisor struct {
	// name identifies the monitor in logs and hooks.
	name string
	// task starts the monitor with its bound collaborators.
	task func(ctx context.Context) error
	// backoff is the delay before the first restart of a failure streak. Zero restarts immediately.
	backoff time.Duration
	// maxBackoff caps the exponential delay.
	maxBackoff time.Duration
	// maxRestarts stops supervising after that many restarts. Zero means unlimited.
	maxRestarts uint64
	// onRestart is called before each restart.
	onRestart RestartHook
	// onStart is called every time the loop is (re)started.
	onStart func(ctx context.Context, name string)

	// invocations counts calls to the monitor's Run.
	invocations atomic.Uint64
	// restarts counts restarts after failures.
	restarts atomic.Uint64
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// ErrRestartsExhausted is returned by Run once the restart limit is reached.
var ErrRestartsExhausted = errors.New("restart limit reached")

// errUnexpectedReturn marks a loop that returned without error while its
// context was still alive.
var errUnexpectedReturn = errors.New("loop returned unexpectedly")

// WithBackoff enables exponential backoff starting at base and capped at maxDelay.
// The delay doubles with every consecutive failure and resets once the loop
// survives longer than maxDelay.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(s *Supervisor) {
		if base <= 0 {
			return
		}

		s.backoff = base
		s.maxBackoff = max(base, maxDelay)
	}
}

// WithMaxRestarts limits the number of restarts. Zero keeps the limit off.
func WithMaxRestarts(n uint64) Option {
	return func(s *Supervisor) {
		s.maxRestarts = n
	}
}

// WithRestartHook registers a hook called before every restart.
func WithRestartHook(hook RestartHook) Option {
	return func(s *Supervisor) {
		s.onRestart = hook
	}
}

// WithStartHook registers a hook called every time the loop starts.
func WithStartHook(hook func(ctx context.Context, name string)) Option {
	return func(s *Supervisor) {
		s.onStart = hook
	}
}

// New binds runner to its collaborator and lock. Every restart calls
// runner.Run with exactly these references.
func New[C any](name string, runner Runner[C], collaborator C, lock *arbitration.Lock, opts ...Option) *Supervisor {
	s := &Supervisor{
		name: name,
		task: func(ctx context.Context) error {
			return runner.Run(ctx, collaborator, lock)
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the supervised monitor name.
func (s *Supervisor) Name() string {
	return s.name
}

// Invocations returns how many times the monitor loop was started.
func (s *Supervisor) Invocations() uint64 {
	return s.invocations.Load()
}

// Restarts returns how many times the monitor loop was restarted.
func (s *Supervisor) Restarts() uint64 {
	return s.restarts.Load()
}

// Run starts the loop and restarts it until ctx is done.
// It returns nil on cancellation and ErrRestartsExhausted when the limit is hit.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "supervisor")
	ctx = logger.WithKV(ctx, "monitor", s.name)

	var streak int

	for {
		startedAt := time.Now()

		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			logger.Info(ctx, "Supervision stopped")
			return nil
		}

		if err == nil {
			err = errUnexpectedReturn
		}

		if s.backoff > 0 && time.Since(startedAt) > s.maxBackoff {
			streak = 0
		}

		streak++

		logger.ErrorKV(ctx, "Monitor loop died", "error", err, "restarts", s.restarts.Load())

		if s.maxRestarts > 0 && s.restarts.Load() >= s.maxRestarts {
			return fmt.Errorf("%s monitor after %d restarts: %w: %w", s.name, s.restarts.Load(), ErrRestartsExhausted, err)
		}

		if delay := s.delay(streak); delay > 0 {
			logger.InfoKV(ctx, "Waiting before restart", "delay", delay.String())

			timer := time.NewTimer(delay)

			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info(ctx, "Supervision stopped")

				return nil
			case <-timer.C:
			}
		}

		restarts := s.restarts.Add(1)

		if s.onRestart != nil {
			s.onRestart(ctx, s.name, restarts, err)
		}
	}
}

// runOnce runs the loop a single time and turns a panic into an error.
func (s *Supervisor) runOnce(ctx context.Context) error {
	s.invocations.Add(1)

	if s.onStart != nil {
		s.onStart(ctx, s.name)
	}

	var (
		catcher panics.Catcher
		err     error
	)

	catcher.Try(func() {
		err = s.task(ctx)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		return fmt.Errorf("monitor panicked: %w", recovered.AsError())
	}

	return err
}

// delay returns the pause before the restart that follows the streak-th failure.
func (s *Supervisor) delay(streak int) time.Duration {
	if s.backoff <= 0 || streak <= 0 {
		return 0
	}

	delay := s.backoff

	for i := 1; i < streak && delay < s.maxBackoff; i++ {
		delay *= 2
	}

	return min(delay, s.maxBackoff)
}
