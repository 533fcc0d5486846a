package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/monitor"
)

var errLoop = errors.New("probe timed out")

// probeStub is the collaborator handed to flakyRunner.
type probeStub struct {
	name string
}

// call records the arguments of one Run invocation.
type call struct {
	probe *probeStub
	lock  *arbitration.Lock
}

// flakyRunner fails the first failures calls, optionally by panicking, and
// then blocks until its context is cancelled.
type flakyRunner struct {
	mu       sync.Mutex
	failures int
	panics   bool
	calls    []call
}

// Run implements Runner.
func (r *flakyRunner) Run(ctx context.Context, probe *probeStub, lock *arbitration.Lock) error {
	r.mu.Lock()
	r.calls = append(r.calls, call{probe: probe, lock: lock})
	n := len(r.calls)
	r.mu.Unlock()

	if n <= r.failures {
		if r.panics {
			panic("detector model crashed")
		}

		return errLoop
	}

	<-ctx.Done()

	return nil
}

// Calls returns a copy of the recorded invocations.
func (r *flakyRunner) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]call(nil), r.calls...)
}

// TestSupervisor_RestartsWithSameCollaborators asserts invocations equal failures + 1 with identical arguments.
func TestSupervisor_RestartsWithSameCollaborators(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			runner = &flakyRunner{failures: 3}
			probe  = &probeStub{name: "arp-scan"}
			lock   = arbitration.New()
			s      = New[*probeStub]("presence", runner, probe, lock)
		)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		synctest.Wait()

		require.Equal(t, uint64(4), s.Invocations())
		require.Equal(t, uint64(3), s.Restarts())
		require.Equal(t, "presence", s.Name())

		for _, c := range runner.Calls() {
			require.Same(t, probe, c.probe)
			require.Same(t, lock, c.lock)
		}

		cancel()
		require.NoError(t, <-done)
		require.Equal(t, uint64(4), s.Invocations())
	})
}

// TestSupervisor_PanicIsRestart checks that a panicking loop is restarted like a failing one.
func TestSupervisor_PanicIsRestart(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			runner = &flakyRunner{failures: 2, panics: true}
			causes []error
			s      = New[*probeStub]("detection", runner, new(probeStub), arbitration.New(),
				WithRestartHook(func(_ context.Context, _ string, _ uint64, cause error) {
					causes = append(causes, cause)
				}),
			)
		)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		synctest.Wait()
		cancel()
		require.NoError(t, <-done)

		require.Equal(t, uint64(3), s.Invocations())
		require.Len(t, causes, 2)

		for _, cause := range causes {
			require.ErrorContains(t, cause, "detector model crashed")
		}
	})
}

// TestSupervisor_MaxRestarts verifies the hardened limit returns ErrRestartsExhausted.
func TestSupervisor_MaxRestarts(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			runner = &flakyRunner{failures: 100}
			s      = New[*probeStub]("presence", runner, new(probeStub), arbitration.New(), WithMaxRestarts(2))
		)

		err := s.Run(t.Context())
		require.ErrorIs(t, err, ErrRestartsExhausted)
		require.ErrorIs(t, err, errLoop)
		require.Equal(t, uint64(3), s.Invocations())
		require.Equal(t, uint64(2), s.Restarts())
	})
}

// TestSupervisor_UnexpectedReturnRestarts treats a nil return on a live context as a failure.
func TestSupervisor_UnexpectedReturnRestarts(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			runs int
			task = runnerFunc(func(context.Context) error {
				runs++
				return nil
			})
			s = New[*probeStub]("presence", task, new(probeStub), arbitration.New(), WithMaxRestarts(1))
		)

		err := s.Run(t.Context())
		require.ErrorIs(t, err, ErrRestartsExhausted)
		require.ErrorIs(t, err, errUnexpectedReturn)
		require.Equal(t, 2, runs)
	})
}

// TestSupervisor_Backoff verifies exponential delays between restarts.
func TestSupervisor_Backoff(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			runner  = &flakyRunner{failures: 100}
			started []time.Duration
			begin   = time.Now()
			s       = New[*probeStub]("presence", runner, new(probeStub), arbitration.New(),
				WithBackoff(time.Second, 4*time.Second),
				WithStartHook(func(context.Context, string) {
					started = append(started, time.Since(begin))
				}),
			)
		)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		time.Sleep(12 * time.Second)
		synctest.Wait()
		cancel()
		require.NoError(t, <-done)

		want := []time.Duration{0, time.Second, 3 * time.Second, 7 * time.Second, 11 * time.Second}
		require.Equal(t, want, started)
	})
}

// TestSupervisor_RestartsPresenceMonitor supervises a real monitor whose probe keeps failing every other cycle.
func TestSupervisor_RestartsPresenceMonitor(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			probe = new(alternatingProbe)
			lock  = arbitration.New()
			m     = monitor.NewPresenceMonitor(monitor.WithPresenceInterval(time.Second))
			s     = New[monitor.Probe]("presence", m, probe, lock)
		)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)

		go func() {
			done <- s.Run(ctx)
		}()

		// Cycle pattern per run: PRESENT, sleep, failure, immediate restart.
		time.Sleep(3500 * time.Millisecond)
		synctest.Wait()
		cancel()
		require.NoError(t, <-done)

		require.Equal(t, uint64(4), s.Invocations())
		require.Equal(t, uint64(3), s.Restarts())
		require.Equal(t, 7, probe.Calls())
		require.True(t, lock.Held())
		require.Equal(t, sensor.PresencePresent, m.State())
	})
}

// runnerFunc adapts a function to Runner[*probeStub].
type runnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f runnerFunc) Run(ctx context.Context, _ *probeStub, _ *arbitration.Lock) error {
	return f(ctx)
}

// alternatingProbe matches on odd calls and fails on even calls.
type alternatingProbe struct {
	mu    sync.Mutex
	calls int
}

// CheckPresence implements monitor.Probe.
func (p *alternatingProbe) CheckPresence(context.Context) (sensor.PresenceResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.calls%2 == 0 {
		return sensor.PresenceResult{}, errLoop
	}

	return sensor.PresenceResult{Matched: true, Device: &sensor.Device{Name: "phone"}}, nil
}

// Calls returns the number of probe calls.
func (p *alternatingProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.calls
}
