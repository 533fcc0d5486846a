package monitor

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/home-guard/internal/arbitration"
	"github.com/oshokin/home-guard/internal/domain/sensor"
)

const (
	testIdleInterval  = 5 * time.Second
	testAlertInterval = 1 * time.Second
)

// startDetection runs m in the background and returns a stop function that
// cancels it and hands back the Run error.
func startDetection(t *testing.T, m *DetectionMonitor, detector Detector, lock *arbitration.Lock) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- m.Run(ctx, detector, lock)
	}()

	return func() error {
		cancel()
		return <-done
	}
}

// TestDetectionMonitor_SuppressedWhileLockHeld verifies the detector is never touched while the lock is held.
func TestDetectionMonitor_SuppressedWhileLockHeld(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			detector = &scriptedDetector{steps: []detectionStep{{matched: true}}}
			lock     = arbitration.New()
			seen     = new(recorder)
			m        = NewDetectionMonitor(
				WithIntervals(testIdleInterval, testAlertInterval),
				WithInitialFrame(nil),
			)
		)

		require.True(t, lock.TryAcquire())
		m.Attach(seen)

		stop := startDetection(t, m, detector, lock)

		for range 4 {
			synctest.Wait()
			require.Equal(t, sensor.DetectionSuppressed, m.State())
			time.Sleep(testIdleInterval)
		}

		require.NoError(t, stop())

		require.Zero(t, detector.Calls())
		require.Zero(t, detector.Frames())

		for _, change := range seen.Changes() {
			require.Equal(t, sensor.DetectionSuppressed, change.State)
			require.Nil(t, change.Result)
		}
	})
}

// TestDetectionMonitor_DetectionArchivesImage covers the positive path and the alert interval.
func TestDetectionMonitor_DetectionArchivesImage(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			detector = &scriptedDetector{steps: []detectionStep{{matched: true}}}
			store    = new(memoryStore)
			seen     = new(recorder)
			m        = NewDetectionMonitor(
				WithIntervals(testIdleInterval, testAlertInterval),
				WithImageStore(store),
			)
		)

		m.Attach(seen)

		stop := startDetection(t, m, detector, arbitration.New())

		synctest.Wait()
		require.Equal(t, sensor.DetectionDetected, m.State())

		// Positive detections re-check after the short alert interval.
		time.Sleep(testAlertInterval)
		synctest.Wait()
		require.Equal(t, 2, detector.Calls())

		require.NoError(t, stop())

		changes := seen.Changes()
		require.Len(t, changes, 2)
		require.NotNil(t, changes[0].Result)
		require.True(t, changes[0].Result.Matched)
		require.NotEmpty(t, changes[0].ImagePath)
		require.Equal(t, 2, store.Len())
	})
}

// TestDetectionMonitor_QuietUsesIdleInterval verifies NOT_DETECTED cycles wait for the idle interval.
func TestDetectionMonitor_QuietUsesIdleInterval(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			detector = &scriptedDetector{steps: []detectionStep{{matched: false}}}
			store    = new(memoryStore)
			m        = NewDetectionMonitor(
				WithIntervals(testIdleInterval, testAlertInterval),
				WithImageStore(store),
			)
		)

		stop := startDetection(t, m, detector, arbitration.New())

		synctest.Wait()
		require.Equal(t, sensor.DetectionNotDetected, m.State())

		time.Sleep(testAlertInterval)
		synctest.Wait()
		require.Equal(t, 1, detector.Calls())

		time.Sleep(testIdleInterval - testAlertInterval)
		synctest.Wait()
		require.Equal(t, 2, detector.Calls())

		require.NoError(t, stop())
		require.Zero(t, store.Len())
	})
}

// TestDetectionMonitor_ArchiveFailureIsNotFatal ensures a failing store does not abort detection.
func TestDetectionMonitor_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			detector = &scriptedDetector{steps: []detectionStep{{matched: true}, {err: errCameraDown}}}
			seen     = new(recorder)
			m        = NewDetectionMonitor(WithImageStore(&memoryStore{err: errDiskFull}))
		)

		m.Attach(seen)

		err := m.Run(t.Context(), detector, arbitration.New())
		require.ErrorIs(t, err, errCameraDown)

		changes := seen.Changes()
		require.Len(t, changes, 1)
		require.Equal(t, sensor.DetectionDetected, changes[0].State)
		require.Empty(t, changes[0].ImagePath)
		require.Equal(t, sensor.DetectionDetected, m.State())
	})
}

// TestDetectionMonitor_LockFlipsMidway verifies the monitor resumes detection once the lock is released.
func TestDetectionMonitor_LockFlipsMidway(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			detector = &scriptedDetector{steps: []detectionStep{{matched: false}}}
			lock     = arbitration.New()
			m        = NewDetectionMonitor(WithIntervals(testIdleInterval, testAlertInterval))
		)

		lock.TryAcquire()

		stop := startDetection(t, m, detector, lock)

		synctest.Wait()
		require.Equal(t, sensor.DetectionSuppressed, m.State())

		lock.Release()
		time.Sleep(testIdleInterval)
		synctest.Wait()

		require.Equal(t, sensor.DetectionNotDetected, m.State())
		require.Equal(t, 1, detector.Calls())
		require.NoError(t, stop())
	})
}

// TestDetectionMonitor_InitialFrameOnce verifies the baseline frame is captured on the first run only.
func TestDetectionMonitor_InitialFrameOnce(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			mu       sync.Mutex
			received [][]byte
			paths    []string
		)

		handler := func(_ context.Context, image []byte, path string) {
			mu.Lock()
			defer mu.Unlock()

			received = append(received, image)
			paths = append(paths, path)
		}

		var (
			detector = &scriptedDetector{steps: []detectionStep{{err: errCameraDown}}}
			store    = new(memoryStore)
			m        = NewDetectionMonitor(WithImageStore(store), WithInitialFrame(handler))
		)

		require.ErrorIs(t, m.Run(t.Context(), detector, arbitration.New()), errCameraDown)
		require.ErrorIs(t, m.Run(t.Context(), detector, arbitration.New()), errCameraDown)

		require.Equal(t, 1, detector.Frames())
		require.Equal(t, [][]byte{[]byte("baseline")}, received)
		require.Len(t, paths, 1)
		require.NotEmpty(t, paths[0])
		require.Equal(t, 1, store.Len())
	})
}

// TestDetectionMonitor_InitialFrameFailureIsNotFatal checks that a failing capture does not stop the loop.
func TestDetectionMonitor_InitialFrameFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			called   bool
			detector = &scriptedDetector{
				steps:      []detectionStep{{matched: false}, {err: errCameraDown}},
				captureErr: errCameraDown,
			}
			m = NewDetectionMonitor(WithInitialFrame(func(context.Context, []byte, string) { called = true }))
		)

		require.ErrorIs(t, m.Run(t.Context(), detector, arbitration.New()), errCameraDown)
		require.False(t, called)
		require.Equal(t, 2, detector.Calls())
	})
}

// TestDetectionMonitor_StateRoundtrip ensures State reports each assigned value.
func TestDetectionMonitor_StateRoundtrip(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		m := NewDetectionMonitor()
		require.Equal(t, sensor.KindDetection, m.Kind())
		require.Equal(t, sensor.DetectionUnknown, m.State())

		states := []sensor.DetectionState{
			sensor.DetectionDetected,
			sensor.DetectionNotDetected,
			sensor.DetectionSuppressed,
			sensor.DetectionDetected,
		}

		for _, state := range states {
			require.NoError(t, m.set(t.Context(), state, sensor.Change{}))
			require.Equal(t, state, m.State())
		}
	})
}

// TestDetectionMonitor_RerunWithdrawsDetection verifies a rerun publishes UNKNOWN
// before its first cycle when the previous run ended on DETECTED.
func TestDetectionMonitor_RerunWithdrawsDetection(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			detector = &scriptedDetector{steps: []detectionStep{{matched: true}, {err: errCameraDown}}}
			m        = NewDetectionMonitor()
			seen     = new(recorder)
		)

		m.Attach(seen)

		require.ErrorIs(t, m.Run(t.Context(), detector, arbitration.New()), errCameraDown)
		require.ErrorIs(t, m.Run(t.Context(), detector, arbitration.New()), errCameraDown)

		require.Equal(t, []sensor.State{sensor.DetectionDetected, sensor.DetectionUnknown}, seen.States())
		require.Equal(t, sensor.DetectionUnknown, m.State())
	})
}
