package arbitration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLock_AcquireRelease verifies the held flag follows acquire and release calls.
func TestLock_AcquireRelease(t *testing.T) {
	t.Parallel()

	l := New()
	require.False(t, l.Held())
	require.False(t, l.Release())

	require.True(t, l.TryAcquire())
	require.True(t, l.Held())
	require.False(t, l.TryAcquire())

	require.True(t, l.Release())
	require.False(t, l.Held())
}

// TestLock_ConcurrentProbe ensures readers never block while the writer flips the flag.
func TestLock_ConcurrentProbe(t *testing.T) {
	t.Parallel()

	var (
		l  Lock
		wg sync.WaitGroup
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		for range 1000 {
			l.TryAcquire()
			l.Release()
		}
	}()

	go func() {
		defer wg.Done()

		for range 1000 {
			_ = l.Held()
		}
	}()

	wg.Wait()
	require.False(t, l.Held())
}
