// Package arbitration holds the advisory flag that gates camera use on presence.
//
// The flag is not a mutex protecting data: the presence monitor is its only
// writer and the detection monitor only ever probes it, it never waits.
package arbitration

import "sync/atomic"

// Lock is a binary advisory flag. The zero value is a released lock.
// One Lock is constructed per process and passed to both monitors.
type Lock struct {
	held atomic.Bool
}

// New returns a released lock.
func New() *Lock {
	return new(Lock)
}

// TryAcquire marks the lock as held. It reports false without waiting if the
// lock was already held.
func (l *Lock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release marks the lock as free. It reports false if the lock was not held.
func (l *Lock) Release() bool {
	return l.held.CompareAndSwap(true, false)
}

// Held reports whether the lock is currently held.
func (l *Lock) Held() bool {
	return l.held.Load()
}
