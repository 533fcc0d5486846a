package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

// subject keeps the current state of a monitor and its observers.
type subject[S interface {
	sensor.State
	comparable
}] struct {
	// kind is the sensor this subject publishes for.
	kind sensor.Kind
	// initial is the state the monitor starts from and re-enters on restart.
	initial S
	// state is the last assigned state.
	state S
	// observers are notified in registration order.
	observers []Observer
	// mu protects state and observers.
	mu sync.RWMutex
}

// setup prepares a zero subject for kind, starting at initial.
func (s *subject[S]) setup(kind sensor.Kind, initial S) {
	s.kind = kind
	s.initial = initial
	s.state = initial
}

// Kind returns the sensor kind.
func (s *subject[S]) Kind() sensor.Kind {
	return s.kind
}

// State returns the last assigned state.
//
//nolint:ireturn // The state enums are closed behind the sensor.State interface.
func (s *subject[S]) State() sensor.State {
	return s.current()
}

// Attach registers o. Observers attached twice are notified twice.
func (s *subject[S]) Attach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, o)
}

// Detach removes the first registration of o.
func (s *subject[S]) Detach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.observers, o); i >= 0 {
		s.observers = slices.Delete(s.observers, i, i+1)
	}
}

func (s *subject[S]) current() S {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// reset puts the state back to its initial value. Observers are notified
// only when this changes the state.
func (s *subject[S]) reset(ctx context.Context) error {
	if s.current() == s.initial {
		return nil
	}

	return s.set(ctx, s.initial, sensor.Change{})
}

// set assigns state and notifies every observer, even when the state did not
// change. Observer errors are joined and returned after all were called.
func (s *subject[S]) set(ctx context.Context, state S, change sensor.Change) error {
	s.mu.Lock()
	previous := s.state
	s.state = state
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	logger.DebugKV(ctx, "State assigned", "from", previous.String(), "to", state.String())

	change.Kind = s.kind
	change.State = state

	if change.At.IsZero() {
		change.At = time.Now()
	}

	var errs []error

	for _, o := range observers {
		if err := o.OnStateChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify observers: %w", err)
	}

	return nil
}
