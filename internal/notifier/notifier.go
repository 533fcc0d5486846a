package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/oshokin/home-guard/internal/logger"
)

// Dispatcher sends a message, optionally with an image, to every configured receiver.
type Dispatcher interface {
	NotifyAll(ctx context.Context, message string, image []byte) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, message string, image []byte) error

// NotifyAll calls f.
func (f DispatcherFunc) NotifyAll(ctx context.Context, message string, image []byte) error {
	return f(ctx, message, image)
}

// Multi fans notifications out to several dispatchers concurrently.
type Multi []Dispatcher

// NotifyAll delivers to every dispatcher even if some of them fail.
// The returned error joins all failures.
func (m Multi) NotifyAll(ctx context.Context, message string, image []byte) error {
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0].NotifyAll(ctx, message, image)
	}

	p := pool.New().WithErrors().WithContext(ctx)

	for i, d := range m {
		p.Go(func(ctx context.Context) error {
			if err := d.NotifyAll(ctx, message, image); err != nil {
				return fmt.Errorf("dispatcher %d: %w", i, err)
			}

			return nil
		})
	}

	return p.Wait()
}

// Nop discards every notification.
type Nop struct{}

// NotifyAll does nothing.
func (Nop) NotifyAll(context.Context, string, []byte) error { return nil }

// Log writes every notification to the service log.
type Log struct{}

// NotifyAll logs the message and the image size.
func (Log) NotifyAll(ctx context.Context, message string, image []byte) error {
	logger.InfoKV(ctx, "Notification", "message", message, "image_bytes", len(image))

	return nil
}

// errNoReceivers is returned when a transport has nobody to notify.
var errNoReceivers = errors.New("no receivers configured")
