package presence

import (
	"context"
	"fmt"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

// Ping pings every trusted host and stops at the first one that answers.
type Ping struct {
	devices *Devices
	runner  CommandRunner
}

// NewPing creates the probe. A nil runner uses ExecRunner.
func NewPing(devices *Devices, runner CommandRunner) *Ping {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &Ping{
		devices: devices,
		runner:  runner,
	}
}

// CheckPresence pings the devices in order. An unreachable host is not an
// error; failing to start ping is.
func (p *Ping) CheckPresence(ctx context.Context) (sensor.PresenceResult, error) {
	for _, device := range p.devices.List() {
		logger.DebugKV(ctx, "Sending ping", "device", device.Name)

		_, err := p.runner.Run(ctx, "ping", "-c", "1", "-W", "1", device.Address)
		if err == nil {
			return result(&device), nil
		}

		if !isExitError(err) {
			return sensor.PresenceResult{}, fmt.Errorf("ping %s: %w", device.Name, err)
		}
	}

	return result(nil), nil
}
