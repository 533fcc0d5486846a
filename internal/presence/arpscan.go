package presence

import (
	"context"
	"fmt"
	"regexp"

	"github.com/oshokin/home-guard/internal/domain/sensor"
	"github.com/oshokin/home-guard/internal/logger"
)

// macPattern extracts MAC addresses from arp-scan output.
var macPattern = regexp.MustCompile(`(?i)\b(?:[0-9a-f]{1,2}:){5}[0-9a-f]{1,2}\b`)

// ARPScan sweeps the local network with arp-scan and matches MAC addresses.
type ARPScan struct {
	devices *Devices
	runner  CommandRunner
	args    []string
}

// NewARPScan creates the probe. A nil runner uses ExecRunner.
func NewARPScan(devices *Devices, runner CommandRunner) *ARPScan {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &ARPScan{
		devices: devices,
		runner:  runner,
		args:    []string{"--localnet", "--quiet", "--plain"},
	}
}

// CheckPresence runs one sweep.
func (a *ARPScan) CheckPresence(ctx context.Context) (sensor.PresenceResult, error) {
	output, err := a.runner.Run(ctx, "arp-scan", a.args...)
	if err != nil {
		return sensor.PresenceResult{}, fmt.Errorf("arp-scan: %w", err)
	}

	seen := macPattern.FindAllString(string(output), -1)
	logger.DebugKV(ctx, "Connected devices", "addresses", seen)

	return result(a.devices.Match(seen)), nil
}
