package presence

import (
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/home-guard/internal/domain/sensor"
)

// Devices is a concurrency-safe list of trusted devices.
type Devices struct {
	mu      sync.RWMutex
	devices []sensor.Device
}

// NewDevices creates a list holding a copy of devices.
func NewDevices(devices []sensor.Device) *Devices {
	d := new(Devices)
	d.Set(devices)

	return d
}

// Set replaces the whole list.
func (d *Devices) Set(devices []sensor.Device) {
	cloned := slices.Clone(devices)

	d.mu.Lock()
	d.devices = cloned
	d.mu.Unlock()
}

// List returns a copy of the list.
func (d *Devices) List() []sensor.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.devices)
}

// Match returns the first trusted device whose address is in seen.
// MAC addresses are compared case-insensitively.
func (d *Devices) Match(seen []string) *sensor.Device {
	set := make(map[string]struct{}, len(seen))
	for _, address := range seen {
		set[normalize(address)] = struct{}{}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := range d.devices {
		if _, ok := set[normalize(d.devices[i].Address)]; ok {
			return d.devices[i].Clone()
		}
	}

	return nil
}

func normalize(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// result builds a PresenceResult from an optional match.
func result(device *sensor.Device) sensor.PresenceResult {
	return sensor.PresenceResult{
		Device:  device,
		Matched: device != nil,
	}
}
