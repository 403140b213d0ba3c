package sensor

import (
	"context"

	"codeberg.org/mutker/tuya-exporter/internal/logger"
	"codeberg.org/mutker/tuya-exporter/internal/tuya"
)

// Registry is the fixed, ordered set of monitored devices. Immutable after
// construction.
type Registry struct {
	devices []Device
}

func NewRegistry(devices []Device) *Registry {
	copied := make([]Device, len(devices))
	copy(copied, devices)

	return &Registry{devices: copied}
}

// List returns the devices in configured order
func (r *Registry) List() []Device {
	devices := make([]Device, len(r.devices))
	copy(devices, r.devices)

	return devices
}

func (r *Registry) Len() int {
	return len(r.devices)
}

// ResolveNames fills in missing display names from the cloud device metadata,
// falling back to the device id when the lookup fails. Called once at startup,
// before the registry is built.
func ResolveNames(ctx context.Context, client tuya.Client, devices []Device) []Device {
	resolved := make([]Device, len(devices))
	for i, d := range devices {
		resolved[i] = d
		if d.Name != "" {
			continue
		}

		info, err := client.GetDevice(ctx, d.ID)
		if err != nil || info.Name == "" {
			logger.Warn().Str("device_id", d.ID).Err(err).Msg("Could not resolve device name, using id")
			resolved[i].Name = d.ID
			continue
		}

		logger.Debug().Str("device_id", d.ID).Str("name", info.Name).Msg("Resolved device name")
		resolved[i].Name = info.Name
	}

	return resolved
}
