package tuya

import "context"

// Client defines the cloud API operations the exporter depends on.
type Client interface {
	// GetDevice returns a device's metadata and current data points.
	GetDevice(ctx context.Context, deviceID string) (*DeviceInfo, error)

	// GetDeviceSpecification returns the data point type descriptions for a
	// device, including value scaling.
	GetDeviceSpecification(ctx context.Context, deviceID string) (*Specification, error)
}

// DataPoint is one reported status entry for a device. Value is a raw JSON
// scalar: numbers for measurements, strings for enum states.
type DataPoint struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// DeviceInfo is the cloud-side view of a device.
type DeviceInfo struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Category   string      `json:"category"`
	Online     bool        `json:"online"`
	UpdateTime int64       `json:"update_time"`
	Status     []DataPoint `json:"status"`
}

// StatusSpec describes one data point's type. Values holds a nested JSON
// document as a string; for Integer points it carries the scale exponent.
type StatusSpec struct {
	Code   string `json:"code"`
	Type   string `json:"type"`
	Values string `json:"values"`
}

// Specification lists a device's data point descriptions.
type Specification struct {
	Category string       `json:"category"`
	Status   []StatusSpec `json:"status"`
}
