package store

import (
	"sync"
	"time"

	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"codeberg.org/mutker/tuya-exporter/internal/logger"
	"codeberg.org/mutker/tuya-exporter/internal/sensor"
)

// ErrorInfo describes the most recent fetch failure for a device
type ErrorInfo struct {
	Code    errors.ErrorCode
	Message string
	At      time.Time
}

// DeviceStatus is the store entry for one device. Latest is nil until the
// first successful fetch.
type DeviceStatus struct {
	Device              sensor.Device
	Latest              *sensor.Reading
	LastError           *ErrorInfo
	ConsecutiveFailures int
}

// Store holds the latest reading per device. The poll scheduler is the sole
// writer; any number of scrape handlers read concurrently through Snapshot.
type Store struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*DeviceStatus
}

// New creates a store with one empty entry per device. The device set is
// fixed for the process lifetime.
func New(devices []sensor.Device) *Store {
	s := &Store{
		order:   make([]string, 0, len(devices)),
		entries: make(map[string]*DeviceStatus, len(devices)),
	}
	for _, d := range devices {
		s.order = append(s.order, d.ID)
		s.entries[d.ID] = &DeviceStatus{Device: d}
	}

	return s
}

// Update records the outcome of one fetch. On success the reading replaces
// the previous one and the failure state resets; on failure the cached
// reading is preserved untouched.
func (s *Store) Update(deviceID string, reading *sensor.Reading, fetchErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[deviceID]
	if !ok {
		logger.Warn().Str("device_id", deviceID).Msg("Update for unregistered device ignored")
		return
	}

	if fetchErr != nil {
		entry.LastError = &ErrorInfo{
			Code:    errors.CodeOf(fetchErr),
			Message: fetchErr.Error(),
			At:      time.Now(),
		}
		entry.ConsecutiveFailures++
		return
	}

	entry.Latest = reading
	entry.LastError = nil
	entry.ConsecutiveFailures = 0
}

// Snapshot returns a consistent point-in-time copy of all entries in
// registry order, safe to use concurrently with Update.
func (s *Store) Snapshot() []DeviceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]DeviceStatus, 0, len(s.order))
	for _, id := range s.order {
		entry := s.entries[id]
		copied := DeviceStatus{
			Device:              entry.Device,
			Latest:              copyReading(entry.Latest),
			ConsecutiveFailures: entry.ConsecutiveFailures,
		}
		if entry.LastError != nil {
			lastErr := *entry.LastError
			copied.LastError = &lastErr
		}
		snapshot = append(snapshot, copied)
	}

	return snapshot
}

func copyReading(r *sensor.Reading) *sensor.Reading {
	if r == nil {
		return nil
	}

	copied := *r
	if r.Temperature != nil {
		t := *r.Temperature
		copied.Temperature = &t
	}
	if r.Humidity != nil {
		h := *r.Humidity
		copied.Humidity = &h
	}

	return &copied
}
