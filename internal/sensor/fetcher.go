package sensor

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"codeberg.org/mutker/tuya-exporter/internal/logger"
	"codeberg.org/mutker/tuya-exporter/internal/tuya"
)

// Data point codes reported by temperature/humidity sensor firmwares
const (
	codeTemperatureVA = "va_temperature"
	codeTemperature   = "temp_current"
	codeHumidityVA    = "va_humidity"
	codeHumidity      = "humidity_value"
	codeBattery       = "battery_state"
)

// Fetcher retrieves and normalizes the current reading for one device.
// Scale factors come from the device specification endpoint and are cached
// for the process lifetime once retrieved.
type Fetcher struct {
	client tuya.Client

	mu     sync.Mutex
	scales map[string]map[string]float64
}

func NewFetcher(client tuya.Client) *Fetcher {
	return &Fetcher{
		client: client,
		scales: make(map[string]map[string]float64),
	}
}

// Fetch calls the cloud API for the device's current data points and maps
// them into a Reading. No retries; classification of the failure is carried
// on the returned error's code.
func (f *Fetcher) Fetch(ctx context.Context, device Device) (*Reading, error) {
	errFactory := errors.New()

	info, err := f.client.GetDevice(ctx, device.ID)
	if err != nil {
		return nil, errFactory.Wrap(errors.CodeOf(err), err).WithData(device.ID)
	}

	fetchedAt := time.Now()
	reading := &Reading{
		Battery:   BatteryUnknown,
		FetchedAt: fetchedAt,
	}

	for _, dp := range info.Status {
		switch dp.Code {
		case codeTemperatureVA, codeTemperature:
			if v, ok := dp.Value.(float64); ok {
				scaled := v / f.scaleFactor(ctx, device.ID, dp.Code)
				reading.Temperature = &scaled
			}
		case codeHumidityVA, codeHumidity:
			if v, ok := dp.Value.(float64); ok {
				scaled := v / f.scaleFactor(ctx, device.ID, dp.Code)
				reading.Humidity = &scaled
			}
		case codeBattery:
			if s, ok := dp.Value.(string); ok {
				reading.Battery = ParseBatteryState(s)
			}
		}
	}

	if info.UpdateTime > 0 {
		reading.ObservedAt = time.Unix(info.UpdateTime, 0)
	} else {
		reading.ObservedAt = fetchedAt
	}

	return reading, nil
}

// scaleFactor returns the divisor for a (device, code) pair. The first call
// per device fetches the specification; when that fails the common firmware
// defaults apply for this fetch and the lookup is retried on the next one.
func (f *Fetcher) scaleFactor(ctx context.Context, deviceID, code string) float64 {
	f.mu.Lock()
	factors, ok := f.scales[deviceID]
	f.mu.Unlock()

	if !ok {
		loaded, err := f.loadScaleFactors(ctx, deviceID)
		if err != nil {
			logger.Debug().Str("device_id", deviceID).Err(err).
				Msg("Specification lookup failed, assuming default scales")
			return defaultScale(code)
		}

		f.mu.Lock()
		f.scales[deviceID] = loaded
		f.mu.Unlock()
		factors = loaded
	}

	if factor, ok := factors[code]; ok {
		return factor
	}

	return 1
}

func (f *Fetcher) loadScaleFactors(ctx context.Context, deviceID string) (map[string]float64, error) {
	spec, err := f.client.GetDeviceSpecification(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	factors := make(map[string]float64)
	for _, s := range spec.Status {
		if s.Type != "Integer" || s.Values == "" {
			continue
		}

		values := struct {
			Scale *float64 `json:"scale"`
		}{}
		if err := json.Unmarshal([]byte(s.Values), &values); err != nil || values.Scale == nil {
			continue
		}

		factors[s.Code] = math.Pow(10, *values.Scale)
	}

	logger.Debug().Str("device_id", deviceID).Interface("factors", factors).Msg("Loaded scale factors")

	return factors, nil
}

// va_temperature firmwares report tenths of a degree
func defaultScale(code string) float64 {
	if code == codeTemperatureVA {
		return 10
	}

	return 1
}
