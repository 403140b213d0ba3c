package sensor

import "time"

// Device identifies one monitored sensor. Name is the display label carried
// on every metric series.
type Device struct {
	ID   string
	Name string
}

// BatteryState is the four-valued battery health indicator
type BatteryState string

const (
	BatteryUnknown BatteryState = "unknown"
	BatteryLow     BatteryState = "low"
	BatteryMiddle  BatteryState = "middle"
	BatteryHigh    BatteryState = "high"
)

// BatteryStates returns all states in stable order
func BatteryStates() []BatteryState {
	return []BatteryState{BatteryUnknown, BatteryLow, BatteryMiddle, BatteryHigh}
}

// ParseBatteryState maps a raw reported value onto the enum. Unrecognized or
// missing values are unknown, never an error.
func ParseBatteryState(raw string) BatteryState {
	switch BatteryState(raw) {
	case BatteryLow, BatteryMiddle, BatteryHigh:
		return BatteryState(raw)
	default:
		return BatteryUnknown
	}
}

func (s BatteryState) String() string {
	return string(s)
}

// Reading is one normalized sensor snapshot. Temperature and Humidity are nil
// when the device does not report them. ObservedAt is the platform's last
// reported update time; FetchedAt is when the fetch completed.
type Reading struct {
	Temperature *float64
	Humidity    *float64
	Battery     BatteryState
	ObservedAt  time.Time
	FetchedAt   time.Time
}
