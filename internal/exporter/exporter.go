package exporter

import (
	"net/http"
	"time"

	"codeberg.org/mutker/tuya-exporter/internal/sensor"
	"codeberg.org/mutker/tuya-exporter/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector renders the current store snapshot on every scrape. Data age is
// computed at collect time, never cached. Devices without a successful fetch
// yet emit no series.
type Collector struct {
	store *store.Store
	now   func() time.Time

	temperature *prometheus.Desc
	humidity    *prometheus.Desc
	dataAge     *prometheus.Desc
	battery     *prometheus.Desc
}

func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store: st,
		now:   time.Now,
		temperature: prometheus.NewDesc(
			"tuya_sensor_temperature_celsius",
			"Current temperature",
			[]string{"device"}, nil,
		),
		humidity: prometheus.NewDesc(
			"tuya_sensor_relative_humidity_percent",
			"Relative humidity",
			[]string{"device"}, nil,
		),
		dataAge: prometheus.NewDesc(
			"tuya_data_age_seconds",
			"Data age for each sensor",
			[]string{"device"}, nil,
		),
		battery: prometheus.NewDesc(
			"tuya_battery_state",
			"Battery state reported by the device",
			[]string{"device", "tuya_battery_state"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temperature
	ch <- c.humidity
	ch <- c.dataAge
	ch <- c.battery
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	now := c.now()

	for _, status := range c.store.Snapshot() {
		reading := status.Latest
		if reading == nil {
			continue
		}

		device := status.Device.Name

		if reading.Temperature != nil {
			ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, *reading.Temperature, device)
		}
		if reading.Humidity != nil {
			ch <- prometheus.MustNewConstMetric(c.humidity, prometheus.GaugeValue, *reading.Humidity, device)
		}

		age := now.Sub(reading.ObservedAt).Seconds()
		if age < 0 {
			age = 0
		}
		ch <- prometheus.MustNewConstMetric(c.dataAge, prometheus.GaugeValue, age, device)

		for _, state := range sensor.BatteryStates() {
			value := 0.0
			if state == reading.Battery {
				value = 1
			}
			ch <- prometheus.MustNewConstMetric(c.battery, prometheus.GaugeValue, value, device, state.String())
		}
	}
}

// Handler serves the metrics endpoint from a private registry holding only
// the sensor collector.
func Handler(st *store.Store) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(st))

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
