package poller

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"codeberg.org/mutker/tuya-exporter/internal/logger"
	"codeberg.org/mutker/tuya-exporter/internal/sensor"
	"codeberg.org/mutker/tuya-exporter/internal/store"
)

// Fetcher retrieves the current reading for one device
type Fetcher interface {
	Fetch(ctx context.Context, device sensor.Device) (*sensor.Reading, error)
}

// Poller runs the periodic fetch-all-devices cycle. Devices are fetched
// concurrently within a cycle; a device whose previous fetch is still running
// when the next tick fires is skipped, never queued.
type Poller struct {
	registry *sensor.Registry
	fetcher  Fetcher
	store    *store.Store
	interval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

func New(registry *sensor.Registry, fetcher Fetcher, st *store.Store, interval time.Duration) *Poller {
	return &Poller{
		registry: registry,
		fetcher:  fetcher,
		store:    st,
		interval: interval,
		inFlight: make(map[string]bool),
	}
}

// Run polls once immediately, then on every tick until ctx is canceled.
// It returns only after all in-flight fetches have completed; no store
// writes happen after it returns.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			logger.Debug().Msg("Poller stopped")
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle dispatches one fetch per registered device. It does not wait for the
// fetches to finish: a slow device must not delay the others' next cycle.
func (p *Poller) cycle(ctx context.Context) {
	var started, skipped int

	for _, device := range p.registry.List() {
		if !p.tryAcquire(device.ID) {
			skipped++
			logger.Debug().Str("device_id", device.ID).Msg("Previous fetch still running, skipping")
			continue
		}

		started++
		p.wg.Add(1)
		go p.poll(ctx, device)
	}

	logger.Debug().Int("started", started).Int("skipped", skipped).Msg("Poll cycle dispatched")
}

func (p *Poller) poll(ctx context.Context, device sensor.Device) {
	defer p.wg.Done()
	defer p.release(device.ID)

	// No per-fetch deadline: a slow fetch may span several ticks and is
	// skipped by them, while shutdown cancels it through ctx.
	reading, err := p.fetcher.Fetch(ctx, device)
	if err != nil {
		// A fetch aborted by shutdown is not a device failure
		if ctx.Err() != nil {
			return
		}

		logger.Warn().
			Str("device_id", device.ID).
			Str("error_code", string(errors.CodeOf(err))).
			Err(err).
			Msg("Fetch failed")
		p.store.Update(device.ID, nil, err)
		return
	}

	p.store.Update(device.ID, reading, nil)
	logger.Debug().Str("device_id", device.ID).Msg("Fetch succeeded")
}

func (p *Poller) tryAcquire(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight[deviceID] {
		return false
	}
	p.inFlight[deviceID] = true

	return true
}

func (p *Poller) release(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, deviceID)
}
