package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/tuya-exporter/internal/config"
	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"codeberg.org/mutker/tuya-exporter/internal/exporter"
	"codeberg.org/mutker/tuya-exporter/internal/logger"
	"codeberg.org/mutker/tuya-exporter/internal/pid"
	"codeberg.org/mutker/tuya-exporter/internal/poller"
	"codeberg.org/mutker/tuya-exporter/internal/sensor"
	"codeberg.org/mutker/tuya-exporter/internal/store"
	"codeberg.org/mutker/tuya-exporter/internal/tuya"
)

const shutdownTimeout = 5 * time.Second

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	errFactory := errors.New()

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}

	client, err := tuya.NewClient(cfg.Region, cfg.APIKey, cfg.APISecret)
	if err != nil {
		removePidFile()
		logger.Fatal().Err(err).Msg("Failed to initialize cloud client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	devices := make([]sensor.Device, len(cfg.Devices))
	for i, d := range cfg.Devices {
		devices[i] = sensor.Device{ID: d.ID, Name: d.Name}
	}
	devices = sensor.ResolveNames(ctx, client, devices)

	registry := sensor.NewRegistry(devices)
	metricStore := store.New(registry.List())
	fetcher := sensor.NewFetcher(client)
	p := poller.New(registry, fetcher, metricStore, time.Duration(cfg.Interval)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler(metricStore))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	pollerDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(pollerDone)
	}()

	logger.Info().
		Int("port", cfg.Port).
		Int("interval", cfg.Interval).
		Int("devices", registry.Len()).
		Msg("Exporter started")

	exitCode := 0
	select {
	case err := <-serverErr:
		logger.ErrorWithCode(errFactory.Wrap(errors.ErrBindListen, err)).Msg("Metrics server failed")
		exitCode = 1
		cancel()
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down metrics server")
		}
		shutdownCancel()
	}

	<-pollerDone
	removePidFile()
	logger.Info().Msg("Exiting...")
	os.Exit(exitCode)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func removePidFile() {
	if err := pid.Remove(); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
}
