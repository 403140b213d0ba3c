package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/tuya-exporter/internal/config"
	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "tuya-exporter.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TUYA_REGION", "us")
	t.Setenv("TUYA_API_KEY", "test-key")
	t.Setenv("TUYA_API_SECRET", "test-secret")
	t.Setenv("TUYA_DEVICE_ID", "bf1234567890")
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
port = 9100
interval = 30
log_level = "debug"
region = "eu"
api_key = "file-key"
api_secret = "file-secret"

[[devices]]
id = "bfaaaaaaaaaaaaaa"
name = "Living Room"

[[devices]]
id = "bfbbbbbbbbbbbbbb"
`)
	t.Setenv("TUYA_EXPORTER_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port, "Expected Port 9100")
	assert.Equal(t, 30, cfg.Interval, "Expected Interval 30")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.Equal(t, "eu", cfg.Region, "Expected Region eu")
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "file-secret", cfg.APISecret)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "bfaaaaaaaaaaaaaa", cfg.Devices[0].ID)
	assert.Equal(t, "Living Room", cfg.Devices[0].Name)
	assert.Equal(t, "bfbbbbbbbbbbbbbb", cfg.Devices[1].ID)
	assert.Empty(t, cfg.Devices[1].Name)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TUYA_EXPORTER_CONFIG", "")
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultPort, cfg.Port, "Expected default Port 7979")
	assert.Equal(t, config.DefaultInterval, cfg.Interval, "Expected default Interval 60")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
}

func TestLoadEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_EXPORTER_PORT", "8080")
	t.Setenv("TUYA_EXPORTER_REFRESH_PERIOD", "120")
	t.Setenv("TUYA_LOGLEVEL", "warning")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 120, cfg.Interval)
	assert.Equal(t, "warning", cfg.LogLevel)
}

func TestDeviceIDList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_DEVICE_ID", "bf111111, bf222222,bf333333")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 3)
	assert.Equal(t, "bf111111", cfg.Devices[0].ID)
	assert.Equal(t, "bf222222", cfg.Devices[1].ID)
	assert.Equal(t, "bf333333", cfg.Devices[2].ID)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, "This is not a valid TOML file\n")
	t.Setenv("TUYA_EXPORTER_CONFIG", configPath)
	setRequiredEnv(t)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrReadConfig, errors.CodeOf(err))
}

func TestInvalidLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_LOGLEVEL", "shout")

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidLogLevel, errors.CodeOf(err))
}

func TestInvalidInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_EXPORTER_REFRESH_PERIOD", "0")

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))
}

func TestInvalidRegion(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_REGION", "mars")

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidRegion, errors.CodeOf(err))
}

func TestMissingCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_API_SECRET", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrMissingCredential, errors.CodeOf(err))
}

func TestMissingDevices(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUYA_DEVICE_ID", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrMissingDevice, errors.CodeOf(err))
}
