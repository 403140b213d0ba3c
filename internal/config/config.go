package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/tuya-exporter/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort     = 7979
	DefaultInterval = 60
	DefaultLogLevel = "info"

	configName = "tuya-exporter"
	configEnv  = "TUYA_EXPORTER_CONFIG"
)

// Device identifies one sensor to poll, with an optional display name.
type Device struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

type Config struct {
	Port      int      `mapstructure:"port"`
	Interval  int      `mapstructure:"interval"`
	LogLevel  string   `mapstructure:"log_level"`
	Region    string   `mapstructure:"region"`
	APIKey    string   `mapstructure:"api_key"`
	APISecret string   `mapstructure:"api_secret"`
	Devices   []Device `mapstructure:"devices"`

	// DeviceID holds the raw comma-separated id list from the environment;
	// merged into Devices during validation.
	DeviceID string `mapstructure:"device_id"`
}

// Load reads configuration from flags, environment variables and an optional
// TOML file, highest precedence first. A .env file in the working directory
// is loaded into the environment before anything else.
func Load() (*Config, error) {
	errFactory := errors.New()

	// Missing .env is the normal case
	_ = godotenv.Load()

	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	configPath := fs.String("config", "", "Path to config file")
	fs.Int("port", DefaultPort, "Metrics listen port")
	fs.Int("interval", DefaultInterval, "Seconds between poll cycles")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("port", DefaultPort)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)

	bindEnvs(v)

	if *configPath == "" {
		*configPath = os.Getenv(configEnv)
	}

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	// Flags override file and environment
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "log-level":
			v.Set("log_level", f.Value.String())
		case "config":
		default:
			v.Set(f.Name, f.Value.String())
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func bindEnvs(v *viper.Viper) {
	// Environment names predate the config file and don't follow a single
	// prefix, so each key is bound explicitly.
	_ = v.BindEnv("port", "TUYA_EXPORTER_PORT")
	_ = v.BindEnv("interval", "TUYA_EXPORTER_REFRESH_PERIOD")
	_ = v.BindEnv("log_level", "TUYA_LOGLEVEL")
	_ = v.BindEnv("region", "TUYA_REGION")
	_ = v.BindEnv("api_key", "TUYA_API_KEY")
	_ = v.BindEnv("api_secret", "TUYA_API_SECRET")
	_ = v.BindEnv("device_id", "TUYA_DEVICE_ID")
}

func (c *Config) validate() error {
	errFactory := errors.New()

	if c.DeviceID != "" && len(c.Devices) == 0 {
		for _, id := range strings.Split(c.DeviceID, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				c.Devices = append(c.Devices, Device{ID: id})
			}
		}
	}

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, c.Port)
	}
	if !validLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if !validRegion(c.Region) {
		return errFactory.WithData(errors.ErrInvalidRegion, c.Region)
	}
	if c.APIKey == "" {
		return errFactory.WithData(errors.ErrMissingCredential, "api_key")
	}
	if c.APISecret == "" {
		return errFactory.WithData(errors.ErrMissingCredential, "api_secret")
	}
	if len(c.Devices) == 0 {
		return errFactory.New(errors.ErrMissingDevice)
	}
	for _, d := range c.Devices {
		if d.ID == "" {
			return errFactory.New(errors.ErrMissingDevice)
		}
	}

	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "error":
		return true
	default:
		return false
	}
}

func validRegion(region string) bool {
	switch region {
	case "us", "eu", "cn", "in":
		return true
	default:
		return false
	}
}
