// Package config loads the daemon configuration from a TOML file and
// hands the rest of the program already-typed, validated values.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sweeney/s0-meter/internal/meter"
	"github.com/sweeney/s0-meter/internal/source"
)

// fileConfig mirrors the TOML file. Optional keys are pointers so that
// an absent key is distinguishable from an explicit zero (a debounce of
// 0 and GPIO pin 0 are both valid settings).
type fileConfig struct {
	Device          string `toml:"device"`
	GPIO            *int   `toml:"gpio"`
	GPIODir         *int   `toml:"gpio_dir"`
	ConfigureGPIO   *bool  `toml:"configure_gpio"`
	Resolution      *int   `toml:"resolution"`
	DebounceDelayMs *int   `toml:"debounce_delay_ms"`

	Broker           string `toml:"broker"`
	HTTPAddr         string `toml:"http_addr"`
	HeartbeatMinutes int    `toml:"heartbeat_minutes"`
}

// Config is the resolved daemon configuration with defaults applied.
type Config struct {
	// Backend selection: a gpio key in the file selects the digital-pin
	// backend, otherwise device selects the serial backend.
	UseGPIO       bool
	Device        string
	GPIO          int
	GPIODir       int // source.NoDirPin when absent
	ConfigureGPIO bool

	Resolution    int // impulses per kWh
	DebounceDelay time.Duration

	Broker    string
	HTTPAddr  string
	Heartbeat time.Duration // 0 disables heartbeat events
}

// Load reads the TOML file at path. A missing file is created with
// defaults first so a fresh install has something to edit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, fmt.Errorf("create default config %s: %w", path, err)
		}
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg, err := resolve(&fc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// resolve applies defaults and validates the typed values.
func resolve(fc *fileConfig) (*Config, error) {
	cfg := &Config{
		Device:        fc.Device,
		GPIODir:       source.NoDirPin,
		ConfigureGPIO: true,
		Resolution:    meter.DefaultResolution,
		DebounceDelay: meter.DefaultDebounceDelay,
		Broker:        fc.Broker,
		HTTPAddr:      fc.HTTPAddr,
		Heartbeat:     time.Duration(fc.HeartbeatMinutes) * time.Minute,
	}

	if fc.GPIO != nil {
		cfg.UseGPIO = true
		cfg.GPIO = *fc.GPIO
		if cfg.GPIO < 0 {
			return nil, fmt.Errorf("gpio must not be negative, got %d", cfg.GPIO)
		}
	}
	if fc.GPIODir != nil {
		if !cfg.UseGPIO {
			return nil, errors.New("gpio_dir requires gpio")
		}
		cfg.GPIODir = *fc.GPIODir
		if cfg.GPIODir < 0 {
			return nil, fmt.Errorf("gpio_dir must not be negative, got %d", cfg.GPIODir)
		}
		if cfg.GPIODir == cfg.GPIO {
			return nil, errors.New("gpio_dir pin needs to be different than gpio pin")
		}
	}
	if fc.ConfigureGPIO != nil {
		cfg.ConfigureGPIO = *fc.ConfigureGPIO
	}
	if !cfg.UseGPIO && cfg.Device == "" {
		return nil, errors.New("either device or gpio is required")
	}

	if fc.Resolution != nil {
		cfg.Resolution = *fc.Resolution
	}
	if cfg.Resolution < 1 {
		return nil, fmt.Errorf("resolution must be greater than 0, got %d", cfg.Resolution)
	}

	if fc.DebounceDelayMs != nil {
		if *fc.DebounceDelayMs < 0 {
			return nil, fmt.Errorf("debounce_delay_ms must not be negative, got %d", *fc.DebounceDelayMs)
		}
		cfg.DebounceDelay = time.Duration(*fc.DebounceDelayMs) * time.Millisecond
	}

	if fc.HeartbeatMinutes < 0 {
		return nil, fmt.Errorf("heartbeat_minutes must not be negative, got %d", fc.HeartbeatMinutes)
	}

	return cfg, nil
}

const defaultFile = `# s0-meter configuration

# Serial backend: any byte arriving on the device counts as one impulse.
device = "/dev/ttyUSB0"

# Digital-pin backend: uncomment gpio to use a sysfs GPIO pin instead.
# gpio = 17
# gpio_dir = 27
# configure_gpio = true

# Meter calibration.
# resolution = 1000       # impulses per kWh
# debounce_delay_ms = 30

broker = "tcp://localhost:1883"
http_addr = ":8080"
heartbeat_minutes = 15
`

// writeDefault creates a serial-backend config a fresh install can edit.
func writeDefault(path string) error {
	return os.WriteFile(path, []byte(defaultFile), 0644)
}

// NewSource builds the impulse source the configuration selects.
func (c *Config) NewSource() (source.Source, error) {
	if c.UseGPIO {
		pin, err := source.NewPin(source.PinConfig{
			Pin:           c.GPIO,
			DirPin:        c.GPIODir,
			ConfigureGPIO: c.ConfigureGPIO,
		})
		if err != nil {
			return nil, err
		}
		return pin, nil
	}
	ser, err := source.NewSerial(c.Device)
	if err != nil {
		return nil, err
	}
	return ser, nil
}

// Backend names the selected impulse backend for logs and status.
func (c *Config) Backend() string {
	if c.UseGPIO {
		return fmt.Sprintf("gpio%d", c.GPIO)
	}
	return c.Device
}
