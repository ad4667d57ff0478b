package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// MIDI peripheral the application drives.
const (
	DefaultAddress    = "24:0A:C4:A5:72:6A"
	DefaultMIDIPort   = 0
	DefaultRequestMTU = 517
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Peripheral
	Address        string        `yaml:"address" default:"24:0A:C4:A5:72:6A"`
	MIDIPort       int           `yaml:"midi_port" default:"0"`
	RequestMTU     int           `yaml:"request_mtu" default:"517"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	Adapter        string        `yaml:"adapter" default:"hci0"`
	CheckAdapter   bool          `yaml:"check_adapter" default:"true"`

	// MIDI delivery
	MessageBuffer int `yaml:"message_buffer" default:"128"`

	// Audio recovery
	RestartDelay time.Duration `yaml:"restart_delay" default:"3s"`
	Hotplug      bool          `yaml:"hotplug" default:"true"`

	// Status endpoint, disabled when empty
	StatusAddr string `yaml:"status_addr" default:""`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default; unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("address must not be empty")
	}
	if c.MIDIPort < 0 {
		return fmt.Errorf("midi_port must be >= 0, got %d", c.MIDIPort)
	}
	if c.RequestMTU < 23 || c.RequestMTU > 517 {
		return fmt.Errorf("request_mtu must be within [23, 517], got %d", c.RequestMTU)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.RestartDelay <= 0 {
		return fmt.Errorf("restart_delay must be positive, got %s", c.RestartDelay)
	}
	if c.MessageBuffer <= 0 {
		return fmt.Errorf("message_buffer must be positive, got %d", c.MessageBuffer)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
