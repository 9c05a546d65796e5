package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMetricsNamespace = "mics"
	DefaultInspectorPort    = 8081
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultTickInterval     = time.Second
)

// Config groups the optional runtime settings. The zero value is valid and
// yields a bus and microservices with metrics, tracing and the inspector off.
type Config struct {
	// Metrics configuration.
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	MetricsNamespace string `yaml:"metrics_namespace"`
	// MetricsPort exposes /metrics on its own listener when > 0. When the
	// inspector is enabled /metrics is also mounted there.
	MetricsPort int `yaml:"metrics_port"`

	// Inspector configuration.
	InspectorEnabled bool `yaml:"inspector_enabled"`
	// InspectorPort defaults to 8081.
	InspectorPort int `yaml:"inspector_port"`
	// InspectorCORSAllowedOrigins lists allowed origins. Use "*" for development.
	// Empty disables CORS headers.
	InspectorCORSAllowedOrigins []string `yaml:"inspector_cors_allowed_origins"`
	// InspectorRateLimit caps inspector requests per minute per client IP.
	// Zero disables the limit.
	InspectorRateLimit int `yaml:"inspector_rate_limit"`

	// TracingEnabled wraps every dispatch in an OpenTelemetry span.
	TracingEnabled bool `yaml:"tracing_enabled"`
	// LogMessages logs every dispatched message at debug level.
	LogMessages bool `yaml:"log_messages"`

	// UnregisterOnExit makes microservices unregister from the bus when their
	// run loop ends.
	UnregisterOnExit bool `yaml:"unregister_on_exit"`
	// BroadcastCrashes makes the runtime host send a CrashedBroadcast when a
	// microservice stops because of a handler failure.
	BroadcastCrashes bool `yaml:"broadcast_crashes"`

	// Ticker configuration. TickDuration is the number of ticks before the
	// ticker broadcasts termination; zero ticks until the ticker is stopped.
	TickInterval time.Duration `yaml:"tick_interval"`
	TickDuration int           `yaml:"tick_duration"`

	// ShutdownTimeout bounds how long the host waits for the inspector to stop.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = DefaultMetricsNamespace
	}
	if c.InspectorEnabled && c.InspectorPort == 0 {
		c.InspectorPort = DefaultInspectorPort
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

func (c Config) String() string {
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validatePorts()...)
	errs = append(errs, c.validateTicker()...)
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown: timeout cannot be negative"))
	}
	if c.MetricsPort > 0 && c.InspectorEnabled && c.MetricsPort == c.InspectorPort {
		errs = append(errs, fmt.Errorf("metrics: port %d is already used by the inspector", c.MetricsPort))
	}

	return errors.Join(errs...)
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.InspectorPort < 0 || c.InspectorPort > 65535 {
		errs = append(errs, fmt.Errorf("inspector: invalid port %d", c.InspectorPort))
	}
	if c.InspectorRateLimit < 0 {
		errs = append(errs, errors.New("inspector: rate limit cannot be negative"))
	}
	return errs
}

func (c *Config) validateTicker() []error {
	var errs []error
	if c.TickInterval < 0 {
		errs = append(errs, errors.New("ticker: interval cannot be negative"))
	}
	if c.TickDuration < 0 {
		errs = append(errs, errors.New("ticker: duration cannot be negative"))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// LoadYAML decodes a Config from r, rejecting unknown keys, and applies defaults.
func LoadYAML(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a YAML config file from disk.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}
