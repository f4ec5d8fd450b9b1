package telemetry

import (
	"fmt"
	"time"
)

// Config contains the telemetry configuration for trayctl.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is the build version.
	ServiceVersion string

	// Environment is the deployment environment (factory, lab, dev).
	Environment string

	// Logging configures structured logging.
	Logging LoggingConfig

	// Tracing configures distributed tracing.
	Tracing TracingConfig

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig

	// Events configures the device-event publisher.
	Events EventsConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string

	// Format selects console or json output.
	Format string

	// Output is stdout, stderr, or a file path.
	Output string

	// EnableCaller adds file:line caller information.
	EnableCaller bool
}

// TracingConfig configures distributed tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool

	// Exporter is otlp, stdout, or none.
	Exporter string

	// Endpoint is the OTLP collector endpoint.
	Endpoint string

	// SamplingRate is the trace sampling rate in [0,1].
	SamplingRate float64

	// Insecure disables TLS for the OTLP connection.
	Insecure bool
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// ListenAddress is the address of the metrics HTTP endpoint.
	// Empty disables the listener; the registry still collects.
	ListenAddress string

	// Namespace is the metric name prefix.
	Namespace string
}

// EventsConfig configures the device-event publisher.
type EventsConfig struct {
	// Enabled controls whether events are published.
	Enabled bool

	// BufferSize is the size of the async event buffer.
	BufferSize int

	// DropWhenFull drops events instead of blocking the operation
	// thread when the buffer is full.
	DropWhenFull bool

	// FlushTimeout bounds the final drain on Close.
	FlushTimeout time.Duration
}

// DefaultConfig returns the default telemetry configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "trayctl",
		ServiceVersion: "dev",
		Environment:    "factory",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "trayctl",
		},
		Events: EventsConfig{
			Enabled:      true,
			BufferSize:   256,
			DropWhenFull: true,
			FlushTimeout: 5 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout", "none":
		default:
			return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
		}
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got: %d", c.Events.BufferSize)
	}

	return nil
}
