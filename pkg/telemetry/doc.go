// Package telemetry provides the observability surface for trayctl:
// zerolog logger construction, Prometheus metrics for device operations,
// OpenTelemetry tracing, and an asynchronous device-event publisher.
//
// The orchestration core in pkg/device emits through these collaborators
// but never configures them; wiring happens in cmd.
package telemetry
