package device

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openrack/trayctl/pkg/telemetry"
)

// SecurityMode is the device ownership-transfer (DOT) mode. It decides
// which security-sensitive operations are allowed to touch the device at
// all; a vetoed operation succeeds without issuing any transport call so
// that provisioning sequences stay mode-agnostic.
type SecurityMode string

// Supported DOT modes.
const (
	// ModeDisabled turns the ownership-transfer flow off entirely.
	ModeDisabled SecurityMode = "disabled"

	// ModeVolatile installs keys that do not survive an AC cycle.
	ModeVolatile SecurityMode = "volatile"

	// ModeLocking installs keys and then locks them permanently.
	ModeLocking SecurityMode = "locking"
)

// ParseSecurityMode validates a mode string from configuration.
func ParseSecurityMode(s string) (SecurityMode, error) {
	switch SecurityMode(s) {
	case ModeDisabled, ModeVolatile, ModeLocking:
		return SecurityMode(s), nil
	}
	return "", fmt.Errorf("unknown security mode %q", s)
}

// GatedOp names a class of operation the gate rules on.
type GatedOp string

// Operation classes subject to gating.
const (
	// GatedKeyInstall covers installing an ownership key.
	GatedKeyInstall GatedOp = "key_install"

	// GatedKeyLock covers permanently locking an installed key.
	GatedKeyLock GatedOp = "key_lock"

	// GatedBootMode covers switching the manual boot mode.
	GatedBootMode GatedOp = "boot_mode"

	// GatedProtectedCommand covers the protected-boot shell command.
	GatedProtectedCommand GatedOp = "protected_command"

	// GatedVolatileOnlyPower covers power actions flagged as meaningful
	// only while a volatile key is active.
	GatedVolatileOnlyPower GatedOp = "volatile_only_power"
)

// SecurityGate answers whether a gated operation may run under the
// device's DOT mode.
type SecurityGate struct {
	device  string
	mode    SecurityMode
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// NewSecurityGate builds the gate for one device.
func NewSecurityGate(device string, mode SecurityMode, metrics *telemetry.Metrics, events *telemetry.EventPublisher) *SecurityGate {
	return &SecurityGate{device: device, mode: mode, metrics: metrics, events: events}
}

// Mode returns the configured DOT mode.
func (g *SecurityGate) Mode() SecurityMode {
	return g.mode
}

// Permits reports whether the operation class may run. It only answers;
// recording the veto is Veto's job so that callers which never consult
// the gate do not pollute the veto counters.
func (g *SecurityGate) Permits(op GatedOp) bool {
	switch op {
	case GatedKeyInstall, GatedBootMode, GatedProtectedCommand:
		return g.mode != ModeDisabled
	case GatedKeyLock:
		return g.mode == ModeLocking
	case GatedVolatileOnlyPower:
		return g.mode == ModeVolatile
	}
	return false
}

// Veto records that operation was skipped because the gate does not
// permit op under the current mode.
func (g *SecurityGate) Veto(operation string, op GatedOp) {
	log.Info().
		Str("device", g.device).
		Str("operation", operation).
		Str("mode", string(g.mode)).
		Str("gated_op", string(op)).
		Msg("operation skipped by security gate")

	g.metrics.GateVeto(g.device, operation)
	g.events.Publish(telemetry.Event{
		Type:      telemetry.EventTypeGateVeto,
		Device:    g.device,
		Operation: operation,
		Level:     telemetry.EventLevelInfo,
		Message:   "skipped by security gate",
		Data:      map[string]any{"mode": string(g.mode), "gated_op": string(op)},
	})
}
