package device

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// InstallOwnershipKey installs a device ownership key on the primary
// controller. Under the disabled mode this is a gate veto: success with
// no transport call. An empty key or signature with the gate open also
// succeeds without a call; there is nothing to install.
func (c *Controller) InstallOwnershipKey(ctx context.Context, keyBlob, signature string) (ok bool, err error) {
	start := c.startOp("install_key")
	defer func() { c.finishOp("install_key", start, ok) }()

	if !c.gate.Permits(GatedKeyInstall) {
		c.gate.Veto("install_key", GatedKeyInstall)
		return true, nil
	}
	if keyBlob == "" || signature == "" {
		log.Info().
			Str("device", c.name).
			Msg("no ownership key material, nothing to install")
		return true, nil
	}

	body := map[string]string{
		"KeyBlob":   keyBlob,
		"Signature": signature,
		"Lifetime":  keyLifetime(c.gate.Mode()),
	}
	return c.action(ctx, c.bmc, TargetPrimary, "install_key", http.MethodPost, keyInstallPath, body), nil
}

// LockOwnershipKey makes the installed key permanent. Only the locking
// mode ever locks; volatile and disabled modes succeed without a call,
// keeping provisioning sequences identical across modes.
func (c *Controller) LockOwnershipKey(ctx context.Context) (ok bool, err error) {
	start := c.startOp("lock_key")
	defer func() { c.finishOp("lock_key", start, ok) }()

	if !c.gate.Permits(GatedKeyLock) {
		c.gate.Veto("lock_key", GatedKeyLock)
		return true, nil
	}

	return c.action(ctx, c.bmc, TargetPrimary, "lock_key", http.MethodPost, keyLockPath, nil), nil
}

// SetManualBootMode switches the manual boot mode flag. The effective
// value is mode-dependent: a volatile key forces manual boot on so the
// unit halts for inspection, a locking key forces it off so the unit
// boots unattended. The requested value only survives when the mode has
// no opinion.
func (c *Controller) SetManualBootMode(ctx context.Context, requested bool) (ok bool, err error) {
	start := c.startOp("set_boot_mode")
	defer func() { c.finishOp("set_boot_mode", start, ok) }()

	if !c.gate.Permits(GatedBootMode) {
		c.gate.Veto("set_boot_mode", GatedBootMode)
		return true, nil
	}

	effective := requested
	switch c.gate.Mode() {
	case ModeVolatile:
		effective = true
	case ModeLocking:
		effective = false
	}
	if effective != requested {
		log.Warn().
			Str("device", c.name).
			Bool("requested", requested).
			Bool("effective", effective).
			Str("mode", string(c.gate.Mode())).
			Msg("manual boot mode overridden by security mode")
	}

	body := map[string]any{"Oem": map[string]any{"ManualBootModeEnabled": effective}}
	return c.action(ctx, c.bmc, TargetPrimary, "set_boot_mode", http.MethodPatch, systemPath, body), nil
}

// ProtectedBootCommand runs a host-side command that is only meaningful
// while the unit is under ownership-transfer control, elevated on the
// host OS.
func (c *Controller) ProtectedBootCommand(ctx context.Context, command string) (ok bool, err error) {
	start := c.startOp("protected_command")
	defer func() { c.finishOp("protected_command", start, ok) }()

	if !c.gate.Permits(GatedProtectedCommand) {
		c.gate.Veto("protected_command", GatedProtectedCommand)
		return true, nil
	}
	if c.runner == nil {
		return false, configErr(c.name, "protected_command", "device has no host OS endpoint")
	}

	return c.runner.Exec(ctx, command, true, 0, nil), nil
}

// keyLifetime maps a security mode to the controller's key lifetime
// value.
func keyLifetime(mode SecurityMode) string {
	switch mode {
	case ModeLocking:
		return "Persistent"
	default:
		return "Volatile"
	}
}
