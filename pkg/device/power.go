package device

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Power states reported by the system resource.
const (
	PowerStateOn  = "On"
	PowerStateOff = "Off"
)

// PowerOn powers the unit on and waits until the system reports On.
// When volatileOnly is set the request only applies while a volatile
// ownership key is active; under any other mode it is a successful no-op.
func (c *Controller) PowerOn(ctx context.Context, volatileOnly bool) (ok bool, err error) {
	start := c.startOp("power_on")
	defer func() { c.finishOp("power_on", start, ok) }()

	if volatileOnly && !c.gate.Permits(GatedVolatileOnlyPower) {
		c.gate.Veto("power_on", GatedVolatileOnlyPower)
		return true, nil
	}

	return c.powerOn(ctx), nil
}

// powerOn issues the power-on reset and waits for the system to report
// On. Shared with boot supervision, which powers the unit on itself once
// console capture is in place.
func (c *Controller) powerOn(ctx context.Context) bool {
	if !c.action(ctx, c.bmc, TargetPrimary, "power_on", http.MethodPost, systemResetPath,
		map[string]string{"ResetType": "On"}) {
		return false
	}
	return c.waitForPowerState(ctx, PowerStateOn)
}

// PowerOff powers the unit off and waits until the system reports Off.
// The reset action is issued unconditionally; if the unit is already off
// the controller treats it as a no-op and the poll confirms immediately.
func (c *Controller) PowerOff(ctx context.Context, force bool) (ok bool, err error) {
	start := c.startOp("power_off")
	defer func() { c.finishOp("power_off", start, ok) }()

	resetType := "GracefulShutdown"
	if force {
		resetType = "ForceOff"
	}

	if !c.action(ctx, c.bmc, TargetPrimary, "power_off", http.MethodPost, systemResetPath,
		map[string]string{"ResetType": resetType}) {
		return false, nil
	}

	return c.waitForPowerState(ctx, PowerStateOff), nil
}

// ACCycle drops and restores standby power via the chassis. There is no
// state to poll afterwards because the management controller itself goes
// away; the fixed settle delay covers its return.
func (c *Controller) ACCycle(ctx context.Context, volatileOnly bool) (ok bool, err error) {
	start := c.startOp("ac_cycle")
	defer func() { c.finishOp("ac_cycle", start, ok) }()

	if volatileOnly && !c.gate.Permits(GatedVolatileOnlyPower) {
		c.gate.Veto("ac_cycle", GatedVolatileOnlyPower)
		return true, nil
	}

	if !c.action(ctx, c.bmc, TargetPrimary, "ac_cycle", http.MethodPost, chassisResetPath,
		map[string]string{"ResetType": "PowerCycle"}) {
		return false, nil
	}

	c.settle("ac_cycle")
	return true, nil
}

// RebootBMC restarts the primary management controller and waits the
// settle delay for it to come back.
func (c *Controller) RebootBMC(ctx context.Context, volatileOnly bool) (ok bool, err error) {
	start := c.startOp("reboot_bmc")
	defer func() { c.finishOp("reboot_bmc", start, ok) }()

	if volatileOnly && !c.gate.Permits(GatedVolatileOnlyPower) {
		c.gate.Veto("reboot_bmc", GatedVolatileOnlyPower)
		return true, nil
	}

	if !c.action(ctx, c.bmc, TargetPrimary, "reboot_bmc", http.MethodPost, managerResetPath,
		map[string]string{"ResetType": "GracefulRestart"}) {
		return false, nil
	}

	c.settle("reboot_bmc")
	return true, nil
}

// FactoryResetHMC resets the secondary controller to factory defaults.
// Units without a secondary controller cannot run this at all, which is
// a configuration fault rather than an operational failure.
func (c *Controller) FactoryResetHMC(ctx context.Context, volatileOnly bool) (ok bool, err error) {
	start := c.startOp("factory_reset_hmc")
	defer func() { c.finishOp("factory_reset_hmc", start, ok) }()

	call, err := c.caller("factory_reset_hmc", TargetSecondary)
	if err != nil {
		return false, err
	}

	if volatileOnly && !c.gate.Permits(GatedVolatileOnlyPower) {
		c.gate.Veto("factory_reset_hmc", GatedVolatileOnlyPower)
		return true, nil
	}

	if !c.action(ctx, call, TargetSecondary, "factory_reset_hmc", http.MethodPost, managerDefaultsPath,
		map[string]string{"ResetToDefaultsType": "ResetAll"}) {
		return false, nil
	}

	c.settle("factory_reset_hmc")
	return true, nil
}

// PowerState reads the current power state from the system resource.
func (c *Controller) PowerState(ctx context.Context) (string, bool) {
	ok, payload := c.bmc.Call(ctx, http.MethodGet, systemPath, nil)
	if !ok {
		return "", false
	}
	return payload.String("PowerState"), true
}

// waitForPowerState polls the system resource at a fixed interval until
// it reports want or the power timeout elapses. Failed polls count
// against the deadline but never abort the wait.
func (c *Controller) waitForPowerState(ctx context.Context, want string) bool {
	deadline := time.Now().Add(c.defaults.PowerTimeout.Std())

	for {
		c.metrics.PollCycle(c.name, "power")

		state, ok := c.PowerState(ctx)
		if ok && state == want {
			log.Info().
				Str("device", c.name).
				Str("state", state).
				Msg("power state reached")
			return true
		}
		if ok {
			log.Debug().
				Str("device", c.name).
				Str("state", state).
				Str("want", want).
				Msg("power state poll")
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			log.Error().
				Str("device", c.name).
				Str("want", want).
				Str("last", state).
				Msg("timed out waiting for power state")
			return false
		}

		select {
		case <-ctx.Done():
		case <-time.After(c.defaults.PollInterval.Std()):
		}
	}
}

// settle sleeps the configured settle delay after a one-shot action.
func (c *Controller) settle(action string) {
	delay := c.defaults.SettleDelay.Std()
	log.Debug().
		Str("device", c.name).
		Str("action", action).
		Dur("delay", delay).
		Msg("waiting for device to settle")
	c.sleep(delay)
}
