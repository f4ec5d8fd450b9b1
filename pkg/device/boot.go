package device

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Boot progress states reported under BootProgress.LastState.
const (
	BootStateOSRunning   = "OSRunning"
	BootStateSystemSetup = "SetupEntered"
)

// BootOptions configures one boot supervision run.
type BootOptions struct {
	// TargetStates are the boot-progress states that count as booted.
	// Empty means OSRunning.
	TargetStates []string

	// ConsoleLogPath, when set, captures the serial console to this file
	// for the duration of the wait.
	ConsoleLogPath string

	// Timeout and Interval override the configured boot polling
	// defaults when non-zero.
	Timeout  time.Duration
	Interval time.Duration
}

// BootStatusOK decodes a vendor boot-status register dump. The register
// is a hex string; the two characters at offset 14 encode the
// boot-complete flags and must both be set.
func BootStatusOK(status string) bool {
	if len(status) < 16 {
		return false
	}
	return status[14:16] == "11"
}

// WaitForBoot powers the unit on and supervises the boot until the
// system reports one of the target progress states. When console capture
// is requested the capture is started before anything touches the power
// state, so the log covers the boot from the first instruction, and is
// always stopped on the way out, whatever the outcome.
func (c *Controller) WaitForBoot(ctx context.Context, opts BootOptions) (ok bool, err error) {
	start := c.startOp("wait_for_boot")
	defer func() { c.finishOp("wait_for_boot", start, ok) }()

	targets := opts.TargetStates
	if len(targets) == 0 {
		targets = []string{BootStateOSRunning}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.defaults.BootTimeout.Std()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = c.defaults.BootPollInterval.Std()
	}

	if opts.ConsoleLogPath != "" {
		if !c.sol.Start(opts.ConsoleLogPath) {
			return false, nil
		}
		defer c.sol.Stop(opts.ConsoleLogPath)
	}

	if !c.powerOn(ctx) {
		return false, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		c.metrics.PollCycle(c.name, "boot")

		ok, payload := c.bmc.Call(ctx, http.MethodGet, systemPath, nil)
		if ok {
			state := payload.Map("BootProgress").String("LastState")
			log.Debug().
				Str("device", c.name).
				Str("boot_state", state).
				Msg("boot progress poll")

			for _, want := range targets {
				if state == want {
					log.Info().
						Str("device", c.name).
						Str("boot_state", state).
						Msg("boot target state reached")
					return true, nil
				}
			}
		} else {
			// The host resetting mid-boot takes the controller's web
			// service with it briefly; treat a failed poll like any other
			// not-yet-booted observation.
			log.Warn().Str("device", c.name).Msg("boot progress poll failed, retrying")
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			log.Error().
				Str("device", c.name).
				Dur("timeout", timeout).
				Msg("timed out waiting for boot")
			return false, nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}

// CheckBootStatus polls the vendor boot-status register until it decodes
// as booted or the timeout elapses. It complements WaitForBoot on units
// whose progress resource lags the actual host state.
func (c *Controller) CheckBootStatus(ctx context.Context, timeout, interval time.Duration) (ok bool, err error) {
	start := c.startOp("check_boot_status")
	defer func() { c.finishOp("check_boot_status", start, ok) }()

	if timeout <= 0 {
		timeout = c.defaults.BootTimeout.Std()
	}
	if interval <= 0 {
		interval = c.defaults.BootPollInterval.Std()
	}

	deadline := time.Now().Add(timeout)
	for {
		c.metrics.PollCycle(c.name, "boot_status")

		callOK, payload := c.bmc.Call(ctx, http.MethodGet, systemPath, nil)
		if callOK {
			status := payload.Map("Oem").String("BootStatusCode")
			if BootStatusOK(status) {
				log.Info().
					Str("device", c.name).
					Str("boot_status", status).
					Msg("boot status register reports booted")
				return true, nil
			}
			log.Debug().
				Str("device", c.name).
				Str("boot_status", status).
				Msg("boot status poll")
		}

		if time.Now().After(deadline) || ctx.Err() != nil {
			log.Error().Str("device", c.name).Msg("timed out waiting for boot status")
			return false, nil
		}

		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}
