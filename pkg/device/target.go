package device

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openrack/trayctl/pkg/config"
	"github.com/openrack/trayctl/pkg/extract"
	"github.com/openrack/trayctl/pkg/telemetry"
	"github.com/openrack/trayctl/pkg/transports/redfish"
	"github.com/openrack/trayctl/pkg/transports/shell"
)

// Target selects which management controller an operation addresses.
type Target string

// Management controller targets.
const (
	// TargetPrimary is the BMC, present on every unit.
	TargetPrimary Target = "primary"

	// TargetSecondary is the HMC, present only on units that carry a
	// second controller.
	TargetSecondary Target = "secondary"
)

// Caller is the management-HTTP contract the orchestration core depends
// on. *redfish.Client is the production implementation.
type Caller interface {
	Call(ctx context.Context, method, path string, body any) (bool, redfish.Payload)
	UploadMultipart(ctx context.Context, path string, bundlePath string, params any) (bool, redfish.Payload)
}

// Unpacker extracts a firmware package into a scratch directory.
// *extract.ArchiveUnpacker is the production implementation.
type Unpacker interface {
	Unpack(packagePath, destDir string) bool
}

// Redfish-style resource paths on the management controllers.
const (
	systemPath          = "/redfish/v1/Systems/1"
	systemResetPath     = systemPath + "/Actions/ComputerSystem.Reset"
	chassisResetPath    = "/redfish/v1/Chassis/1/Actions/Chassis.Reset"
	managerPath         = "/redfish/v1/Managers/1"
	managerResetPath    = managerPath + "/Actions/Manager.Reset"
	managerDefaultsPath = managerPath + "/Actions/Manager.ResetToDefaults"
	updateMultipartPath = "/redfish/v1/UpdateService/update-multipart"
	inventoryPath       = "/redfish/v1/UpdateService/FirmwareInventory"
	taskPath            = "/redfish/v1/TaskService/Tasks"
	keyInstallPath      = managerPath + "/Oem/DOT/Actions/DOT.KeyInstall"
	keyLockPath         = managerPath + "/Oem/DOT/Actions/DOT.KeyLock"
)

// Controller orchestrates one hardware unit. It is not safe for
// concurrent use; run one controller per unit and drive it from a single
// goroutine.
type Controller struct {
	name     string
	dev      config.Device
	defaults config.Defaults

	bmc    Caller
	hmc    Caller
	runner *CommandRunner
	sol    *SOLManager
	gate   *SecurityGate
	unpack Unpacker

	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher

	// sleep and removeScratch exist so tests can intercept waits and
	// scratch-directory cleanup.
	sleep         func(time.Duration)
	removeScratch func(string) error
}

// NewController wires the transports for one device entry. Malformed
// entries fail here, before any operation runs.
func NewController(dev config.Device, defaults config.Defaults, metrics *telemetry.Metrics, events *telemetry.EventPublisher) (*Controller, error) {
	mode, err := ParseSecurityMode(dev.SecurityMode)
	if err != nil {
		return nil, configErr(dev.Name, "new_controller", "%v", err)
	}

	bmc, err := redfish.NewClient(dev.BMC, defaults.CommandTimeout.Std())
	if err != nil {
		return nil, configErr(dev.Name, "new_controller", "bmc endpoint: %v", err)
	}

	c := &Controller{
		name:          dev.Name,
		dev:           dev,
		defaults:      defaults,
		bmc:           bmc,
		gate:          NewSecurityGate(dev.Name, mode, metrics, events),
		unpack:        extract.NewArchiveUnpacker(),
		metrics:       metrics,
		events:        events,
		sleep:         time.Sleep,
		removeScratch: removeScratchDir,
	}

	if dev.HMC != nil {
		hmc, err := redfish.NewClient(*dev.HMC, defaults.CommandTimeout.Std())
		if err != nil {
			return nil, configErr(dev.Name, "new_controller", "hmc endpoint: %v", err)
		}
		c.hmc = hmc
	}

	if dev.OS != nil {
		transport, err := shell.NewClient(shell.FromEndpoint(*dev.OS, defaults.CommandTimeout.Std()))
		if err != nil {
			return nil, configErr(dev.Name, "new_controller", "os endpoint: %v", err)
		}
		c.runner = NewCommandRunner(dev.Name, transport, dev.OS.Password, defaults.CommandTimeout.Std(), metrics, events)
	}

	c.sol = NewSOLManager(dev.Name, dev.SOLCommand, defaults.SOLStopTimeout.Std())

	return c, nil
}

// Name returns the device name.
func (c *Controller) Name() string {
	return c.name
}

// Gate returns the device's security gate.
func (c *Controller) Gate() *SecurityGate {
	return c.gate
}

// Close releases transport resources and stops any console captures.
func (c *Controller) Close() {
	c.sol.CloseAll()
	if c.runner != nil {
		c.runner.Close()
	}
}

// caller resolves the management client for a target. Asking for the
// secondary controller on a unit without one is a configuration fault.
func (c *Controller) caller(op string, target Target) (Caller, error) {
	switch target {
	case TargetPrimary, "":
		return c.bmc, nil
	case TargetSecondary:
		if c.hmc == nil {
			return nil, configErr(c.name, op, "device has no secondary controller")
		}
		return c.hmc, nil
	}
	return nil, configErr(c.name, op, "unknown target %q", target)
}

// action issues one mutating call and applies the double success check:
// transport ok plus no embedded error in the response body.
func (c *Controller) action(ctx context.Context, call Caller, target Target, name, method, path string, body any) bool {
	c.metrics.ActionIssued(c.name, name, string(target))
	c.events.Publish(telemetry.Event{
		Type:      telemetry.EventTypeActionIssued,
		Device:    c.name,
		Operation: name,
		Level:     telemetry.EventLevelInfo,
		Message:   "issuing " + name,
		Data:      map[string]any{"target": string(target), "path": path},
	})

	ok, payload := call.Call(ctx, method, path, body)
	if !ok {
		log.Error().
			Str("device", c.name).
			Str("action", name).
			Str("target", string(target)).
			Msg("action call failed")
		return false
	}
	if msg, bad := payload.EmbeddedError(); bad {
		log.Error().
			Str("device", c.name).
			Str("action", name).
			Str("target", string(target)).
			Str("remote_error", msg).
			Msg("action rejected by controller")
		return false
	}
	return true
}

// finishOp records metrics and the finished event for a public operation.
func (c *Controller) finishOp(operation string, start time.Time, ok bool) {
	elapsed := time.Since(start)
	c.metrics.OperationFinished(c.name, operation, ok, elapsed)

	level := telemetry.EventLevelInfo
	if !ok {
		level = telemetry.EventLevelError
	}
	c.events.Publish(telemetry.Event{
		Type:      telemetry.EventTypeOperationFinished,
		Device:    c.name,
		Operation: operation,
		Level:     level,
		Message:   "operation finished",
		Data:      map[string]any{"ok": ok, "duration": elapsed.String()},
	})
}

// startOp publishes the started event and returns the start time.
func (c *Controller) startOp(operation string) time.Time {
	c.events.Publish(telemetry.Event{
		Type:      telemetry.EventTypeOperationStarted,
		Device:    c.name,
		Operation: operation,
		Level:     telemetry.EventLevelInfo,
		Message:   "operation started",
	})
	return time.Now()
}
