// Package config loads and validates trayctl fleet configuration.
//
// A fleet file declares one entry per hardware unit: its management
// controller endpoints, its host-OS shell endpoint, the device security
// mode, and the global retry/wait defaults shared by every device. All
// validation happens at load time so that no orchestration call ever runs
// against a malformed endpoint.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML support for values like "90s".
type Duration time.Duration

// UnmarshalYAML parses a duration string or an integer number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Endpoint describes one remote connection target. Endpoints are value
// types: once loaded they are never mutated, and "reconfiguration" means
// constructing a new device controller from a new Fleet.
type Endpoint struct {
	// Address is the hostname or IP of the endpoint.
	Address string `yaml:"address" validate:"required"`

	// Username is the login user.
	Username string `yaml:"username" validate:"required"`

	// Password is the login credential.
	Password string `yaml:"password" validate:"required"`

	// Port is the TCP port, in [1,65535].
	Port int `yaml:"port" validate:"required,min=1,max=65535"`

	// Protocol selects the transport scheme (https for management
	// controllers, ssh for the host OS).
	Protocol string `yaml:"protocol" validate:"required,oneof=http https ssh"`
}

// Defaults holds the global retry and wait settings applied to every
// device unless overridden per device.
type Defaults struct {
	// PowerTimeout bounds power-state polling after a reset action.
	PowerTimeout Duration `yaml:"power_timeout"`

	// PollInterval is the fixed check interval for power-state polling.
	PollInterval Duration `yaml:"poll_interval"`

	// TaskTimeout bounds firmware task monitoring.
	TaskTimeout Duration `yaml:"task_timeout"`

	// TaskPollInterval is the fixed check interval for task polling.
	TaskPollInterval Duration `yaml:"task_poll_interval"`

	// BootTimeout bounds boot-progress polling.
	BootTimeout Duration `yaml:"boot_timeout"`

	// BootPollInterval is the fixed check interval for boot polling.
	BootPollInterval Duration `yaml:"boot_poll_interval"`

	// CommandTimeout bounds a single remote shell command.
	CommandTimeout Duration `yaml:"command_timeout"`

	// SettleDelay is the fixed sleep after one-shot actions such as
	// AC-cycle or BMC reboot.
	SettleDelay Duration `yaml:"settle_delay"`

	// SOLStopTimeout bounds the graceful shutdown of a capture process
	// before it is killed.
	SOLStopTimeout Duration `yaml:"sol_stop_timeout"`
}

// Device describes one hardware unit.
type Device struct {
	// Name identifies the unit in logs, metrics, and the audit store.
	Name string `yaml:"name" validate:"required"`

	// SecurityMode is the DOT mode: disabled, volatile, or locking.
	SecurityMode string `yaml:"security_mode" validate:"required,oneof=disabled volatile locking"`

	// BMC is the primary management controller endpoint.
	BMC Endpoint `yaml:"bmc" validate:"required"`

	// HMC is the secondary management controller endpoint, absent on
	// units that carry only one controller.
	HMC *Endpoint `yaml:"hmc,omitempty"`

	// OS is the host-OS shell endpoint used for staged delivery and
	// vendor CLI invocation.
	OS *Endpoint `yaml:"os,omitempty"`

	// StagingDir is the remote directory bundles are staged into for
	// secondary-controller updates and CPLD installs.
	StagingDir string `yaml:"staging_dir,omitempty"`

	// SOLCommand is the argv invoked to capture the serial console.
	// Stdout of the process is redirected to the session log file.
	SOLCommand []string `yaml:"sol_command,omitempty"`
}

// Fleet is the root of a trayctl configuration file.
type Fleet struct {
	Defaults Defaults `yaml:"defaults"`
	Devices  []Device `yaml:"devices" validate:"required,min=1,dive"`
}

// DefaultDefaults returns the wait settings used when the fleet file
// leaves them unset.
func DefaultDefaults() Defaults {
	return Defaults{
		PowerTimeout:     Duration(5 * time.Minute),
		PollInterval:     Duration(10 * time.Second),
		TaskTimeout:      Duration(30 * time.Minute),
		TaskPollInterval: Duration(15 * time.Second),
		BootTimeout:      Duration(20 * time.Minute),
		BootPollInterval: Duration(15 * time.Second),
		CommandTimeout:   Duration(5 * time.Minute),
		SettleDelay:      Duration(30 * time.Second),
		SOLStopTimeout:   Duration(10 * time.Second),
	}
}

// Load reads and validates a fleet file.
func Load(path string) (*Fleet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates fleet configuration bytes.
func Parse(raw []byte) (*Fleet, error) {
	fleet := &Fleet{Defaults: DefaultDefaults()}
	if err := yaml.Unmarshal(raw, fleet); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := fleet.Validate(); err != nil {
		return nil, err
	}
	return fleet, nil
}

// Validate checks the fleet against struct tags plus the cross-field
// rules the tags cannot express.
func (f *Fleet) Validate() error {
	v := validator.New()
	if err := v.Struct(f); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(f.Devices))
	for i := range f.Devices {
		dev := &f.Devices[i]
		if seen[dev.Name] {
			return fmt.Errorf("invalid config: duplicate device name %q", dev.Name)
		}
		seen[dev.Name] = true

		if err := dev.Validate(); err != nil {
			return fmt.Errorf("device %q: %w", dev.Name, err)
		}
	}
	return nil
}

// Validate checks a single device entry.
func (d *Device) Validate() error {
	if err := validateEndpoint("bmc", &d.BMC); err != nil {
		return err
	}
	if d.HMC != nil {
		if err := validateEndpoint("hmc", d.HMC); err != nil {
			return err
		}
	}
	if d.OS != nil {
		if err := validateEndpoint("os", d.OS); err != nil {
			return err
		}
		if d.OS.Protocol != "ssh" {
			return fmt.Errorf("os endpoint must use ssh, got %q", d.OS.Protocol)
		}
	}
	return nil
}

// Device returns the named device entry, or nil when it is not present.
func (f *Fleet) Device(name string) *Device {
	for i := range f.Devices {
		if f.Devices[i].Name == name {
			return &f.Devices[i]
		}
	}
	return nil
}

func validateEndpoint(label string, ep *Endpoint) error {
	if ep.Address == "" {
		return fmt.Errorf("%s endpoint: address is required", label)
	}
	if ep.Username == "" || ep.Password == "" {
		return fmt.Errorf("%s endpoint: credentials are required", label)
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return fmt.Errorf("%s endpoint: invalid port %d", label, ep.Port)
	}
	return nil
}
