package config

import (
	"strings"
	"testing"
	"time"
)

const validFleet = `
defaults:
  power_timeout: 2m
  poll_interval: 5s
devices:
  - name: tray-01
    security_mode: volatile
    bmc:
      address: 10.1.0.10
      username: admin
      password: secret
      port: 443
      protocol: https
    hmc:
      address: 10.1.0.11
      username: admin
      password: secret
      port: 443
      protocol: https
    os:
      address: 10.1.0.12
      username: root
      password: secret
      port: 22
      protocol: ssh
    staging_dir: /var/tmp/stage
`

func TestParseValidFleet(t *testing.T) {
	fleet, err := Parse([]byte(validFleet))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := fleet.Defaults.PowerTimeout.Std(); got != 2*time.Minute {
		t.Errorf("power_timeout = %v, want 2m", got)
	}
	if got := fleet.Defaults.PollInterval.Std(); got != 5*time.Second {
		t.Errorf("poll_interval = %v, want 5s", got)
	}
	// Unset defaults fall back.
	if got := fleet.Defaults.TaskTimeout.Std(); got != 30*time.Minute {
		t.Errorf("task_timeout = %v, want 30m default", got)
	}

	dev := fleet.Device("tray-01")
	if dev == nil {
		t.Fatal("device tray-01 not found")
	}
	if dev.SecurityMode != "volatile" {
		t.Errorf("security_mode = %q, want volatile", dev.SecurityMode)
	}
	if dev.HMC == nil || dev.HMC.Address != "10.1.0.11" {
		t.Errorf("hmc endpoint not loaded: %+v", dev.HMC)
	}
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(string) string
		wantErr string
	}{
		{
			name:    "port out of range",
			mangle:  func(s string) string { return strings.Replace(s, "port: 443", "port: 70000", 1) },
			wantErr: "max",
		},
		{
			name:    "missing password",
			mangle:  func(s string) string { return strings.Replace(s, "password: secret", "password: \"\"", 1) },
			wantErr: "required",
		},
		{
			name:    "bad security mode",
			mangle:  func(s string) string { return strings.Replace(s, "volatile", "paranoid", 1) },
			wantErr: "oneof",
		},
		{
			name:    "os endpoint not ssh",
			mangle:  func(s string) string { return strings.Replace(s, "protocol: ssh", "protocol: https", 1) },
			wantErr: "must use ssh",
		},
		{
			name:    "bad duration",
			mangle:  func(s string) string { return strings.Replace(s, "2m", "soon", 1) },
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mangle(validFleet)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseRejectsDuplicateDeviceNames(t *testing.T) {
	doubled := validFleet + `
  - name: tray-01
    security_mode: disabled
    bmc:
      address: 10.1.0.20
      username: admin
      password: secret
      port: 443
      protocol: https
`
	_, err := Parse([]byte(doubled))
	if err == nil || !strings.Contains(err.Error(), "duplicate device name") {
		t.Fatalf("expected duplicate-name error, got %v", err)
	}
}

func TestDeviceLookupMissing(t *testing.T) {
	fleet, err := Parse([]byte(validFleet))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev := fleet.Device("tray-99"); dev != nil {
		t.Errorf("expected nil for unknown device, got %+v", dev)
	}
}
