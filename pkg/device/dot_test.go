package device

import (
	"context"
	"net/http"
	"testing"
)

func TestSecurityGatePermits(t *testing.T) {
	tests := []struct {
		mode SecurityMode
		op   GatedOp
		want bool
	}{
		{ModeDisabled, GatedKeyInstall, false},
		{ModeVolatile, GatedKeyInstall, true},
		{ModeLocking, GatedKeyInstall, true},
		{ModeDisabled, GatedKeyLock, false},
		{ModeVolatile, GatedKeyLock, false},
		{ModeLocking, GatedKeyLock, true},
		{ModeDisabled, GatedBootMode, false},
		{ModeVolatile, GatedBootMode, true},
		{ModeLocking, GatedBootMode, true},
		{ModeDisabled, GatedVolatileOnlyPower, false},
		{ModeVolatile, GatedVolatileOnlyPower, true},
		{ModeLocking, GatedVolatileOnlyPower, false},
	}

	for _, tt := range tests {
		gate := NewSecurityGate("tray-01", tt.mode, nil, nil)
		if got := gate.Permits(tt.op); got != tt.want {
			t.Errorf("Permits(%s, %s) = %v, want %v", tt.mode, tt.op, got, tt.want)
		}
	}
}

func TestParseSecurityMode(t *testing.T) {
	for _, valid := range []string{"disabled", "volatile", "locking"} {
		if _, err := ParseSecurityMode(valid); err != nil {
			t.Errorf("ParseSecurityMode(%q) = %v", valid, err)
		}
	}
	if _, err := ParseSecurityMode("permanent"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestInstallOwnershipKeyDisabledIsVeto(t *testing.T) {
	bmc := newFakeCaller()
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.InstallOwnershipKey(context.Background(), "key", "sig")
	if err != nil || !ok {
		t.Fatalf("install = (%v, %v), want vetoed success", ok, err)
	}
	if len(bmc.calls) != 0 {
		t.Error("vetoed install must not touch the transport")
	}
}

func TestInstallOwnershipKeyLifetime(t *testing.T) {
	tests := []struct {
		mode SecurityMode
		want string
	}{
		{ModeVolatile, "Volatile"},
		{ModeLocking, "Persistent"},
	}

	for _, tt := range tests {
		bmc := newFakeCaller()
		bmc.respond(http.MethodPost, keyInstallPath, okResp(nil))
		c := testController(tt.mode, bmc, nil, nil)

		ok, err := c.InstallOwnershipKey(context.Background(), "key", "sig")
		if err != nil || !ok {
			t.Fatalf("install under %s = (%v, %v), want success", tt.mode, ok, err)
		}
		body, _ := bmc.lastBody(http.MethodPost, keyInstallPath).(map[string]string)
		if body["Lifetime"] != tt.want {
			t.Errorf("mode %s: lifetime = %q, want %q", tt.mode, body["Lifetime"], tt.want)
		}
	}
}

func TestInstallOwnershipKeyMissingMaterial(t *testing.T) {
	tests := []struct {
		name    string
		keyBlob string
		sig     string
	}{
		{"no material at all", "", ""},
		{"key without signature", "key", ""},
		{"signature without key", "", "sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bmc := newFakeCaller()
			c := testController(ModeVolatile, bmc, nil, nil)

			ok, err := c.InstallOwnershipKey(context.Background(), tt.keyBlob, tt.sig)
			if err != nil || !ok {
				t.Fatalf("install = (%v, %v), want success with nothing to install", ok, err)
			}
			if len(bmc.calls) != 0 {
				t.Error("missing key material must not touch the transport")
			}
		})
	}
}

func TestLockOwnershipKeyOnlyUnderLocking(t *testing.T) {
	for _, mode := range []SecurityMode{ModeDisabled, ModeVolatile} {
		bmc := newFakeCaller()
		c := testController(mode, bmc, nil, nil)

		ok, err := c.LockOwnershipKey(context.Background())
		if err != nil || !ok {
			t.Fatalf("lock under %s = (%v, %v), want vetoed success", mode, ok, err)
		}
		if len(bmc.calls) != 0 {
			t.Errorf("mode %s: vetoed lock must not touch the transport", mode)
		}
	}

	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, keyLockPath, okResp(nil))
	c := testController(ModeLocking, bmc, nil, nil)
	ok, err := c.LockOwnershipKey(context.Background())
	if err != nil || !ok {
		t.Fatalf("lock under locking = (%v, %v), want success", ok, err)
	}
	if n := bmc.callCount(http.MethodPost, keyLockPath); n != 1 {
		t.Errorf("lock calls = %d, want 1", n)
	}
}

func TestSetManualBootModeOverrides(t *testing.T) {
	tests := []struct {
		name      string
		mode      SecurityMode
		requested bool
		effective bool
	}{
		{"volatile forces manual boot on", ModeVolatile, false, true},
		{"locking forces manual boot off", ModeLocking, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bmc := newFakeCaller()
			bmc.respond(http.MethodPatch, systemPath, okResp(nil))
			c := testController(tt.mode, bmc, nil, nil)

			ok, err := c.SetManualBootMode(context.Background(), tt.requested)
			if err != nil || !ok {
				t.Fatalf("set boot mode = (%v, %v), want success", ok, err)
			}

			body, _ := bmc.lastBody(http.MethodPatch, systemPath).(map[string]any)
			oem, _ := body["Oem"].(map[string]any)
			if got, _ := oem["ManualBootModeEnabled"].(bool); got != tt.effective {
				t.Errorf("effective = %v, want %v", got, tt.effective)
			}
		})
	}
}

func TestSetManualBootModeDisabledIsVeto(t *testing.T) {
	bmc := newFakeCaller()
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.SetManualBootMode(context.Background(), true)
	if err != nil || !ok {
		t.Fatalf("set boot mode = (%v, %v), want vetoed success", ok, err)
	}
	if len(bmc.calls) != 0 {
		t.Error("vetoed call must not touch the transport")
	}
}

func TestProtectedBootCommand(t *testing.T) {
	transport := newFakeTransport()
	c := testController(ModeVolatile, newFakeCaller(), nil, transport)

	ok, err := c.ProtectedBootCommand(context.Background(), "secvar-tool provision")
	if err != nil || !ok {
		t.Fatalf("protected command = (%v, %v), want success", ok, err)
	}
	if got := transport.runs[0]; got != "sudo -S -p '' secvar-tool provision" {
		t.Errorf("command = %q, want elevated invocation", got)
	}
}

func TestProtectedBootCommandWithoutHostOS(t *testing.T) {
	c := testController(ModeVolatile, newFakeCaller(), nil, nil)

	ok, err := c.ProtectedBootCommand(context.Background(), "secvar-tool provision")
	if ok {
		t.Error("expected failure")
	}
	if !IsConfigError(err) {
		t.Errorf("err = %v, want configuration fault", err)
	}
}
