package device

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestPowerOnIssuesActionAndWaits(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, systemResetPath, okResp(nil))
	bmc.respond(http.MethodGet, systemPath,
		okResp(powerPayload("PoweringOn")),
		okResp(powerPayload(PowerStateOn)),
	)
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.PowerOn(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("power on failed")
	}

	body, _ := bmc.lastBody(http.MethodPost, systemResetPath).(map[string]string)
	if body["ResetType"] != "On" {
		t.Errorf("reset type = %q, want On", body["ResetType"])
	}
}

func TestPowerOnVolatileOnlyVetoed(t *testing.T) {
	bmc := newFakeCaller()
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.PowerOn(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("vetoed operation must report success")
	}
	if n := len(bmc.calls); n != 0 {
		t.Errorf("vetoed operation issued %d transport calls", n)
	}
}

func TestPowerOnVolatileModeProceeds(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, systemResetPath, okResp(nil))
	bmc.respond(http.MethodGet, systemPath, okResp(powerPayload(PowerStateOn)))
	c := testController(ModeVolatile, bmc, nil, nil)

	ok, err := c.PowerOn(context.Background(), true)
	if err != nil || !ok {
		t.Fatalf("power on = (%v, %v), want success", ok, err)
	}
	if n := bmc.callCount(http.MethodPost, systemResetPath); n != 1 {
		t.Errorf("reset actions issued = %d, want 1", n)
	}
}

func TestPowerOnTransportFailure(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, systemResetPath, failResp())
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.PowerOn(context.Background(), false)
	if err != nil {
		t.Fatalf("transport failure must not surface as error: %v", err)
	}
	if ok {
		t.Error("expected failure when the action call fails")
	}
}

func TestPowerOnEmbeddedError(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, systemResetPath, okResp(embeddedErrPayload("chassis intrusion latch open")))
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.PowerOn(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("embedded error in a 2xx response must fail the action")
	}
}

func TestPowerOffAlwaysIssuesAction(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, systemResetPath, okResp(nil))
	// Unit is already off; the action still goes out.
	bmc.respond(http.MethodGet, systemPath, okResp(powerPayload(PowerStateOff)))
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.PowerOff(context.Background(), true)
	if err != nil || !ok {
		t.Fatalf("power off = (%v, %v), want success", ok, err)
	}
	if n := bmc.callCount(http.MethodPost, systemResetPath); n != 1 {
		t.Errorf("reset actions issued = %d, want 1", n)
	}
	body, _ := bmc.lastBody(http.MethodPost, systemResetPath).(map[string]string)
	if body["ResetType"] != "ForceOff" {
		t.Errorf("reset type = %q, want ForceOff", body["ResetType"])
	}
}

func TestPowerWaitTimeout(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, systemResetPath, okResp(nil))
	bmc.respond(http.MethodGet, systemPath, okResp(powerPayload("PoweringOn")))
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.PowerOn(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure when the power state never settles")
	}
}

func TestACCycleSettlesWithoutPolling(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodPost, chassisResetPath, okResp(nil))
	c := testController(ModeVolatile, bmc, nil, nil)

	settles := 0
	c.sleep = func(time.Duration) { settles++ }

	ok, err := c.ACCycle(context.Background(), true)
	if err != nil || !ok {
		t.Fatalf("ac cycle = (%v, %v), want success", ok, err)
	}
	if settles != 1 {
		t.Errorf("settle delays = %d, want 1", settles)
	}
	// No power-state poll follows; the controller itself went away.
	if n := bmc.callCount(http.MethodGet, systemPath); n != 0 {
		t.Errorf("unexpected power polls after ac cycle: %d", n)
	}
}

func TestACCycleVolatileOnlyVetoedOutsideVolatileMode(t *testing.T) {
	bmc := newFakeCaller()
	c := testController(ModeLocking, bmc, nil, nil)

	ok, err := c.ACCycle(context.Background(), true)
	if err != nil || !ok {
		t.Fatalf("ac cycle = (%v, %v), want vetoed success", ok, err)
	}
	if n := len(bmc.calls); n != 0 {
		t.Errorf("vetoed operation issued %d transport calls", n)
	}
}

func TestFactoryResetHMCWithoutSecondary(t *testing.T) {
	c := testController(ModeDisabled, newFakeCaller(), nil, nil)

	ok, err := c.FactoryResetHMC(context.Background(), false)
	if ok {
		t.Error("expected failure")
	}
	if !IsConfigError(err) {
		t.Errorf("err = %v, want configuration fault", err)
	}
}

func TestFactoryResetHMC(t *testing.T) {
	hmc := newFakeCaller()
	hmc.respond(http.MethodPost, managerDefaultsPath, okResp(nil))
	c := testController(ModeDisabled, newFakeCaller(), hmc, nil)

	ok, err := c.FactoryResetHMC(context.Background(), false)
	if err != nil || !ok {
		t.Fatalf("factory reset = (%v, %v), want success", ok, err)
	}
	if n := hmc.callCount(http.MethodPost, managerDefaultsPath); n != 1 {
		t.Errorf("reset actions issued = %d, want 1", n)
	}
}
