package device

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openrack/trayctl/pkg/transports/redfish"
)

func writeBundle(t *testing.T) string {
	t.Helper()
	bundle := filepath.Join(t.TempDir(), "bmc_fw_2.10.tar.gz")
	if err := os.WriteFile(bundle, []byte("bundle-bits"), 0o644); err != nil {
		t.Fatalf("failed to write bundle: %v", err)
	}
	return bundle
}

func TestUpdateFirmwarePrimary(t *testing.T) {
	bmc := newFakeCaller()
	bmc.uploadPayload = redfish.Payload{"Id": "7"}
	bmc.respond(http.MethodGet, testTaskURI,
		okResp(taskPayload(TaskStateRunning, 40)),
		okResp(taskPayload(TaskStateCompleted, 100)),
	)
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{
		Target:   TargetPrimary,
		Timeout:  time.Second,
		Interval: time.Millisecond,
	})
	if err != nil || !ok {
		t.Fatalf("update = (%v, %v), want success", ok, err)
	}
	if len(bmc.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(bmc.uploads))
	}
}

func TestUpdateFirmwareForcePropagates(t *testing.T) {
	bmc := newFakeCaller()
	bmc.uploadPayload = redfish.Payload{"Id": "7"}
	bmc.respond(http.MethodGet, testTaskURI, okResp(taskPayload(TaskStateCompleted, 100)))
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{
		Force:    true,
		Timeout:  time.Second,
		Interval: time.Millisecond,
	})
	if err != nil || !ok {
		t.Fatalf("update = (%v, %v), want success", ok, err)
	}

	params, _ := bmc.uploadParams[0].(updateParameters)
	if !params.ForceUpdate {
		t.Error("ForceUpdate not carried into the update parameters")
	}
}

func TestUpdateFirmwareUploadRejected(t *testing.T) {
	bmc := newFakeCaller()
	bmc.uploadPayload = embeddedErrPayload("bundle signature invalid")
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("embedded error in the upload response must fail the update")
	}
}

func TestUpdateFirmwareNoTaskReference(t *testing.T) {
	bmc := newFakeCaller()
	bmc.uploadPayload = redfish.Payload{"raw": "accepted"}
	c := testController(ModeDisabled, bmc, nil, nil)

	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("a response without a task reference must fail the update")
	}
}

func TestUpdateFirmwareLingeringTaskIsNotVerified(t *testing.T) {
	bmc := newFakeCaller()
	bmc.uploadPayload = redfish.Payload{"Id": "7"}
	bmc.respond(http.MethodGet, testTaskURI, okResp(taskPayload(TaskStateRunning, 90)))
	c := testController(ModeDisabled, bmc, nil, nil)

	// The monitor tolerates the timeout, but an update that never
	// reached Completed is still a failed update.
	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{
		Timeout:  20 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("a task still running at the deadline must not verify the update")
	}
}

func TestUpdateFirmwareSecondaryStagesFirst(t *testing.T) {
	bmc := newFakeCaller()
	hmc := newFakeCaller()
	hmc.uploadPayload = redfish.Payload{"Id": "7"}
	hmc.respond(http.MethodGet, testTaskURI, okResp(taskPayload(TaskStateCompleted, 100)))
	transport := newFakeTransport()
	c := testController(ModeDisabled, bmc, hmc, transport)

	bundle := writeBundle(t)
	ok, err := c.UpdateFirmware(context.Background(), bundle, UpdateOptions{
		Target:   TargetSecondary,
		Timeout:  time.Second,
		Interval: time.Millisecond,
	})
	if err != nil || !ok {
		t.Fatalf("update = (%v, %v), want success", ok, err)
	}

	if len(transport.uploads) != 1 {
		t.Fatalf("staged files = %d, want 1", len(transport.uploads))
	}
	want := "/var/lib/staging/" + filepath.Base(bundle)
	if transport.uploads[0].remote != want {
		t.Errorf("staged path = %q, want %q", transport.uploads[0].remote, want)
	}
	if len(hmc.uploads) != 1 {
		t.Errorf("multipart pushes to secondary = %d, want 1", len(hmc.uploads))
	}
	if len(bmc.uploads) != 0 {
		t.Errorf("primary received %d pushes, want 0", len(bmc.uploads))
	}
}

func TestUpdateFirmwareSecondaryWithoutController(t *testing.T) {
	c := testController(ModeDisabled, newFakeCaller(), nil, newFakeTransport())

	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{Target: TargetSecondary})
	if ok {
		t.Error("expected failure")
	}
	if !IsConfigError(err) {
		t.Errorf("err = %v, want configuration fault", err)
	}
}

func TestUpdateFirmwareSecondaryWithoutHostOS(t *testing.T) {
	c := testController(ModeDisabled, newFakeCaller(), newFakeCaller(), nil)

	ok, err := c.UpdateFirmware(context.Background(), writeBundle(t), UpdateOptions{Target: TargetSecondary})
	if ok {
		t.Error("expected failure")
	}
	if !IsConfigError(err) {
		t.Errorf("err = %v, want configuration fault", err)
	}
}

func TestFirmwareInventory(t *testing.T) {
	bmc := newFakeCaller()
	bmc.respond(http.MethodGet, inventoryPath, okResp(redfish.Payload{
		"Members": []any{
			map[string]any{"@odata.id": inventoryPath + "/HostBIOS"},
			map[string]any{"@odata.id": inventoryPath + "/BMC"},
		},
	}))
	c := testController(ModeDisabled, bmc, nil, nil)

	names, ok, err := c.FirmwareInventory(context.Background(), TargetPrimary)
	if err != nil || !ok {
		t.Fatalf("inventory = (%v, %v), want success", ok, err)
	}
	if len(names) != 2 || names[0] != "BMC" || names[1] != "HostBIOS" {
		t.Errorf("names = %v, want sorted [BMC HostBIOS]", names)
	}
}
