package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openrack/trayctl/pkg/transports/shell"
)

func testRunner(transport *fakeTransport) *CommandRunner {
	return NewCommandRunner("tray-01", transport, "factory", time.Second, nil, nil)
}

func TestExecSuccess(t *testing.T) {
	transport := newFakeTransport()
	transport.script["uptime"] = scriptedRun{result: shell.ExecResult{Stdout: "up 3 days", ExitCode: 0}}
	runner := testRunner(transport)

	var out ExecOutput
	if !runner.Exec(context.Background(), "uptime", false, 0, &out) {
		t.Fatal("exec failed")
	}
	if out.Stdout != "up 3 days" {
		t.Errorf("stdout = %q", out.Stdout)
	}
}

func TestExecElevationWrapsCommand(t *testing.T) {
	transport := newFakeTransport()
	runner := testRunner(transport)

	if !runner.Exec(context.Background(), "systemctl restart fwagent", true, 0, nil) {
		t.Fatal("exec failed")
	}
	if got := transport.runs[0]; got != "sudo -S -p '' systemctl restart fwagent" {
		t.Errorf("command = %q", got)
	}
	if got := transport.stdins[0]; got != "factory\n" {
		t.Errorf("stdin = %q, want credential feed", got)
	}
}

func TestExecBenignReclassification(t *testing.T) {
	tests := []struct {
		name   string
		result shell.ExecResult
		want   bool
	}{
		{
			"already de-activated",
			shell.ExecResult{Stderr: "ERROR: slot B is already de-activated", ExitCode: 2},
			true,
		},
		{
			"already updated",
			shell.ExecResult{Stdout: "component already updated to 2.10", ExitCode: 1},
			true,
		},
		{
			"pending reset",
			shell.ExecResult{Stdout: "activation pending reset", ExitCode: 1},
			true,
		},
		{
			"marker case-insensitive",
			shell.ExecResult{Stderr: "Already Updated", ExitCode: 1},
			true,
		},
		{
			"genuine failure",
			shell.ExecResult{Stderr: "flash verification failed", ExitCode: 1},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			transport.script["vendor-tool activate"] = scriptedRun{result: tt.result}
			runner := testRunner(transport)

			if got := runner.Exec(context.Background(), "vendor-tool activate", false, 0, nil); got != tt.want {
				t.Errorf("Exec() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecTransportError(t *testing.T) {
	transport := newFakeTransport()
	transport.script["uptime"] = scriptedRun{
		result: shell.ExecResult{ExitCode: -1},
		err:    &shell.TransportError{Op: "exec", Err: errors.New("connection reset"), IsTemporary: true},
	}
	runner := testRunner(transport)

	if runner.Exec(context.Background(), "uptime", false, 0, nil) {
		t.Error("transport error must fail the exec")
	}
}

func TestTransferFilesPairingCheckedBeforeNetwork(t *testing.T) {
	transport := newFakeTransport()
	runner := testRunner(transport)

	ok := runner.TransferFiles(context.Background(),
		[]string{"/tmp/a", "/tmp/b"}, "/var/lib/staging", []string{"/only/one"}, false)
	if ok {
		t.Error("mismatched path lists must fail")
	}
	if transport.connects != 0 || len(transport.uploads) != 0 {
		t.Error("validation failure must precede any network traffic")
	}
}

func TestTransferFilesMissingLocal(t *testing.T) {
	transport := newFakeTransport()
	runner := testRunner(transport)

	if runner.TransferFiles(context.Background(), []string{"/nonexistent.bin"}, "/var/lib/staging", nil, false) {
		t.Error("missing local file must fail")
	}
	if len(transport.uploads) != 0 {
		t.Error("no upload may happen for a missing file")
	}
}

func TestTransferFilesBasenameNormalization(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "nested", "cpld_tray.vme")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(local, []byte("bits"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	transport := newFakeTransport()
	runner := testRunner(transport)

	if !runner.TransferFiles(context.Background(), []string{local}, "/var/lib/staging", nil, false) {
		t.Fatal("transfer failed")
	}
	if got := transport.uploads[0].remote; got != "/var/lib/staging/cpld_tray.vme" {
		t.Errorf("remote = %q, want base name under staging dir", got)
	}
}

func TestTransferFilesExecutableBit(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "install.sh")
	if err := os.WriteFile(local, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	transport := newFakeTransport()
	runner := testRunner(transport)

	if !runner.TransferFiles(context.Background(), []string{local}, "/var/lib/staging", nil, true) {
		t.Fatal("transfer failed")
	}
	if got := transport.uploads[0].mode; got != 0o755 {
		t.Errorf("mode = %o, want 755", got)
	}

	found := false
	for _, cmd := range transport.runs {
		if strings.HasPrefix(cmd, "chmod +x ") {
			found = true
		}
	}
	if !found {
		t.Error("expected follow-up chmod command")
	}
}

func TestMatchBenignMarker(t *testing.T) {
	if marker := matchBenignMarker("everything is fine"); marker != "" {
		t.Errorf("unexpected marker %q", marker)
	}
	if marker := matchBenignMarker("firmware already updated\n"); marker != "already updated" {
		t.Errorf("marker = %q", marker)
	}
}
