package device

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openrack/trayctl/pkg/telemetry"
	"github.com/openrack/trayctl/pkg/transports/shell"
)

// benignMarkers are substrings that reclassify a non-zero exit to
// success. Vendor tools exit non-zero for states that are exactly what
// provisioning wants to reach, such as deactivating an already inactive
// slot.
var benignMarkers = []string{
	"already de-activated",
	"already updated",
	"pending reset",
}

// ExecOutput carries the captured output of a remote command for callers
// that need to inspect it.
type ExecOutput struct {
	Stdout string
	Stderr string
}

// CommandRunner executes commands and stages files on the host OS over
// the shell transport. All outcomes collapse to a boolean; transport and
// command failures are logged here.
type CommandRunner struct {
	device    string
	transport shell.Transport
	password  string
	timeout   time.Duration
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
}

// NewCommandRunner wires a runner to one shell transport.
func NewCommandRunner(device string, transport shell.Transport, password string, timeout time.Duration, metrics *telemetry.Metrics, events *telemetry.EventPublisher) *CommandRunner {
	return &CommandRunner{
		device:    device,
		transport: transport,
		password:  password,
		timeout:   timeout,
		metrics:   metrics,
		events:    events,
	}
}

// Close tears down the underlying transport connection.
func (r *CommandRunner) Close() {
	if err := r.transport.Disconnect(); err != nil {
		log.Warn().Err(err).Str("device", r.device).Msg("shell disconnect failed")
	}
}

// Exec runs one command, optionally elevated, and reports success. A
// non-zero exit whose output contains a benign marker is reclassified to
// success with a warning. out may be nil when the caller only needs the
// verdict; timeout zero uses the runner default.
func (r *CommandRunner) Exec(ctx context.Context, cmd string, elevate bool, timeout time.Duration, out *ExecOutput) bool {
	if err := r.transport.Connect(ctx); err != nil {
		log.Error().Err(err).Str("device", r.device).Msg("shell connect failed")
		return false
	}

	runCmd := cmd
	stdin := ""
	if elevate {
		// -S reads the credential from stdin; -p '' suppresses the prompt
		// so it never lands in captured output.
		runCmd = "sudo -S -p '' " + cmd
		stdin = r.password + "\n"
	}
	if timeout <= 0 {
		timeout = r.timeout
	}

	result, err := r.transport.Run(ctx, runCmd, stdin, timeout)
	if out != nil {
		out.Stdout = result.Stdout
		out.Stderr = result.Stderr
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("device", r.device).
			Str("command", cmd).
			Msg("remote command failed to run")
		return false
	}

	if result.ExitCode == 0 {
		return true
	}

	if marker := matchBenignMarker(result.Combined()); marker != "" {
		log.Warn().
			Str("device", r.device).
			Str("command", cmd).
			Int("exit_code", result.ExitCode).
			Str("marker", marker).
			Msg("non-zero exit reclassified as benign")

		r.metrics.BenignReclassification(r.device)
		r.events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeBenignFailure,
			Device:  r.device,
			Level:   telemetry.EventLevelWarning,
			Message: "non-zero exit reclassified as benign",
			Data:    map[string]any{"command": cmd, "exit_code": result.ExitCode, "marker": marker},
		})
		return true
	}

	log.Error().
		Str("device", r.device).
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Str("stderr", result.Stderr).
		Msg("remote command failed")
	return false
}

// TransferFiles stages local files on the remote host. When remotePaths
// is empty each file lands in remoteBase under its own base name;
// otherwise remotePaths must pair up with localPaths one to one, checked
// before any network traffic. makeExecutable additionally sets the
// executable bit on each staged file via a follow-up command.
func (r *CommandRunner) TransferFiles(ctx context.Context, localPaths []string, remoteBase string, remotePaths []string, makeExecutable bool) bool {
	if len(remotePaths) > 0 && len(remotePaths) != len(localPaths) {
		log.Error().
			Str("device", r.device).
			Int("local", len(localPaths)).
			Int("remote", len(remotePaths)).
			Msg("transfer path lists do not pair up")
		return false
	}

	for _, local := range localPaths {
		if _, err := os.Stat(local); err != nil {
			log.Error().Err(err).Str("device", r.device).Str("path", local).Msg("local file missing")
			return false
		}
	}

	if err := r.transport.Connect(ctx); err != nil {
		log.Error().Err(err).Str("device", r.device).Msg("shell connect failed")
		return false
	}

	var mode uint32 = 0o644
	if makeExecutable {
		mode = 0o755
	}

	for i, local := range localPaths {
		remote := path.Join(remoteBase, filepath.Base(local))
		if len(remotePaths) > 0 {
			remote = remotePaths[i]
		}

		if err := r.transport.Upload(ctx, local, remote, mode); err != nil {
			log.Error().
				Err(err).
				Str("device", r.device).
				Str("local", local).
				Str("remote", remote).
				Msg("file transfer failed")
			return false
		}

		if makeExecutable && !r.Exec(ctx, "chmod +x "+remote, false, 0, nil) {
			return false
		}
	}
	return true
}

// matchBenignMarker returns the first marker found in output, or "".
func matchBenignMarker(output string) string {
	lowered := strings.ToLower(output)
	for _, marker := range benignMarkers {
		if strings.Contains(lowered, marker) {
			return marker
		}
	}
	return ""
}
