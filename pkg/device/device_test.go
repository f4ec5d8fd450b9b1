package device

import (
	"context"
	"sync"
	"time"

	"github.com/openrack/trayctl/pkg/config"
	"github.com/openrack/trayctl/pkg/transports/redfish"
	"github.com/openrack/trayctl/pkg/transports/shell"
)

// fakeResponse is one scripted transport answer.
type fakeResponse struct {
	ok      bool
	payload redfish.Payload
}

// recordedCall is one call the fake observed.
type recordedCall struct {
	method string
	path   string
	body   any
}

// fakeCaller scripts management-HTTP answers per method+path. Responses
// queue in order; the last response for a key repeats once the queue
// drains, which keeps poll loops simple to script.
type fakeCaller struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string][]fakeResponse

	uploads       []string
	uploadParams  []any
	uploadOK      bool
	uploadPayload redfish.Payload
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[string][]fakeResponse),
		uploadOK:  true,
	}
}

func (f *fakeCaller) respond(method, path string, seq ...fakeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = append(f.responses[method+" "+path], seq...)
}

func okResp(payload redfish.Payload) fakeResponse {
	return fakeResponse{ok: true, payload: payload}
}

func failResp() fakeResponse {
	return fakeResponse{ok: false, payload: redfish.Payload{}}
}

func (f *fakeCaller) Call(_ context.Context, method, path string, body any) (bool, redfish.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, recordedCall{method: method, path: path, body: body})

	key := method + " " + path
	queue := f.responses[key]
	if len(queue) == 0 {
		return true, redfish.Payload{}
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[key] = queue[1:]
	}
	return resp.ok, resp.payload
}

func (f *fakeCaller) UploadMultipart(_ context.Context, path string, bundlePath string, params any) (bool, redfish.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, recordedCall{method: "UPLOAD", path: path})
	f.uploads = append(f.uploads, bundlePath)
	f.uploadParams = append(f.uploadParams, params)
	return f.uploadOK, f.uploadPayload
}

// callCount counts recorded calls matching method and path.
func (f *fakeCaller) callCount(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, call := range f.calls {
		if call.method == method && call.path == path {
			n++
		}
	}
	return n
}

func (f *fakeCaller) lastBody(method, path string) any {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method && f.calls[i].path == path {
			return f.calls[i].body
		}
	}
	return nil
}

// scriptedRun is one scripted shell command outcome.
type scriptedRun struct {
	result shell.ExecResult
	err    error
}

// recordedUpload is one file transfer the fake transport observed.
type recordedUpload struct {
	local  string
	remote string
	mode   uint32
}

// fakeTransport scripts the shell transport.
type fakeTransport struct {
	mu       sync.Mutex
	runs     []string
	stdins   []string
	uploads  []recordedUpload
	script   map[string]scriptedRun
	connects int

	connectErr error
	uploadErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{script: make(map[string]scriptedRun)}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeTransport) Disconnect() error { return nil }

func (f *fakeTransport) Run(_ context.Context, cmd string, stdin string, _ time.Duration) (shell.ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs = append(f.runs, cmd)
	f.stdins = append(f.stdins, stdin)
	if scripted, found := f.script[cmd]; found {
		return scripted.result, scripted.err
	}
	return shell.ExecResult{ExitCode: 0}, nil
}

func (f *fakeTransport) Upload(_ context.Context, localPath, remotePath string, mode uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads = append(f.uploads, recordedUpload{local: localPath, remote: remotePath, mode: mode})
	return f.uploadErr
}

// testDefaults returns wait settings scaled for unit tests.
func testDefaults() config.Defaults {
	return config.Defaults{
		PowerTimeout:     config.Duration(300 * time.Millisecond),
		PollInterval:     config.Duration(5 * time.Millisecond),
		TaskTimeout:      config.Duration(300 * time.Millisecond),
		TaskPollInterval: config.Duration(5 * time.Millisecond),
		BootTimeout:      config.Duration(300 * time.Millisecond),
		BootPollInterval: config.Duration(5 * time.Millisecond),
		CommandTimeout:   config.Duration(time.Second),
		SettleDelay:      config.Duration(time.Millisecond),
		SOLStopTimeout:   config.Duration(2 * time.Second),
	}
}

// testController builds a controller over fakes. The secondary caller
// and shell transport are optional.
func testController(mode SecurityMode, bmc *fakeCaller, hmc *fakeCaller, transport *fakeTransport) *Controller {
	c := &Controller{
		name: "tray-01",
		dev: config.Device{
			Name:         "tray-01",
			SecurityMode: string(mode),
			StagingDir:   "/var/lib/staging",
		},
		defaults:      testDefaults(),
		bmc:           bmc,
		gate:          NewSecurityGate("tray-01", mode, nil, nil),
		sleep:         func(time.Duration) {},
		removeScratch: removeScratchDir,
	}
	if hmc != nil {
		c.hmc = hmc
	}
	if transport != nil {
		c.runner = NewCommandRunner("tray-01", transport, "factory", time.Second, nil, nil)
	}
	c.sol = NewSOLManager("tray-01", nil, c.defaults.SOLStopTimeout.Std())
	return c
}

// embeddedErrPayload builds a 2xx payload carrying an application fault.
func embeddedErrPayload(message string) redfish.Payload {
	return redfish.Payload{"error": map[string]any{"message": message}}
}

// taskPayload builds a task resource in the given state.
func taskPayload(state string, percent float64) redfish.Payload {
	return redfish.Payload{"TaskState": state, "PercentComplete": percent}
}

// powerPayload builds a system resource reporting the given power state.
func powerPayload(state string) redfish.Payload {
	return redfish.Payload{"PowerState": state}
}
