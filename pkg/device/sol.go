package device

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// solSession is one running console-capture process.
type solSession struct {
	logPath string
	cmd     *exec.Cmd
	logFile *os.File
	watcher *fsnotify.Watcher
	waited  chan error
}

// SOLManager runs serial-over-LAN capture processes for one device. The
// capture command comes from device configuration; its stdout and stderr
// are redirected into the session log file, and a filesystem watcher
// reports capture liveness at debug level.
type SOLManager struct {
	device      string
	command     []string
	stopTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*solSession
}

// NewSOLManager builds the capture manager for one device.
func NewSOLManager(device string, command []string, stopTimeout time.Duration) *SOLManager {
	return &SOLManager{
		device:      device,
		command:     command,
		stopTimeout: stopTimeout,
		sessions:    make(map[string]*solSession),
	}
}

// Start launches a capture writing to logPath. Starting a path that is
// already being captured is a successful no-op. A device without a
// configured capture command cannot capture, so a requested capture
// fails rather than silently recording nothing.
func (m *SOLManager) Start(logPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.sessions[logPath]; running {
		log.Debug().Str("device", m.device).Str("log", logPath).Msg("console capture already running")
		return true
	}

	if len(m.command) == 0 {
		log.Error().Str("device", m.device).Msg("console capture requested but no capture command configured")
		return false
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error().Err(err).Str("device", m.device).Str("log", logPath).Msg("failed to open console log")
		return false
	}

	cmd := exec.Command(m.command[0], m.command[1:]...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		log.Error().Err(err).Str("device", m.device).Msg("failed to start console capture")
		return false
	}

	session := &solSession{
		logPath: logPath,
		cmd:     cmd,
		logFile: logFile,
		waited:  make(chan error, 1),
	}
	go func() { session.waited <- cmd.Wait() }()

	// The watcher is liveness instrumentation only; capture runs fine
	// without it.
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(logPath); err == nil {
			session.watcher = watcher
			go m.watchLog(watcher, logPath)
		} else {
			watcher.Close()
		}
	}

	m.sessions[logPath] = session
	log.Info().
		Str("device", m.device).
		Str("log", logPath).
		Int("pid", cmd.Process.Pid).
		Msg("console capture started")
	return true
}

// Stop terminates the capture writing to logPath. Stopping a path with
// no running capture is a successful no-op. The process gets the stop
// timeout to exit after SIGTERM before it is killed.
func (m *SOLManager) Stop(logPath string) bool {
	m.mu.Lock()
	session, running := m.sessions[logPath]
	if running {
		delete(m.sessions, logPath)
	}
	m.mu.Unlock()

	if !running {
		log.Debug().Str("device", m.device).Str("log", logPath).Msg("no console capture to stop")
		return true
	}

	_ = session.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-session.waited:
	case <-time.After(m.stopTimeout):
		log.Warn().
			Str("device", m.device).
			Str("log", logPath).
			Msg("console capture ignored SIGTERM, killing")
		_ = session.cmd.Process.Kill()
		<-session.waited
	}

	if session.watcher != nil {
		session.watcher.Close()
	}
	session.logFile.Close()

	log.Info().Str("device", m.device).Str("log", logPath).Msg("console capture stopped")
	return true
}

// CloseAll stops every running capture.
func (m *SOLManager) CloseAll() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.sessions))
	for path := range m.sessions {
		paths = append(paths, path)
	}
	m.mu.Unlock()

	for _, path := range paths {
		m.Stop(path)
	}
}

// watchLog logs write activity on the capture file until the watcher is
// closed.
func (m *SOLManager) watchLog(watcher *fsnotify.Watcher, logPath string) {
	for {
		select {
		case event, open := <-watcher.Events:
			if !open {
				return
			}
			if event.Has(fsnotify.Write) {
				log.Debug().Str("device", m.device).Str("log", logPath).Msg("console capture activity")
			}
		case err, open := <-watcher.Errors:
			if !open {
				return
			}
			log.Warn().Err(err).Str("device", m.device).Msg("console log watcher error")
		}
	}
}
