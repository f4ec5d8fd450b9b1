package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport over one SSH connection.
type Client struct {
	config *Config

	mu        sync.Mutex
	sshClient *ssh.Client
	connected bool
}

// NewClient creates a shell transport client. Configuration faults
// surface here, before any connection attempt.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shell config: %w", err)
	}
	return &Client{config: cfg}, nil
}

// Connect establishes the SSH connection. Reconnects when an existing
// connection has gone dead.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.sshClient != nil {
		return nil
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing shell connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, c.config.clientConfig())
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case client := <-connChan:
		c.sshClient = client
		c.connected = true
		log.Info().Str("address", address).Msg("shell connection established")
		return nil
	}
}

// Disconnect closes the connection. A second call is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.sshClient == nil {
		return nil
	}

	err := c.sshClient.Close()
	c.sshClient = nil
	c.connected = false
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Run executes one command over a fresh session.
func (c *Client) Run(ctx context.Context, cmd string, stdin string, timeout time.Duration) (ExecResult, error) {
	start := time.Now()
	result := ExecResult{ExitCode: -1}

	if timeout <= 0 {
		timeout = c.config.CommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient()
	if err != nil {
		return result, err
	}

	session, err := client.NewSession()
	if err != nil {
		return result, &TransportError{Op: "exec", Err: fmt.Errorf("failed to create session: %w", err), IsTemporary: true}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	log.Debug().Str("command", cmd).Msg("executing remote command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		runErr = ctx.Err()
	case runErr = <-doneChan:
	}

	result.Stdout = strings.TrimSpace(stdoutBuf.String())
	result.Stderr = strings.TrimSpace(stderrBuf.String())
	result.Duration = time.Since(start)

	switch err := runErr.(type) {
	case nil:
		result.ExitCode = 0
	case *ssh.ExitError:
		// The command ran; its status is data, not a transport fault.
		result.ExitCode = err.ExitStatus()
	default:
		log.Debug().
			Str("command", cmd).
			Dur("duration", result.Duration).
			Err(runErr).
			Msg("remote command did not complete")
		return result, &TransportError{Op: "exec", Err: runErr, IsTemporary: true}
	}

	log.Debug().
		Str("command", cmd).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("remote command completed")

	return result, nil
}

// Upload copies a local file to the remote host via SFTP.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, mode uint32) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer localFile.Close()

	client, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create sftp client: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote directory: %w", err)}
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create remote file: %w", err), IsTemporary: true}
	}
	defer remoteFile.Close()

	written, err := copyWithContext(ctx, remoteFile, localFile)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to copy file: %w", err), IsTemporary: true}
	}

	if mode > 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			log.Warn().Err(err).Str("remote", remotePath).Msg("failed to set file mode")
		}
	}

	log.Info().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Msg("file uploaded")

	return nil
}

// getClient returns the live SSH client.
func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.sshClient == nil {
		return nil, &TransportError{Op: "exec", Err: fmt.Errorf("not connected")}
	}
	return c.sshClient, nil
}

// copyWithContext copies data while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				return written, nil
			}
			return written, err
		}
	}
}
