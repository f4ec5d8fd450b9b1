package shell

import (
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/openrack/trayctl/pkg/config"
)

// Config holds the SSH connection settings for one host-OS endpoint.
// Factory-network units authenticate with per-unit passwords, so only
// password auth is carried.
type Config struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port.
	Port int

	// User is the login user.
	User string

	// Password is the login credential, also fed to elevation prompts.
	Password string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// CommandTimeout is the default bound for one command when the
	// caller does not pass its own.
	CommandTimeout time.Duration
}

// FromEndpoint builds a Config from a validated fleet endpoint.
func FromEndpoint(ep config.Endpoint, commandTimeout time.Duration) *Config {
	return &Config{
		Host:           ep.Address,
		Port:           ep.Port,
		User:           ep.Username,
		Password:       ep.Password,
		ConnectTimeout: 30 * time.Second,
		CommandTimeout: commandTimeout,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}
	return nil
}

// Address returns the host:port dial target.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientConfig builds the x/crypto/ssh client configuration.
func (c *Config) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User: c.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.Password),
			ssh.KeyboardInteractive(
				func(user, instruction string, questions []string, echos []bool) ([]string, error) {
					answers := make([]string, len(questions))
					for i := range answers {
						answers[i] = c.Password
					}
					return answers, nil
				},
			),
		},
		// Freshly provisioned units have no stable host keys yet.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         c.ConnectTimeout,
	}
}
