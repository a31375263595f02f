package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod represents the type of SSH authentication.
type AuthMethod string

const (
	// AuthMethodPassword uses password authentication.
	AuthMethodPassword AuthMethod = "password"

	// AuthMethodKey uses private key authentication.
	AuthMethodKey AuthMethod = "key"
)

// DefaultUser is assumed when neither the caller nor SSH_USER names one.
// Freshly provisioned cloud images boot with root.
const DefaultUser = "root"

// Config holds SSH connection configuration.
type Config struct {
	// Host is the instance address resolved by the provisioning poller.
	Host string

	// Port is the SSH port (default: 22).
	Port int

	// User is the SSH username.
	User string

	// AuthMethod specifies which authentication method to use.
	AuthMethod AuthMethod

	// Password for password-based authentication.
	Password string

	// PrivateKeyPath is the path to the private key file.
	PrivateKeyPath string

	// PrivateKeyPassphrase is the passphrase for encrypted private keys.
	PrivateKeyPassphrase string

	// KnownHostsPath is the path to the known_hosts file. Empty disables
	// host key verification; freshly provisioned instances have unknown
	// keys, so launches run without it unless the caller opts in.
	KnownHostsPath string

	// StrictHostKeyChecking rejects unknown hosts when true.
	StrictHostKeyChecking bool

	// ConnectionTimeout is the timeout for establishing a connection.
	ConnectionTimeout time.Duration

	// CommandTimeout is the default timeout for command execution.
	CommandTimeout time.Duration

	// ExtraOptions carries additional ssh_config-style options
	// (e.g. "StrictHostKeyChecking=no"), typically parsed from SSH_OPTS.
	// Recognized options are folded into the fields above by
	// applyExtraOptions; unrecognized ones are ignored.
	ExtraOptions []string
}

// DefaultConfig returns a Config with sensible defaults for a freshly
// provisioned instance. The user falls back to SSH_USER, then DefaultUser;
// extra options are word-split from SSH_OPTS, matching the environment
// contract of the surrounding tooling.
func DefaultConfig(host string, user string) *Config {
	if user == "" {
		user = os.Getenv("SSH_USER")
	}
	if user == "" {
		user = DefaultUser
	}
	c := &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		StrictHostKeyChecking: false,
		ConnectionTimeout:     30 * time.Second,
		CommandTimeout:        5 * time.Minute,
		ExtraOptions:          strings.Fields(os.Getenv("SSH_OPTS")),
	}
	c.applyExtraOptions()
	return c
}

// applyExtraOptions folds recognized ssh_config-style options from
// ExtraOptions into the config fields, so operator SSH_OPTS actually
// shape the connection. "-o" separator tokens from flag-style values are
// skipped, and unrecognized options are ignored rather than rejected;
// this is a pass-through of the operator's ssh flags, not an ssh_config
// parser.
func (c *Config) applyExtraOptions() {
	for _, opt := range c.ExtraOptions {
		if opt == "-o" {
			continue
		}
		key, value, ok := strings.Cut(opt, "=")
		if !ok || value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "stricthostkeychecking":
			c.StrictHostKeyChecking = strings.EqualFold(value, "yes")
		case "connecttimeout":
			if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
				c.ConnectionTimeout = time.Duration(secs) * time.Second
			}
		case "port":
			if port, err := strconv.Atoi(value); err == nil && port > 0 && port <= 65535 {
				c.Port = port
			}
		case "user":
			c.User = value
		case "identityfile":
			c.PrivateKeyPath = value
		case "userknownhostsfile":
			c.KnownHostsPath = value
		}
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

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("password is required for password authentication")
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			// Try default key locations.
			homeDir := os.Getenv("HOME")
			defaultKeys := []string{
				filepath.Join(homeDir, ".ssh", "id_ed25519"),
				filepath.Join(homeDir, ".ssh", "id_rsa"),
				filepath.Join(homeDir, ".ssh", "id_ecdsa"),
			}
			for _, keyPath := range defaultKeys {
				if _, err := os.Stat(keyPath); err == nil {
					c.PrivateKeyPath = keyPath
					break
				}
			}
			if c.PrivateKeyPath == "" {
				return fmt.Errorf("private key path is required for key authentication and no default key found")
			}
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	default:
		return fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}

	return nil
}

// BuildSSHClientConfig creates an ssh.ClientConfig from the Config.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		authMethods = append(authMethods, ssh.Password(c.Password))

		// Keyboard-interactive handles servers that present a "Password:"
		// prompt instead of accepting plain password auth.
		authMethods = append(authMethods, ssh.KeyboardInteractive(
			func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.Password
				}
				return answers, nil
			},
		))

	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}

		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		var err error
		hostKeyCallback, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	} else {
		// A just-provisioned instance has a host key nobody has seen yet.
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}

	return clientConfig, nil
}

// Address returns the formatted SSH address (host:port).
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
