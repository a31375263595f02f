package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client is a single SSH connection to a provisioned instance. It implements
// Runner for the readiness pollers and the Upload/Run pair the environment
// injector delivers through.
type Client struct {
	config *Config

	connMu      sync.RWMutex
	client      *ssh.Client
	isConnected bool
	connectedAt time.Time
}

// NewClient creates an SSH client for the given configuration.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.isConnected && c.client != nil {
		if err := c.healthCheckInternal(); err == nil {
			return nil
		}
		log.Warn().Msg("existing connection is dead, reconnecting")
		_ = c.client.Close()
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
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
		c.client = client
		c.isConnected = true
		c.connectedAt = time.Now()
		log.Debug().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Disconnect closes the SSH connection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.isConnected || c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	c.isConnected = false

	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Close closes the SSH connection. It satisfies io.Closer so callers
// holding the client behind an interface can still release it.
func (c *Client) Close() error {
	return c.Disconnect()
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.isConnected
}

// healthCheckInternal runs a trivial command (must be called with lock held).
func (c *Client) healthCheckInternal() error {
	session, err := c.client.NewSession()
	if err != nil {
		return &TransportError{Op: "healthcheck", Err: err, IsTemporary: true}
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		return &TransportError{Op: "healthcheck", Err: err, IsTemporary: true}
	}
	return nil
}

// getClient returns the underlying SSH client.
func (c *Client) getClient() (*ssh.Client, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.isConnected || c.client == nil {
		return nil, &TransportError{Op: "get-client", Err: fmt.Errorf("not connected")}
	}
	return c.client, nil
}

// ExecuteCommand runs a command on the instance and returns stdout/stderr.
func (c *Client) ExecuteCommand(ctx context.Context, cmd string) (stdout string, stderr string, err error) {
	sshClient, err := c.getClient()
	if err != nil {
		return "", "", err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	log.Debug().Str("command", cmd).Msg("executing command")
	start := time.Now()

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	stdout = strings.TrimSpace(stdoutBuf.String())
	stderr = strings.TrimSpace(stderrBuf.String())

	log.Debug().
		Str("command", cmd).
		Dur("duration", time.Since(start)).
		Err(execErr).
		Msg("command completed")

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			return stdout, stderr, &TransportError{
				Op:  "execute",
				Err: fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &TransportError{Op: "execute", Err: execErr, IsTemporary: true}
	}

	return stdout, stderr, nil
}

// Run implements Runner: execute the command, discard output, report only
// success or failure.
func (c *Client) Run(ctx context.Context, cmd string) error {
	_, _, err := c.ExecuteCommand(ctx, cmd)
	return err
}

// Upload copies a local file to the instance via SFTP, preserving the local
// file's permission bits. Used by the environment injector to stage the
// credential payload.
func (c *Client) Upload(ctx context.Context, localPath string, remotePath string) error {
	sshClient, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	defer sftpClient.Close()

	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open local file: %w", err)}
	}
	defer localFile.Close()

	info, err := localFile.Stat()
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to stat local file: %w", err)}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	n, err := io.Copy(remoteFile, localFile)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("transfer failed: %w", err), IsTemporary: true}
	}

	if err := sftpClient.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to set remote mode: %w", err)}
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", n).
		Msg("uploaded file")
	return nil
}
