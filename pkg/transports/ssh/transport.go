// Package ssh provides the SSH transport used to reach provisioned
// instances: command execution, file upload for credential delivery, and the
// boot-readiness pollers.
package ssh

import "context"

// Runner executes a remote command, discarding stdout. The readiness pollers
// only care about the exit status.
type Runner interface {
	Run(ctx context.Context, cmd string) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd string) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, cmd string) error {
	return f(ctx, cmd)
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g. "connect", "execute", "upload").
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary indicates the error may clear on retry.
	IsTemporary bool

	// IsAuthError indicates the error relates to authentication.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
