// Package launch orchestrates the full lifecycle of bringing up a remote
// instance and starting a coding agent on it: credential resolution,
// provisioning, environment injection, readiness checks, and execution.
package launch

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a launch failure for exit-code mapping and
// operator guidance.
type ErrorClass string

const (
	// ErrorClassCredential indicates missing or rejected credentials.
	ErrorClassCredential ErrorClass = "credential"

	// ErrorClassConfig indicates invalid launch configuration.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassTimeout indicates a provisioning wait that exhausted
	// its attempts.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassUnreachable indicates the instance came up but SSH
	// never became usable.
	ErrorClassUnreachable ErrorClass = "unreachable"

	// ErrorClassTransient indicates a temporary failure such as a
	// provider API hiccup.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassAgent indicates the agent command itself failed on the
	// remote instance.
	ErrorClassAgent ErrorClass = "agent"
)

// LaunchError is a classified launch failure with provider context.
// nolint:revive // LaunchError is intentionally named to distinguish from standard errors
type LaunchError struct {
	// Class is the failure classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Provider is the provider being launched against, if known.
	Provider string `json:"provider,omitempty"`

	// Phase is the launch phase during which the failure occurred.
	Phase string `json:"phase,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	if e.Provider != "" && e.Phase != "" {
		return fmt.Sprintf("[%s] %s (provider=%s, phase=%s): %s",
			e.Class, e.Message, e.Provider, e.Phase, e.unwrapMessage())
	}
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s (provider=%s): %s",
			e.Class, e.Message, e.Provider, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

func (e *LaunchError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *LaunchError) Is(target error) bool {
	t, ok := target.(*LaunchError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithProvider adds provider context to an error.
func (e *LaunchError) WithProvider(name string) *LaunchError {
	e.Provider = name
	return e
}

// WithPhase adds phase context to an error.
func (e *LaunchError) WithPhase(phase string) *LaunchError {
	e.Phase = phase
	return e
}

// NewCredentialError creates a new credential error.
func NewCredentialError(message string, err error) *LaunchError {
	return &LaunchError{Class: ErrorClassCredential, Message: message, Err: err}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *LaunchError {
	return &LaunchError{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewTimeoutError creates a new provisioning timeout error.
func NewTimeoutError(message string, err error) *LaunchError {
	return &LaunchError{Class: ErrorClassTimeout, Message: message, Err: err}
}

// NewUnreachableError creates a new SSH unreachable error.
func NewUnreachableError(message string, err error) *LaunchError {
	return &LaunchError{Class: ErrorClassUnreachable, Message: message, Err: err}
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *LaunchError {
	return &LaunchError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewAgentError creates a new agent execution error.
func NewAgentError(message string, err error) *LaunchError {
	return &LaunchError{Class: ErrorClassAgent, Message: message, Err: err}
}

// IsCredential returns true if the error is a credential failure.
func IsCredential(err error) bool {
	return hasClass(err, ErrorClassCredential)
}

// IsConfig returns true if the error is a configuration failure.
func IsConfig(err error) bool {
	return hasClass(err, ErrorClassConfig)
}

// IsTimeout returns true if the error is a provisioning timeout.
func IsTimeout(err error) bool {
	return hasClass(err, ErrorClassTimeout)
}

// IsUnreachable returns true if the error is an SSH reachability failure.
func IsUnreachable(err error) bool {
	return hasClass(err, ErrorClassUnreachable)
}

// IsTransient returns true if the error is transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsAgent returns true if the error is an agent execution failure.
func IsAgent(err error) bool {
	return hasClass(err, ErrorClassAgent)
}

func hasClass(err error, class ErrorClass) bool {
	var e *LaunchError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
