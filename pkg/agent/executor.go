// Package agent builds and dispatches the final non-interactive command
// that launches an AI coding agent on a prepared instance.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spinup/spinup/pkg/cloudinit"
)

// Command describes one agent invocation.
type Command struct {
	// Binary is the agent executable on the target (e.g. "claude").
	Binary string

	// Flags are passed before the prompt (e.g. "--dangerously-skip-permissions").
	Flags []string

	// Prompt is the task given to the agent.
	Prompt string

	// ProfilePath is the shell profile sourced first so the injected
	// credentials are visible to the agent. Defaults to the cloud-init
	// profile when empty.
	ProfilePath string
}

// Remote renders the single shell command executed on the target: source
// the profile, then launch the agent with its prompt. The prompt is
// single-quoted with embedded quotes escaped.
func (c Command) Remote() string {
	profile := c.ProfilePath
	if profile == "" {
		profile = cloudinit.ProfilePath
	}

	var b strings.Builder
	fmt.Fprintf(&b, "source %s && %s", profile, c.Binary)
	for _, f := range c.Flags {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	b.WriteString(" '")
	b.WriteString(strings.ReplaceAll(c.Prompt, "'", `'\''`))
	b.WriteString("'")
	return b.String()
}

// Executor dispatches a built command on the target.
type Executor interface {
	Exec(ctx context.Context, cmd string) error
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, cmd string) error

// Exec implements Executor.
func (f ExecutorFunc) Exec(ctx context.Context, cmd string) error {
	return f(ctx, cmd)
}

// NativeExecutor is implemented by vendor wrappers whose transport is not
// raw SSH (container exec, provider CLIs). When the supplied executor is
// one of these, dispatch goes through its own exec entry point instead of
// the generic shell command.
type NativeExecutor interface {
	Executor
	ExecNative(ctx context.Context, c Command) error
}

// Run launches the agent through the executor. A NativeExecutor receives
// the structured command; anything else gets the rendered remote string.
func Run(ctx context.Context, e Executor, c Command) error {
	if c.Binary == "" {
		return fmt.Errorf("agent binary is required")
	}
	if c.Prompt == "" {
		return fmt.Errorf("agent prompt is required")
	}

	if native, ok := e.(NativeExecutor); ok {
		log.Info().Str("binary", c.Binary).Msg("launching agent via native transport")
		return native.ExecNative(ctx, c)
	}

	cmd := c.Remote()
	log.Info().Str("binary", c.Binary).Msg("launching agent")
	return e.Exec(ctx, cmd)
}
