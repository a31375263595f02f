package ssh

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spinup/spinup/pkg/cloudinit"
	"github.com/spinup/spinup/pkg/retry"
)

// ReadyConfig controls a boot-readiness poll.
type ReadyConfig struct {
	// Label names what is being waited for in log output.
	Label string

	// Command is the remote test command; a zero exit status means ready.
	Command string

	// MaxAttempts bounds the loop.
	MaxAttempts int

	// Interval is the fixed delay between attempts. Zero means no sleeping,
	// which tests use.
	Interval time.Duration

	// Timeout is the per-attempt deadline. Zero means no deadline beyond
	// the caller's context.
	Timeout time.Duration
}

// Defaults for the two specializations.
const (
	cloudInitMaxAttempts = 60
	cloudInitInterval    = 5 * time.Second

	connectivityMaxAttempts = 30
	connectivityInterval    = 5 * time.Second
	connectTimeout          = 5 * time.Second
)

// WaitReady runs the test command over the runner until it exits zero or
// attempts are exhausted. Output is discarded; only the exit status matters.
func WaitReady(ctx context.Context, r Runner, cfg ReadyConfig) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = cloudInitMaxAttempts
	}
	if cfg.Label == "" {
		cfg.Label = "remote host"
	}
	schedule := retry.Fixed(cfg.Interval)

	start := time.Now()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := runOnce(ctx, r, cfg)
		if err == nil {
			log.Info().
				Str("label", cfg.Label).
				Int("attempts", attempt).
				Msgf("%s ready", cfg.Label)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Debug().
			Str("label", cfg.Label).
			Int("attempt", attempt).
			Err(err).
			Msg("not ready yet")

		if attempt < cfg.MaxAttempts {
			if err := schedule.Sleep(ctx, attempt); err != nil {
				return err
			}
		}
	}

	return &UnreachableError{
		Label:    cfg.Label,
		Attempts: cfg.MaxAttempts,
		Elapsed:  time.Since(start).Round(time.Second),
	}
}

func runOnce(ctx context.Context, r Runner, cfg ReadyConfig) error {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	return r.Run(ctx, cfg.Command)
}

// WaitForCloudInit waits until the bootstrap completion marker exists,
// meaning cloud-init ran every step.
func WaitForCloudInit(ctx context.Context, r Runner) error {
	return WaitReady(ctx, r, ReadyConfig{
		Label:       "cloud-init",
		Command:     fmt.Sprintf("test -f %s", cloudinit.MarkerPath),
		MaxAttempts: cloudInitMaxAttempts,
		Interval:    cloudInitInterval,
	})
}

// VerifyConnectivity confirms the instance accepts SSH sessions at all,
// using a trivial echo with a short connect timeout.
func VerifyConnectivity(ctx context.Context, r Runner) error {
	return WaitReady(ctx, r, ReadyConfig{
		Label:       "SSH connectivity",
		Command:     "echo ok",
		MaxAttempts: connectivityMaxAttempts,
		Interval:    connectivityInterval,
		Timeout:     connectTimeout,
	})
}

// UnreachableError reports an exhausted readiness poll. It is distinct from
// a provisioning timeout: the instance exists but is not answering yet.
type UnreachableError struct {
	Label    string
	Attempts int
	Elapsed  time.Duration
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf(
		"%s not reachable after %d attempts (%s): the server may still be booting, wait a minute and retry",
		e.Label, e.Attempts, e.Elapsed)
}

// Timeout marks this error as a deadline-style failure.
func (e *UnreachableError) Timeout() bool {
	return true
}
