// Package provision drives instance provisioning against a caller-supplied
// provider API until the instance reports the target status with a resolved
// address, or the attempt budget runs out.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spinup/spinup/pkg/jsonq"
	"github.com/spinup/spinup/pkg/retry"
)

// API is the provider callback the poller drives. One Poll call is one
// provider API request; the response is the raw JSON body. Cold-start APIs
// are flaky, so every Poll error is treated as transient and retried within
// the same attempt budget; the poller deliberately does not distinguish
// transient from permanent API failures.
type API interface {
	Poll(ctx context.Context) ([]byte, error)
}

// APIFunc adapts a plain function to the API interface.
type APIFunc func(ctx context.Context) ([]byte, error)

// Poll implements API.
func (f APIFunc) Poll(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// InstanceState tracks the provisioning lifecycle.
type InstanceState string

const (
	// StateRequested means provisioning has been asked for but no API call
	// has happened yet.
	StateRequested InstanceState = "requested"

	// StatePolling means at least one API call has been made.
	StatePolling InstanceState = "polling"

	// StateReady means the target status was observed with a non-empty
	// address.
	StateReady InstanceState = "ready"

	// StateTimedOut means the attempt budget was exhausted.
	StateTimedOut InstanceState = "timed-out"
)

// DefaultMaxAttempts bounds the polling loop.
const DefaultMaxAttempts = 60

// DefaultInterval is the delay between attempts when no schedule is given.
const DefaultInterval = 5 * time.Second

// Config controls a provisioning poll.
type Config struct {
	// Label names the instance in log output (e.g. "hetzner server").
	Label string

	// TargetStatus is the provider status string that means running
	// (e.g. "active", "running").
	TargetStatus string

	// StatusPath extracts the status from the API response.
	StatusPath jsonq.Path

	// IPPath extracts the public address from the API response.
	IPPath jsonq.Path

	// MaxAttempts bounds the loop; DefaultMaxAttempts when zero.
	MaxAttempts int

	// Schedule is the inter-attempt delay policy. Nil means a fixed
	// DefaultInterval; point it at Immediate in tests to skip sleeping.
	Schedule *retry.Schedule
}

// Immediate is a schedule with no sleeping, for tests.
var Immediate = retry.Schedule{}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	if out.Label == "" {
		out.Label = "instance"
	}
	return out
}

// Poller polls a provider API until the instance is ready.
type Poller struct {
	api   API
	cfg   Config
	state InstanceState
}

// NewPoller returns a poller in the Requested state.
func NewPoller(api API, cfg Config) *Poller {
	return &Poller{api: api, cfg: cfg.withDefaults(), state: StateRequested}
}

// State returns the current lifecycle state.
func (p *Poller) State() InstanceState {
	return p.state
}

// Wait drives the API until the extracted status equals the target and the
// extracted address is non-empty, returning the address. A status match with
// an empty address is not terminal; polling continues. API errors and
// malformed responses are retried within the same budget. On exhaustion a
// *TimeoutError is returned.
func (p *Poller) Wait(ctx context.Context) (string, error) {
	cfg := p.cfg
	schedule := retry.Fixed(DefaultInterval)
	if cfg.Schedule != nil {
		schedule = *cfg.Schedule
	}

	start := time.Now()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		p.state = StatePolling

		body, err := p.api.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Debug().
				Str("label", cfg.Label).
				Int("attempt", attempt).
				Err(err).
				Msg("provision API call failed, retrying")
		} else {
			status, _ := jsonq.Extract(body, cfg.StatusPath)
			ip, _ := jsonq.Extract(body, cfg.IPPath)

			if status == cfg.TargetStatus && ip != "" {
				p.state = StateReady
				log.Info().
					Str("label", cfg.Label).
					Str("ip", ip).
					Int("attempts", attempt).
					Msgf("%s ready (IP: %s)", cfg.Label, ip)
				return ip, nil
			}

			log.Debug().
				Str("label", cfg.Label).
				Int("attempt", attempt).
				Str("status", status).
				Bool("have_ip", ip != "").
				Msg("instance not ready yet")
		}

		if attempt < cfg.MaxAttempts {
			if err := schedule.Sleep(ctx, attempt); err != nil {
				return "", err
			}
		}
	}

	p.state = StateTimedOut
	elapsed := time.Since(start).Round(time.Second)
	log.Error().
		Str("label", cfg.Label).
		Int("attempts", cfg.MaxAttempts).
		Dur("elapsed", elapsed).
		Msgf("%s did not become ready", cfg.Label)

	return "", &TimeoutError{
		Label:    cfg.Label,
		Attempts: cfg.MaxAttempts,
		Elapsed:  elapsed,
	}
}

// TimeoutError reports an exhausted provisioning poll with actionable
// guidance.
type TimeoutError struct {
	Label    string
	Attempts int
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"%s not ready after %d attempts (%s): check the provider dashboard for stuck instances, wait a few minutes and retry, or try a different region",
		e.Label, e.Attempts, e.Elapsed)
}

// Timeout marks this error as a deadline-style failure.
func (e *TimeoutError) Timeout() bool {
	return true
}
