// Package retry provides the bounded backoff calculation shared by the
// provisioning and readiness pollers.
package retry

import (
	"context"
	"time"
)

const (
	// DefaultInitial is the delay before the first retry.
	DefaultInitial = 1 * time.Second

	// DefaultMax caps backoff growth.
	DefaultMax = 30 * time.Second
)

// Backoff returns the delay for the given 1-based attempt number: doubling
// growth from DefaultInitial, clamped to [DefaultInitial, max]. Attempt
// values below 1 are treated as 1. Pure; safe for concurrent use.
func Backoff(attempt int, max time.Duration) time.Duration {
	if max < DefaultInitial {
		max = DefaultInitial
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := DefaultInitial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Schedule describes the delay policy between poll attempts.
type Schedule struct {
	// Initial is the delay after the first attempt. Zero disables sleeping
	// entirely, which tests rely on.
	Initial time.Duration

	// Max caps backoff growth. When zero the interval is fixed at Initial
	// (the readiness pollers use a fixed interval).
	Max time.Duration
}

// Fixed returns a schedule with a constant delay between attempts.
func Fixed(interval time.Duration) Schedule {
	return Schedule{Initial: interval}
}

// Exponential returns a doubling schedule clamped to max.
func Exponential(initial, max time.Duration) Schedule {
	return Schedule{Initial: initial, Max: max}
}

// Delay returns the sleep before the next attempt following the given
// 1-based attempt number.
func (s Schedule) Delay(attempt int) time.Duration {
	if s.Initial <= 0 {
		return 0
	}
	if s.Max <= 0 {
		return s.Initial
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := s.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.Max {
			return s.Max
		}
	}
	if delay > s.Max {
		return s.Max
	}
	return delay
}

// Sleep blocks for the schedule's delay after the given attempt, returning
// early with the context error if the context is cancelled first.
func (s Schedule) Sleep(ctx context.Context, attempt int) error {
	delay := s.Delay(attempt)
	if delay <= 0 {
		// Still honor cancellation between attempts.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
