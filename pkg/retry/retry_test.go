package retry

import (
	"context"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	max := 30 * time.Second

	tests := []struct {
		name    string
		attempt int
		max     time.Duration
		want    time.Duration
	}{
		{name: "first attempt", attempt: 1, max: max, want: 1 * time.Second},
		{name: "second attempt doubles", attempt: 2, max: max, want: 2 * time.Second},
		{name: "fifth attempt", attempt: 5, max: max, want: 16 * time.Second},
		{name: "clamped to max", attempt: 10, max: max, want: max},
		{name: "far past max stays clamped", attempt: 1000, max: max, want: max},
		{name: "zero attempt treated as first", attempt: 0, max: max, want: 1 * time.Second},
		{name: "negative attempt treated as first", attempt: -3, max: max, want: 1 * time.Second},
		{name: "max below floor raised to floor", attempt: 4, max: 100 * time.Millisecond, want: 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Backoff(tt.attempt, tt.max); got != tt.want {
				t.Errorf("Backoff(%d, %v) = %v, want %v", tt.attempt, tt.max, got, tt.want)
			}
		})
	}
}

func TestBackoffNeverBelowFloor(t *testing.T) {
	for attempt := -1; attempt < 50; attempt++ {
		got := Backoff(attempt, 30*time.Second)
		if got < DefaultInitial || got > 30*time.Second {
			t.Fatalf("Backoff(%d) = %v, outside [1s, 30s]", attempt, got)
		}
	}
}

func TestScheduleDelay(t *testing.T) {
	fixed := Fixed(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := fixed.Delay(attempt); got != 5*time.Second {
			t.Fatalf("fixed schedule returned %v on attempt %d", got, attempt)
		}
	}

	exp := Exponential(1*time.Second, 8*time.Second)
	wants := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, want := range wants {
		if got := exp.Delay(i + 1); got != want {
			t.Fatalf("exponential delay on attempt %d = %v, want %v", i+1, got, want)
		}
	}

	var zero Schedule
	if got := zero.Delay(3); got != 0 {
		t.Fatalf("zero schedule returned %v, want 0", got)
	}
}

func TestScheduleSleepZeroIsImmediate(t *testing.T) {
	var zero Schedule
	start := time.Now()
	if err := zero.Sleep(context.Background(), 1); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("zero schedule slept %v", elapsed)
	}
}

func TestScheduleSleepCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := Fixed(1 * time.Minute)
	start := time.Now()
	err := s.Sleep(ctx, 1)
	if err == nil {
		t.Fatal("Sleep() on cancelled context returned nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancelled Sleep() blocked for %v", elapsed)
	}
}
