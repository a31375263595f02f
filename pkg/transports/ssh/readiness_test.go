package ssh

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spinup/spinup/pkg/cloudinit"
)

// scriptedRunner fails until a given attempt number, then succeeds.
type scriptedRunner struct {
	succeedOn int // 0 means never
	calls     int
	lastCmd   string
}

func (r *scriptedRunner) Run(ctx context.Context, cmd string) error {
	r.calls++
	r.lastCmd = cmd
	if r.succeedOn > 0 && r.calls >= r.succeedOn {
		return nil
	}
	return errors.New("connection refused")
}

func TestWaitReadyAlwaysFailingExhaustsBudget(t *testing.T) {
	r := &scriptedRunner{}

	err := WaitReady(context.Background(), r, ReadyConfig{
		Label:       "test host",
		Command:     "true",
		MaxAttempts: 5,
	})
	if err == nil {
		t.Fatal("WaitReady() succeeded against an always-failing command")
	}
	if r.calls != 5 {
		t.Errorf("runner called %d times, want exactly 5", r.calls)
	}

	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("error type = %T, want *UnreachableError", err)
	}
	if !strings.Contains(ue.Error(), "booting") {
		t.Errorf("guidance %q does not mention booting", ue.Error())
	}
}

func TestWaitReadySucceedsOnSecondAttempt(t *testing.T) {
	r := &scriptedRunner{succeedOn: 2}

	err := WaitReady(context.Background(), r, ReadyConfig{
		Label:       "test host",
		Command:     "true",
		MaxAttempts: 5,
	})
	if err != nil {
		t.Fatalf("WaitReady() error: %v", err)
	}
	if r.calls != 2 {
		t.Errorf("runner called %d times, want exactly 2", r.calls)
	}
}

func TestWaitReadyCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := RunnerFunc(func(ctx context.Context, cmd string) error {
		cancel()
		return errors.New("still booting")
	})

	err := WaitReady(ctx, r, ReadyConfig{Command: "true", MaxAttempts: 100})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestWaitForCloudInitChecksMarker(t *testing.T) {
	r := &scriptedRunner{succeedOn: 1}

	if err := WaitForCloudInit(context.Background(), r); err != nil {
		t.Fatalf("WaitForCloudInit() error: %v", err)
	}
	if !strings.Contains(r.lastCmd, cloudinit.MarkerPath) {
		t.Errorf("test command %q does not check the marker file", r.lastCmd)
	}
	if !strings.HasPrefix(r.lastCmd, "test -f ") {
		t.Errorf("test command %q is not an existence check", r.lastCmd)
	}
}

func TestVerifyConnectivityUsesTrivialEcho(t *testing.T) {
	r := &scriptedRunner{succeedOn: 1}

	if err := VerifyConnectivity(context.Background(), r); err != nil {
		t.Fatalf("VerifyConnectivity() error: %v", err)
	}
	if r.calls != 1 {
		t.Errorf("runner called %d times, want 1", r.calls)
	}
	if r.lastCmd != "echo ok" {
		t.Errorf("test command = %q, want echo ok", r.lastCmd)
	}
}

func TestVerifyConnectivityAppliesPerAttemptDeadline(t *testing.T) {
	sawDeadline := false
	r := RunnerFunc(func(ctx context.Context, cmd string) error {
		_, sawDeadline = ctx.Deadline()
		return nil
	})

	if err := VerifyConnectivity(context.Background(), r); err != nil {
		t.Fatalf("VerifyConnectivity() error: %v", err)
	}
	if !sawDeadline {
		t.Error("connectivity attempt ran without a connect deadline")
	}
}
