package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/spinup/spinup/pkg/cloudinit"
)

func TestRemoteCommandShape(t *testing.T) {
	c := Command{
		Binary: "claude",
		Flags:  []string{"--dangerously-skip-permissions", "-p"},
		Prompt: "fix the failing tests",
	}

	got := c.Remote()
	want := "source " + cloudinit.ProfilePath + " && claude --dangerously-skip-permissions -p 'fix the failing tests'"
	if got != want {
		t.Errorf("Remote() = %q\nwant       %q", got, want)
	}
}

func TestRemotePromptQuoting(t *testing.T) {
	c := Command{
		Binary: "claude",
		Prompt: "rename 'foo' to 'bar'",
	}
	got := c.Remote()
	if !strings.Contains(got, `'rename '\''foo'\'' to '\''bar'\'''`) {
		t.Errorf("prompt not escaped: %q", got)
	}
}

func TestRemoteCustomProfile(t *testing.T) {
	c := Command{Binary: "aider", Prompt: "p", ProfilePath: "/home/dev/.profile"}
	if got := c.Remote(); !strings.HasPrefix(got, "source /home/dev/.profile && ") {
		t.Errorf("Remote() = %q", got)
	}
}

// genericExec is a plain Executor.
type genericExec struct {
	cmds []string
}

func (g *genericExec) Exec(ctx context.Context, cmd string) error {
	g.cmds = append(g.cmds, cmd)
	return nil
}

// nativeExec is a vendor wrapper with its own exec entry point.
type nativeExec struct {
	genericExec
	nativeCalls []Command
}

func (n *nativeExec) ExecNative(ctx context.Context, c Command) error {
	n.nativeCalls = append(n.nativeCalls, c)
	return nil
}

func TestRunGenericDispatch(t *testing.T) {
	e := &genericExec{}
	c := Command{Binary: "claude", Prompt: "do the thing"}

	if err := Run(context.Background(), e, c); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(e.cmds) != 1 {
		t.Fatalf("exec called %d times, want 1", len(e.cmds))
	}
	if !strings.Contains(e.cmds[0], "source ") || !strings.Contains(e.cmds[0], "claude") {
		t.Errorf("dispatched command = %q", e.cmds[0])
	}
}

func TestRunNativeDispatch(t *testing.T) {
	e := &nativeExec{}
	c := Command{Binary: "claude", Prompt: "do the thing"}

	if err := Run(context.Background(), e, c); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(e.nativeCalls) != 1 {
		t.Fatalf("native exec called %d times, want 1", len(e.nativeCalls))
	}
	if len(e.cmds) != 0 {
		t.Error("generic exec used despite native transport")
	}
	if e.nativeCalls[0].Binary != "claude" {
		t.Errorf("native call binary = %q", e.nativeCalls[0].Binary)
	}
}

func TestRunValidation(t *testing.T) {
	e := &genericExec{}
	if err := Run(context.Background(), e, Command{Prompt: "p"}); err == nil {
		t.Error("Run() accepted an empty binary")
	}
	if err := Run(context.Background(), e, Command{Binary: "claude"}); err == nil {
		t.Error("Run() accepted an empty prompt")
	}
	if len(e.cmds) != 0 {
		t.Error("invalid command still dispatched")
	}
}
