package launch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/spinup/spinup/pkg/agent"
	"github.com/spinup/spinup/pkg/credentials"
	"github.com/spinup/spinup/pkg/envinject"
	"github.com/spinup/spinup/pkg/providers"
	"github.com/spinup/spinup/pkg/provision"
	"github.com/spinup/spinup/pkg/tempfiles"
)

type apiResponse struct {
	body string
	err  error
}

// scriptedAPI replays canned responses, repeating the last one.
type scriptedAPI struct {
	mu        sync.Mutex
	responses []apiResponse
	calls     int
}

func (s *scriptedAPI) Poll(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return []byte(r.body), r.err
}

// fakeHost records uploads and commands, succeeding unless failOn matches.
type fakeHost struct {
	mu       sync.Mutex
	uploads  map[string]string
	commands []string
	failOn   string
	closed   bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{uploads: make(map[string]string)}
}

func (f *fakeHost) Upload(_ context.Context, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[remotePath] = localPath
	return nil
}

func (f *fakeHost) Run(_ context.Context, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.failOn != "" && strings.Contains(cmd, f.failOn) {
		return fmt.Errorf("command failed: %s", cmd)
	}
	return nil
}

func (f *fakeHost) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// testStore isolates credential resolution from any real config files.
func testStore(t *testing.T) *credentials.Store {
	t.Helper()
	return &credentials.Store{ConfigDir: t.TempDir()}
}

func hetznerDescriptor(t *testing.T) providers.Descriptor {
	t.Helper()
	desc, err := providers.DefaultCatalog().Get("hetzner")
	if err != nil {
		t.Fatalf("Get(hetzner): %v", err)
	}
	return desc
}

func pendingBody() string {
	return `{"server":{"status":"initializing","public_net":{"ipv4":{"ip":""}}}}`
}

func runningBody(ip string) string {
	return fmt.Sprintf(`{"server":{"status":"running","public_net":{"ipv4":{"ip":"%s"}}}}`, ip)
}

func TestRunEndToEnd(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	api := &scriptedAPI{responses: []apiResponse{
		{body: pendingBody()},
		{body: pendingBody()},
		{body: runningBody("10.0.0.5")},
	}}
	host := newFakeHost()

	l := &Launcher{Store: testStore(t), Tmp: tempfiles.NewRegistry()}
	res, err := l.Run(context.Background(), Request{
		Provider: hetznerDescriptor(t),
		API:      api,
		Dial: func(_ context.Context, ip string) (Host, error) {
			if ip != "10.0.0.5" {
				t.Errorf("dialed %q, want 10.0.0.5", ip)
			}
			return host, nil
		},
		Agent: agent.Command{
			Binary: "claude",
			Flags:  []string{"--dangerously-skip-permissions", "-p"},
			Prompt: "fix the build",
		},
		MaxAttempts: 5,
		Schedule:    &provision.Immediate,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.IP != "10.0.0.5" {
		t.Errorf("IP = %q, want 10.0.0.5", res.IP)
	}
	if res.RunID == "" {
		t.Error("empty RunID")
	}
	if api.calls != 3 {
		t.Errorf("API called %d times, want 3", api.calls)
	}
	if !host.closed {
		t.Error("host not closed")
	}

	// Phase order: env apply, cloud-init marker test, echo probe, agent.
	var phases []string
	for _, cmd := range host.commands {
		switch {
		case strings.Contains(cmd, "test -f"):
			phases = append(phases, "cloudinit")
		case cmd == "echo ok":
			phases = append(phases, "probe")
		case strings.Contains(cmd, "cat "):
			phases = append(phases, "inject")
		case strings.Contains(cmd, "claude"):
			phases = append(phases, "agent")
		}
	}
	want := []string{"inject", "cloudinit", "probe", "agent"}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}

	last := host.commands[len(host.commands)-1]
	if !strings.Contains(last, "source ") || !strings.Contains(last, "'fix the build'") {
		t.Errorf("agent command = %q", last)
	}
	if len(host.uploads) != 1 {
		t.Errorf("uploads = %v, want exactly one", host.uploads)
	}
}

func TestRunMissingCredential(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "")

	store := testStore(t)
	l := &Launcher{Store: store}
	_, err := l.Run(context.Background(), Request{
		Provider:    hetznerDescriptor(t),
		API:         &scriptedAPI{responses: []apiResponse{{body: pendingBody()}}},
		Dial:        func(context.Context, string) (Host, error) { return newFakeHost(), nil },
		Agent:       agent.Command{Binary: "claude", Prompt: "x"},
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if !IsCredential(err) {
		t.Fatalf("err = %v, want credential class", err)
	}
	if !strings.Contains(err.Error(), "HCLOUD_TOKEN") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestRunRejectedCredentialUnsetsEnv(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "bad-token")

	l := &Launcher{Store: testStore(t)}
	_, err := l.Run(context.Background(), Request{
		Provider: hetznerDescriptor(t),
		Probe: func(context.Context) error {
			return errors.New("401 unauthorized")
		},
		API:         &scriptedAPI{responses: []apiResponse{{body: pendingBody()}}},
		Dial:        func(context.Context, string) (Host, error) { return newFakeHost(), nil },
		Agent:       agent.Command{Binary: "claude", Prompt: "x"},
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if !IsCredential(err) {
		t.Fatalf("err = %v, want credential class", err)
	}
	if got, ok := os.LookupEnv("HCLOUD_TOKEN"); ok && got != "" {
		t.Errorf("HCLOUD_TOKEN still set after rejection: %q", got)
	}
}

func TestRunProvisionTimeout(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	api := &scriptedAPI{responses: []apiResponse{{body: pendingBody()}}}
	l := &Launcher{Store: testStore(t)}
	_, err := l.Run(context.Background(), Request{
		Provider:    hetznerDescriptor(t),
		API:         api,
		Dial:        func(context.Context, string) (Host, error) { return newFakeHost(), nil },
		Agent:       agent.Command{Binary: "claude", Prompt: "x"},
		MaxAttempts: 4,
		Schedule:    &provision.Immediate,
	})
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want timeout class", err)
	}
	if api.calls != 4 {
		t.Errorf("API called %d times, want exactly 4", api.calls)
	}
}

func TestRunDialFailure(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	l := &Launcher{Store: testStore(t)}
	_, err := l.Run(context.Background(), Request{
		Provider: hetznerDescriptor(t),
		API:      &scriptedAPI{responses: []apiResponse{{body: runningBody("10.0.0.9")}}},
		Dial: func(context.Context, string) (Host, error) {
			return nil, errors.New("connection refused")
		},
		Agent:       agent.Command{Binary: "claude", Prompt: "x"},
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if !IsUnreachable(err) {
		t.Fatalf("err = %v, want unreachable class", err)
	}
	if !strings.Contains(err.Error(), "10.0.0.9") {
		t.Errorf("error should name the address: %v", err)
	}
}

func TestRunAgentFailure(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	host := newFakeHost()
	host.failOn = "claude"

	l := &Launcher{Store: testStore(t), Tmp: tempfiles.NewRegistry()}
	_, err := l.Run(context.Background(), Request{
		Provider:    hetznerDescriptor(t),
		API:         &scriptedAPI{responses: []apiResponse{{body: runningBody("10.0.0.5")}}},
		Dial:        func(context.Context, string) (Host, error) { return host, nil },
		Agent:       agent.Command{Binary: "claude", Prompt: "x"},
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if !IsAgent(err) {
		t.Fatalf("err = %v, want agent class", err)
	}
}

func TestRunConfigErrors(t *testing.T) {
	l := &Launcher{}
	desc := hetznerDescriptor(t)

	_, err := l.Run(context.Background(), Request{Provider: desc})
	if !IsConfig(err) {
		t.Fatalf("missing API: err = %v, want config class", err)
	}

	_, err = l.Run(context.Background(), Request{
		Provider: desc,
		API:      &scriptedAPI{responses: []apiResponse{{body: pendingBody()}}},
	})
	if !IsConfig(err) {
		t.Fatalf("missing Dial: err = %v, want config class", err)
	}
}

func TestRunNoAuthProviderSkipsCredentials(t *testing.T) {
	desc, err := providers.DefaultCatalog().Get("local")
	if err != nil {
		t.Fatalf("Get(local): %v", err)
	}

	host := newFakeHost()
	l := &Launcher{Store: testStore(t), Tmp: tempfiles.NewRegistry()}
	res, err := l.Run(context.Background(), Request{
		Provider:    desc,
		API:         &scriptedAPI{responses: []apiResponse{{body: `{"status":"ready","address":"127.0.0.1"}`}}},
		Dial:        func(context.Context, string) (Host, error) { return host, nil },
		Agent:       agent.Command{Binary: "claude", Prompt: "x"},
		ExtraEnv:    []envinject.Pair{{Key: "ANTHROPIC_API_KEY", Value: "sk-test"}},
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.IP != "127.0.0.1" {
		t.Errorf("IP = %q, want 127.0.0.1", res.IP)
	}
	if len(host.uploads) != 1 {
		t.Errorf("extra env should still be injected, uploads = %v", host.uploads)
	}
}

// nativeHost is a vendor wrapper whose transport is not raw SSH: it
// satisfies agent.NativeExecutor in addition to Host.
type nativeHost struct {
	*fakeHost
	nativeCalls []agent.Command
}

func (n *nativeHost) Exec(ctx context.Context, cmd string) error {
	return n.Run(ctx, cmd)
}

func (n *nativeHost) ExecNative(_ context.Context, c agent.Command) error {
	n.nativeCalls = append(n.nativeCalls, c)
	return nil
}

func TestRunDispatchesNativeHost(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	host := &nativeHost{fakeHost: newFakeHost()}
	l := &Launcher{Store: testStore(t), Tmp: tempfiles.NewRegistry()}
	_, err := l.Run(context.Background(), Request{
		Provider:    hetznerDescriptor(t),
		API:         &scriptedAPI{responses: []apiResponse{{body: runningBody("10.0.0.5")}}},
		Dial:        func(context.Context, string) (Host, error) { return host, nil },
		Agent:       agent.Command{Binary: "claude", Prompt: "fix the build"},
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(host.nativeCalls) != 1 {
		t.Fatalf("ExecNative called %d times, want 1", len(host.nativeCalls))
	}
	if host.nativeCalls[0].Prompt != "fix the build" {
		t.Errorf("native command prompt = %q", host.nativeCalls[0].Prompt)
	}
	for _, cmd := range host.commands {
		if strings.Contains(cmd, "claude") {
			t.Errorf("agent ran as a generic shell command despite native transport: %q", cmd)
		}
	}
}

func TestRunExecutorOverride(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "test-token")

	var executed []string
	host := newFakeHost()
	l := &Launcher{Store: testStore(t), Tmp: tempfiles.NewRegistry()}
	_, err := l.Run(context.Background(), Request{
		Provider: hetznerDescriptor(t),
		API:      &scriptedAPI{responses: []apiResponse{{body: runningBody("10.0.0.5")}}},
		Dial:     func(context.Context, string) (Host, error) { return host, nil },
		Agent:    agent.Command{Binary: "claude", Prompt: "x"},
		Executor: agent.ExecutorFunc(func(_ context.Context, cmd string) error {
			executed = append(executed, cmd)
			return nil
		}),
		MaxAttempts: 1,
		Schedule:    &provision.Immediate,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(executed) != 1 || !strings.Contains(executed[0], "claude") {
		t.Errorf("override executor got %v, want the rendered agent command", executed)
	}
	for _, cmd := range host.commands {
		if strings.Contains(cmd, "claude") {
			t.Errorf("agent also ran over the host: %q", cmd)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"credential", NewCredentialError("m", nil), IsCredential},
		{"config", NewConfigError("m", nil), IsConfig},
		{"timeout", NewTimeoutError("m", nil), IsTimeout},
		{"unreachable", NewUnreachableError("m", nil), IsUnreachable},
		{"transient", NewTransientError("m", nil), IsTransient},
		{"agent", NewAgentError("m", nil), IsAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("%s helper did not match its own class", tt.name)
			}
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("%s helper did not match through wrapping", tt.name)
			}
			if IsAgent(errors.New("plain")) {
				t.Error("plain error matched a class")
			}
		})
	}
}

func TestLaunchErrorContext(t *testing.T) {
	err := NewTimeoutError("instance never became ready", errors.New("60 attempts")).
		WithProvider("hetzner").WithPhase("provision")
	msg := err.Error()
	for _, want := range []string{"timeout", "hetzner", "provision", "60 attempts"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, &LaunchError{Class: ErrorClassTimeout}) {
		t.Error("errors.Is by class failed")
	}
}
