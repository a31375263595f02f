package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/spinup/spinup/pkg/agent"
	"github.com/spinup/spinup/pkg/cloudinit"
	"github.com/spinup/spinup/pkg/credentials"
	"github.com/spinup/spinup/pkg/envinject"
	"github.com/spinup/spinup/pkg/providers"
	"github.com/spinup/spinup/pkg/provision"
	"github.com/spinup/spinup/pkg/retry"
	"github.com/spinup/spinup/pkg/telemetry"
	"github.com/spinup/spinup/pkg/tempfiles"
	"github.com/spinup/spinup/pkg/transports/ssh"
)

// Host is a connected instance the launcher can copy files to and run
// commands on. An SSH client satisfies this.
type Host interface {
	Upload(ctx context.Context, localPath, remotePath string) error
	Run(ctx context.Context, cmd string) error
}

// DialFunc connects to a freshly provisioned instance by its address.
type DialFunc func(ctx context.Context, ip string) (Host, error)

// Request describes one launch run.
type Request struct {
	// Provider is the catalog entry being launched against.
	Provider providers.Descriptor

	// Probe exercises the credential against the provider API. Nil for
	// providers that need no authentication.
	Probe credentials.Probe

	// API polls the provider for instance status. The caller owns the
	// REST glue; the launcher only drives the poll loop.
	API provision.API

	// Dial connects to the instance once its address is known.
	Dial DialFunc

	// Agent is the command started on the instance once it is ready.
	Agent agent.Command

	// Executor overrides how the agent command is dispatched. When nil
	// the host itself is used if it implements agent.Executor, so a
	// vendor-native wrapper dispatches through its own ExecNative entry
	// point; otherwise the rendered command runs over the host.
	Executor agent.Executor

	// ExtraEnv is injected into the remote profile alongside the
	// provider credential.
	ExtraEnv []envinject.Pair

	// MaxAttempts bounds the provisioning poll; the poller default
	// applies when zero.
	MaxAttempts int

	// Schedule is the inter-poll delay policy. Nil means the poller's
	// fixed default interval.
	Schedule *retry.Schedule
}

// Result reports a completed launch.
type Result struct {
	// RunID identifies this run in logs, spans, and metrics.
	RunID string

	// Provider is the catalog name launched against.
	Provider string

	// IP is the instance address resolved during provisioning.
	IP string

	// Elapsed is the end-to-end launch duration.
	Elapsed time.Duration
}

// Launcher drives the full launch lifecycle. All telemetry fields accept
// nil; a zero Launcher with only Tmp set is usable in tests.
type Launcher struct {
	Store   *credentials.Store
	Tmp     *tempfiles.Registry
	Log     *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Run executes a launch from credential resolution through agent start.
// Phases run strictly in order: resolve and validate the credential,
// poll the provider until the instance is running with an address, dial
// the instance, inject the environment, wait for cloud-init, verify
// connectivity, and finally start the agent. The first failing phase
// aborts the run with a classified error.
func (l *Launcher) Run(ctx context.Context, req Request) (Result, error) {
	runID := uuid.NewString()
	start := time.Now()
	res := Result{RunID: runID, Provider: req.Provider.Name}

	logger := l.logger().WithRunID(runID).WithProvider(req.Provider.Name)

	if req.API == nil {
		return res, NewConfigError("no provisioning API supplied", nil).WithProvider(req.Provider.Name)
	}
	if req.Dial == nil {
		return res, NewConfigError("no dial function supplied", nil).WithProvider(req.Provider.Name)
	}

	l.Metrics.RecordLaunchStarted(req.Provider.Name)
	ctx, span := l.Tracer.StartLaunch(ctx, runID, req.Provider.Name)
	defer span.End()

	cred, err := l.resolveCredential(ctx, req, logger)
	if err != nil {
		return l.finish(res, start, err)
	}

	ip, err := l.provisionInstance(ctx, req, logger)
	if err != nil {
		return l.finish(res, start, err)
	}
	res.IP = ip
	logger = logger.WithInstance(ip)

	host, err := l.dialHost(ctx, req, ip, logger)
	if err != nil {
		return l.finish(res, start, err)
	}
	if closer, ok := host.(io.Closer); ok {
		defer closer.Close()
	}

	if err := l.injectEnvironment(ctx, req, cred, host, logger); err != nil {
		return l.finish(res, start, err)
	}

	if err := l.awaitReadiness(ctx, req, host, logger); err != nil {
		return l.finish(res, start, err)
	}

	if err := l.startAgent(ctx, req, host, logger); err != nil {
		return l.finish(res, start, err)
	}

	res.Elapsed = time.Since(start)
	logger.Infof("launch complete in %s", res.Elapsed.Round(time.Second))
	l.Metrics.RecordLaunchCompleted(req.Provider.Name, "success", res.Elapsed)
	telemetry.RecordSuccess(span)
	return res, nil
}

// resolveCredential loads the provider credential from the environment or
// the config store and validates it against the provider.
func (l *Launcher) resolveCredential(ctx context.Context, req Request, logger *telemetry.Logger) (credentials.Credential, error) {
	ctx, span := l.Tracer.StartPhase(ctx, "credentials")
	defer span.End()

	cred, needsAuth := req.Provider.Credential()
	if !needsAuth {
		logger.Debug("provider needs no credential")
		return cred, nil
	}

	store := l.Store
	if store == nil {
		store = &credentials.Store{ConfigDir: credentials.DefaultConfigDir()}
	}

	if !store.Resolve(&cred) {
		err := NewCredentialError(
			fmt.Sprintf("no credential found for %s; set %s or run 'spinup credentials save %s'",
				req.Provider.Label, req.Provider.AuthSpec, req.Provider.Name),
			nil,
		).WithProvider(req.Provider.Name).WithPhase("credentials")
		l.Metrics.RecordCredentialValidation(req.Provider.Name, "missing")
		telemetry.RecordError(span, err)
		return cred, err
	}

	if err := credentials.Validate(ctx, &cred, req.Probe); err != nil {
		werr := NewCredentialError("credential rejected by provider", err).
			WithProvider(req.Provider.Name).WithPhase("credentials")
		l.Metrics.RecordCredentialValidation(req.Provider.Name, "invalid")
		telemetry.RecordError(span, werr)
		return cred, werr
	}

	l.Metrics.RecordCredentialValidation(req.Provider.Name, "valid")
	logger.Debug("credential validated")
	return cred, nil
}

// provisionInstance polls the provider API until the instance reports the
// target status with an address.
func (l *Launcher) provisionInstance(ctx context.Context, req Request, logger *telemetry.Logger) (string, error) {
	ctx, span := l.Tracer.StartPhase(ctx, "provision")
	defer span.End()

	api := provision.APIFunc(func(ctx context.Context) ([]byte, error) {
		l.Metrics.RecordPollAttempt(req.Provider.Name)
		body, err := req.API.Poll(ctx)
		l.Metrics.RecordAPICall(req.Provider.Name, "poll", err)
		return body, err
	})

	poller := provision.NewPoller(api, provision.Config{
		Label:        req.Provider.Label,
		TargetStatus: req.Provider.TargetStatus,
		StatusPath:   req.Provider.StatusPath,
		IPPath:       req.Provider.IPPath,
		MaxAttempts:  req.MaxAttempts,
		Schedule:     req.Schedule,
	})

	ip, err := poller.Wait(ctx)
	if err != nil {
		var timeout *provision.TimeoutError
		if errors.As(err, &timeout) {
			l.Metrics.RecordProvisionTimeout(req.Provider.Name)
			werr := NewTimeoutError("instance never became ready", err).
				WithProvider(req.Provider.Name).WithPhase("provision")
			telemetry.RecordError(span, werr)
			return "", werr
		}
		werr := NewTransientError("provisioning poll failed", err).
			WithProvider(req.Provider.Name).WithPhase("provision")
		telemetry.RecordError(span, werr)
		return "", werr
	}

	logger.Infof("instance running at %s", ip)
	return ip, nil
}

// dialHost connects to the freshly provisioned instance.
func (l *Launcher) dialHost(ctx context.Context, req Request, ip string, logger *telemetry.Logger) (Host, error) {
	ctx, span := l.Tracer.StartPhase(ctx, "dial")
	defer span.End()

	host, err := req.Dial(ctx, ip)
	if err != nil {
		l.Metrics.RecordSSHAttempt("dial_failed")
		werr := NewUnreachableError(fmt.Sprintf("cannot connect to %s", ip), err).
			WithProvider(req.Provider.Name).WithPhase("dial")
		telemetry.RecordError(span, werr)
		return nil, werr
	}

	logger.Debug("connected to instance")
	return host, nil
}

// awaitReadiness waits until the instance is actually usable: cloud-init
// finished and a command round-trips.
func (l *Launcher) awaitReadiness(ctx context.Context, req Request, host Host, logger *telemetry.Logger) error {
	ctx, span := l.Tracer.StartPhase(ctx, "readiness")
	defer span.End()

	runner := ssh.RunnerFunc(host.Run)

	if err := ssh.WaitForCloudInit(ctx, runner); err != nil {
		l.Metrics.RecordSSHAttempt("cloudinit_timeout")
		werr := NewUnreachableError("cloud-init did not finish", err).
			WithProvider(req.Provider.Name).WithPhase("readiness")
		telemetry.RecordError(span, werr)
		return werr
	}

	if err := ssh.VerifyConnectivity(ctx, runner); err != nil {
		l.Metrics.RecordSSHAttempt("unreachable")
		werr := NewUnreachableError("instance not answering over SSH", err).
			WithProvider(req.Provider.Name).WithPhase("readiness")
		telemetry.RecordError(span, werr)
		return werr
	}

	l.Metrics.RecordSSHAttempt("ok")
	logger.Debug("instance reachable, cloud-init complete")
	return nil
}

// injectEnvironment delivers the credential and any extra variables into
// the remote shell profile.
func (l *Launcher) injectEnvironment(ctx context.Context, req Request, cred credentials.Credential, host Host, logger *telemetry.Logger) error {
	ctx, span := l.Tracer.StartPhase(ctx, "inject-env")
	defer span.End()

	var pairs []envinject.Pair
	for _, name := range cred.Names {
		pairs = append(pairs, envinject.Pair{Key: name, Value: cred.Value(name)})
	}
	pairs = append(pairs, req.ExtraEnv...)

	if len(pairs) == 0 {
		logger.Debug("nothing to inject")
		return nil
	}

	reg := l.Tmp
	if reg == nil {
		reg = tempfiles.NewRegistry()
	}

	profile := req.Agent.ProfilePath
	if profile == "" {
		profile = cloudinit.ProfilePath
	}

	if err := envinject.Inject(ctx, host, reg, pairs, profile); err != nil {
		werr := NewTransientError("environment injection failed", err).
			WithProvider(req.Provider.Name).WithPhase("inject-env")
		telemetry.RecordError(span, werr)
		return werr
	}

	logger.Debugf("injected %d environment variables", len(pairs))
	return nil
}

// startAgent runs the agent command on the prepared instance.
func (l *Launcher) startAgent(ctx context.Context, req Request, host Host, logger *telemetry.Logger) error {
	ctx, span := l.Tracer.StartPhase(ctx, "run-agent")
	defer span.End()

	// Hand the host through unwrapped where possible: wrapping it would
	// hide an ExecNative implementation from the dispatch in agent.Run.
	executor := req.Executor
	if executor == nil {
		if e, ok := host.(agent.Executor); ok {
			executor = e
		} else {
			executor = agent.ExecutorFunc(host.Run)
		}
	}

	logger.Infof("starting %s", req.Agent.Binary)
	if err := agent.Run(ctx, executor, req.Agent); err != nil {
		werr := NewAgentError("agent execution failed", err).
			WithProvider(req.Provider.Name).WithPhase("run-agent")
		telemetry.RecordError(span, werr)
		return werr
	}
	return nil
}

func (l *Launcher) finish(res Result, start time.Time, err error) (Result, error) {
	res.Elapsed = time.Since(start)
	l.Metrics.RecordLaunchCompleted(res.Provider, "failure", res.Elapsed)
	return res, err
}

func (l *Launcher) logger() *telemetry.Logger {
	if l.Log != nil {
		return l.Log
	}
	return telemetry.FromContext(context.Background())
}
