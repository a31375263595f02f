package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the launcher.
// A nil *Metrics is valid and records nothing, so callers never have
// to guard instrumentation sites.
type Metrics struct {
	registry *prometheus.Registry

	// Launch metrics
	LaunchesStarted   *prometheus.CounterVec
	LaunchesCompleted *prometheus.CounterVec
	LaunchDuration    *prometheus.HistogramVec

	// Provisioning metrics
	PollAttempts     *prometheus.CounterVec
	ProvisionTimeout *prometheus.CounterVec

	// Provider API metrics
	APICalls  *prometheus.CounterVec
	APIErrors *prometheus.CounterVec

	// Credential metrics
	CredentialValidations *prometheus.CounterVec

	// SSH metrics
	SSHConnectAttempts *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all metric collectors under the
// given namespace.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "spinup"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.LaunchesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "launches_started_total",
			Help:      "Total number of launch runs started",
		},
		[]string{"provider"},
	)

	m.LaunchesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "launches_completed_total",
			Help:      "Total number of launch runs completed by outcome",
		},
		[]string{"provider", "outcome"},
	)

	m.LaunchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "launch_duration_seconds",
			Help:      "End-to-end launch duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"provider"},
	)

	m.PollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "poll_attempts_total",
			Help:      "Total number of instance status poll attempts",
		},
		[]string{"provider"},
	)

	m.ProvisionTimeout = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "provision_timeouts_total",
			Help:      "Total number of provisioning waits that exhausted their attempts",
		},
		[]string{"provider"},
	)

	m.APICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "provider_api_calls_total",
			Help:      "Total number of provider API calls",
		},
		[]string{"provider", "operation"},
	)

	m.APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "provider_api_errors_total",
			Help:      "Total number of provider API call failures",
		},
		[]string{"provider", "operation"},
	)

	m.CredentialValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "credential_validations_total",
			Help:      "Total number of credential validations by outcome",
		},
		[]string{"provider", "outcome"},
	)

	m.SSHConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "ssh_connect_attempts_total",
			Help:      "Total number of SSH readiness attempts",
		},
		[]string{"outcome"},
	)

	m.CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "remote_command_duration_seconds",
			Help:      "Remote command execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command_type"},
	)

	registry.MustRegister(
		m.LaunchesStarted,
		m.LaunchesCompleted,
		m.LaunchDuration,
		m.PollAttempts,
		m.ProvisionTimeout,
		m.APICalls,
		m.APIErrors,
		m.CredentialValidations,
		m.SSHConnectAttempts,
		m.CommandDuration,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts a metrics HTTP server on the configured
// address. It returns immediately; the server shuts down when the
// context is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context, cfg MetricsConfig) *http.Server {
	if m == nil {
		return nil
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: mux,
	}

	go func() {
		_ = server.ListenAndServe()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server
}

// RecordLaunchStarted increments the launches-started counter.
func (m *Metrics) RecordLaunchStarted(provider string) {
	if m == nil {
		return
	}
	m.LaunchesStarted.WithLabelValues(provider).Inc()
}

// RecordLaunchCompleted records a finished launch run with its outcome
// and duration.
func (m *Metrics) RecordLaunchCompleted(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LaunchesCompleted.WithLabelValues(provider, outcome).Inc()
	m.LaunchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordPollAttempt increments the poll-attempt counter.
func (m *Metrics) RecordPollAttempt(provider string) {
	if m == nil {
		return
	}
	m.PollAttempts.WithLabelValues(provider).Inc()
}

// RecordProvisionTimeout increments the provisioning timeout counter.
func (m *Metrics) RecordProvisionTimeout(provider string) {
	if m == nil {
		return
	}
	m.ProvisionTimeout.WithLabelValues(provider).Inc()
}

// RecordAPICall records a provider API call and optionally its failure.
func (m *Metrics) RecordAPICall(provider, operation string, err error) {
	if m == nil {
		return
	}
	m.APICalls.WithLabelValues(provider, operation).Inc()
	if err != nil {
		m.APIErrors.WithLabelValues(provider, operation).Inc()
	}
}

// RecordCredentialValidation records a credential validation outcome.
func (m *Metrics) RecordCredentialValidation(provider, outcome string) {
	if m == nil {
		return
	}
	m.CredentialValidations.WithLabelValues(provider, outcome).Inc()
}

// RecordSSHAttempt records an SSH readiness attempt outcome.
func (m *Metrics) RecordSSHAttempt(outcome string) {
	if m == nil {
		return
	}
	m.SSHConnectAttempts.WithLabelValues(outcome).Inc()
}

// Timer measures the duration of an operation against a histogram.
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer starts a timer against the given histogram labels.
func (m *Metrics) NewTimer(vec *prometheus.HistogramVec, labels ...string) *Timer {
	if m == nil || vec == nil {
		return nil
	}
	return &Timer{
		start:    time.Now(),
		observer: vec.WithLabelValues(labels...),
	}
}

// Stop records the elapsed duration.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.observer.Observe(time.Since(t.start).Seconds())
}
