package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate: %v", err)
	}
	if cfg.Tracing.Enabled || cfg.Metrics.Enabled {
		t.Error("tracing and metrics should be off by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: "service name",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "log format",
		},
		{
			name: "bad exporter when tracing enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: "trace exporter",
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: "sampling rate",
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: "listen address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNilMetricsRecordersAreSafe(t *testing.T) {
	var m *Metrics

	// Every recorder must be callable on a nil receiver so call sites
	// never need guards.
	m.RecordLaunchStarted("hetzner")
	m.RecordLaunchCompleted("hetzner", "success", time.Second)
	m.RecordPollAttempt("hetzner")
	m.RecordProvisionTimeout("hetzner")
	m.RecordAPICall("hetzner", "poll", nil)
	m.RecordCredentialValidation("hetzner", "valid")
	m.RecordSSHAttempt("ok")
	m.NewTimer(nil).Stop()
}

func TestNewMetricsDisabled(t *testing.T) {
	if m := NewMetrics(MetricsConfig{Enabled: false}); m != nil {
		t.Error("disabled metrics config should yield nil")
	}
}

func TestMetricsRecorders(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"})
	if m == nil {
		t.Fatal("enabled metrics config yielded nil")
	}
	m.RecordLaunchStarted("hetzner")
	m.RecordLaunchCompleted("hetzner", "failure", 2*time.Second)
	m.RecordAPICall("hetzner", "poll", nil)

	timer := m.NewTimer(m.CommandDuration, "agent")
	if timer == nil {
		t.Fatal("timer should be non-nil on live metrics")
	}
	timer.Stop()
}
