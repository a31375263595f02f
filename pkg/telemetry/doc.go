// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the launcher. Logging wraps zerolog; metrics
// and tracing are optional and default to off for one-shot CLI runs.
package telemetry
