// Package telemetry wraps OpenTelemetry SDK initialization for the
// governance service, providing the TracerProvider behind the HTTP tracing
// middleware and the MeterProvider for exported metrics. When telemetry is
// disabled the global providers stay noop and nothing connects out.
package telemetry
