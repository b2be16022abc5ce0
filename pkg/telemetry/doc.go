// Package telemetry wires OpenTelemetry tracing and metric instruments for the
// governance engine.
//
// It centralises trace provider setup and offers helpers that annotate spans
// with proposal and authorization metadata so operators can correlate state
// transitions with the calls that caused them.
package telemetry
