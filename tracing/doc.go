// Package tracing configures OpenTelemetry for the forwarder.
// Trace and span IDs are X-Ray compatible and the parent context is taken from the X-Ray trace header,
// so spans of the forwarder join the trace of the invocation when X-Ray tracing is active.
//
// https://github.com/open-telemetry/opentelemetry-go/tree/main/exporters
package tracing
