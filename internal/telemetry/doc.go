// Package telemetry exports store activity to Prometheus and OpenTelemetry.
//
// Both Metrics and Tracing are ordinary store extensions; they wrap the
// root reducer through engine.MetaReducerProvider and observe transitions
// through engine.Extension.
package telemetry
