// Package otel exposes credflow engine counters and the flow latency
// histogram as OpenTelemetry observable instruments.
//
// The caller owns the MeterProvider and passes a Meter to [NewExporter].
// Each histogram bucket is published as a cumulative gauge named
// <histogram>_bucket_le_<bound>.
package otel
