// Package prometheus renders credflow engine metrics in the Prometheus text
// exposition format without touching a global registry. Counters are named
// credflow_*_total and flow latency is credflow_flow_latency_seconds.
package prometheus
