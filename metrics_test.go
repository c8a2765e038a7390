package credflow

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricSignInSuccess)

	if got := m.Value(MetricSignInSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricSessionCreated)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricSessionCreated); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		80 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		900 * time.Millisecond,
		3 * time.Second,
	} {
		m.Observe(MetricFlowLatency, d)
	}
	// Counters never take observations.
	m.Observe(MetricSignInSuccess, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricFlowLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotOmitsHistogramWhenLatencyDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricSignInFailure)
	m.Inc(MetricSignInFailure)
	m.Observe(MetricFlowLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricSignInFailure] != 2 {
		t.Fatalf("expected 2 sign-in failures, got %d", snap.Counters[MetricSignInFailure])
	}
	if _, ok := snap.Histograms[MetricFlowLatency]; ok {
		t.Fatal("latency histogram must be absent when disabled")
	}
	if _, ok := snap.Counters[MetricFlowLatency]; ok {
		t.Fatal("histogram id must not appear among counters")
	}
}
