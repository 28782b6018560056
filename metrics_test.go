package stepup

import (
	"context"
	"testing"
	"time"
)

func TestMetricsCountersAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricCodeSent)
	m.Inc(MetricCodeSent)
	m.Inc(MetricDeviceRejected)

	if got := m.Value(MetricCodeSent); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricCodeSent] != 2 || snap.Counters[MetricDeviceRejected] != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap.Counters)
	}
	if snap.Counters[MetricCodeVerified] != 0 {
		t.Fatal("expected untouched counter at zero")
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricCodeSent)
	if m.Value(MetricCodeSent) != 0 {
		t.Fatal("expected disabled metrics to stay zero")
	}

	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatal("expected empty snapshot when disabled")
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricEvaluateLatency, 3*time.Millisecond)
	m.Observe(MetricEvaluateLatency, 40*time.Millisecond)
	m.Observe(MetricEvaluateLatency, 2*time.Second)

	buckets := m.Snapshot().Histograms[MetricEvaluateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	if buckets[0] != 1 || buckets[3] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", buckets)
	}

	// Observations on non-histogram IDs are ignored.
	m.Observe(MetricCodeSent, time.Millisecond)
	if m.Value(MetricCodeSent) != 0 {
		t.Fatal("expected no counter effect from Observe")
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{time.Millisecond, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{time.Minute, 7},
	}
	for _, tt := range tests {
		if got := bucketIndex(tt.d); got != tt.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricCodeSent)
	m.Observe(MetricEvaluateLatency, time.Millisecond)
	if m.Value(MetricCodeSent) != 0 {
		t.Fatal("expected zero from nil metrics")
	}
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("expected nil metrics disabled")
	}
}

func TestEngineCountsOperations(t *testing.T) {
	engine, dir, _, done := newTestEngine(t, testConfig())
	defer done()

	account := testAccount("u1")
	dir.Create(context.Background(), account)

	engine.Evaluate(account)
	engine.Evaluate(account)

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricEvaluate] != 2 {
		t.Fatalf("expected 2 evaluations, got %d", snap.Counters[MetricEvaluate])
	}
}
