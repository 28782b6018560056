package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	stepup "github.com/idforge/stepup"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.Mutex
	snapshot stepup.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() stepup.MetricsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	source := &fakeSource{
		snapshot: stepup.MetricsSnapshot{
			Counters: map[stepup.MetricID]uint64{
				stepup.MetricEvaluate:  11,
				stepup.MetricCodeSent:  4,
				stepup.MetricMFAFailed: 1,
			},
			Histograms: map[stepup.MetricID][]uint64{
				stepup.MetricEvaluateLatency: {2, 0, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 3,
	}

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	exporter, err := NewOTelExporterFromSource(provider.Meter("test"), source)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	values := collectedValues(t, rm)
	checks := map[string]int64{
		"stepup_evaluate_total":      11,
		"stepup_code_sent_total":     4,
		"stepup_mfa_failed_total":    1,
		"stepup_mfa_verified_total":  0,
		"stepup_audit_dropped_total": 3,
		"stepup_evaluate_latency_seconds_bucket_le_0_005": 2,
		"stepup_evaluate_latency_seconds_bucket_le_inf":   3,
		"stepup_evaluate_latency_seconds_count":           3,
	}
	for name, want := range checks {
		got, ok := values[name]
		if !ok {
			t.Fatalf("instrument %s not collected", name)
		}
		if got != want {
			t.Fatalf("instrument %s = %d, want %d", name, got, want)
		}
	}
}

func TestExporterObservesUpdatedSnapshot(t *testing.T) {
	source := &fakeSource{
		snapshot: stepup.MetricsSnapshot{
			Counters:   map[stepup.MetricID]uint64{stepup.MetricEvaluate: 1},
			Histograms: map[stepup.MetricID][]uint64{},
		},
	}

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	exporter, err := NewOTelExporterFromSource(provider.Meter("test"), source)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exporter.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := collectedValues(t, rm)["stepup_evaluate_total"]; got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}

	source.mu.Lock()
	source.snapshot.Counters[stepup.MetricEvaluate] = 9
	source.mu.Unlock()

	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if got := collectedValues(t, rm)["stepup_evaluate_total"]; got != 9 {
		t.Fatalf("expected 9 after update, got %d", got)
	}
}

func TestExporterCloseStopsCollection(t *testing.T) {
	source := &fakeSource{
		snapshot: stepup.MetricsSnapshot{
			Counters:   map[stepup.MetricID]uint64{stepup.MetricEvaluate: 1},
			Histograms: map[stepup.MetricID][]uint64{},
		},
	}

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	exporter, err := NewOTelExporterFromSource(provider.Meter("test"), source)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// A second Close is a no-op for the same registration in the SDK.
	_ = exporter.Close()
}

func TestExporterRejectsNilInputs(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(provider.Meter("test"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func collectedValues(t *testing.T, rm metricdata.ResourceMetrics) map[string]int64 {
	t.Helper()

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			default:
				t.Fatalf("unexpected data type %T for %s", m.Data, m.Name)
			}
		}
	}
	return values
}
