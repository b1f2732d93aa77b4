package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"voxen.stt.duration", m.STTDuration},
		{"voxen.identify.duration", m.IdentifyDuration},
		{"voxen.llm.duration", m.LLMDuration},
		{"voxen.skill.duration", m.SkillDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			found := findMetric(rm, tc.name)
			if found == nil {
				t.Fatalf("metric %q not collected", tc.name)
			}
			hist, ok := found.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is %T, want Histogram[float64]", tc.name, found.Data)
			}
			if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
				t.Errorf("metric %q: unexpected data points %+v", tc.name, hist.DataPoints)
			}
		})
	}
}

func TestCounterAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, "local", true)
	m.RecordUtterance(ctx, "local", false)
	m.RecordSkillCall(ctx, "timer.set", "ok")
	m.RecordProviderError(ctx, "whisper", "stt")

	rm := collect(t, reader)

	utterances := findMetric(rm, "voxen.utterances")
	if utterances == nil {
		t.Fatal("utterance counter not collected")
	}
	sum, ok := utterances.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("utterance counter is %T, want Sum[int64]", utterances.Data)
	}
	// Distinct attribute sets produce distinct data points.
	if len(sum.DataPoints) != 2 {
		t.Errorf("got %d utterance data points, want 2", len(sum.DataPoints))
	}

	if findMetric(rm, "voxen.skill.calls") == nil {
		t.Error("skill call counter not collected")
	}
	if findMetric(rm, "voxen.provider.errors") == nil {
		t.Error("provider error counter not collected")
	}
}

func TestNewResource_NodeAttribute(t *testing.T) {
	res, err := newResource(ProviderConfig{ServiceName: "voxen-test", Node: "kitchen-pi"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}

	var node string
	for _, kv := range res.Attributes() {
		if kv.Key == "voxen.node" {
			node = kv.Value.AsString()
		}
	}
	if node != "kitchen-pi" {
		t.Errorf("voxen.node = %q, want kitchen-pi", node)
	}
}

func TestUpDownCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSources.Add(ctx, 2)
	m.ActiveSources.Add(ctx, -1)

	rm := collect(t, reader)
	found := findMetric(rm, "voxen.active_sources")
	if found == nil {
		t.Fatal("active source gauge not collected")
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("gauge is %T, want Sum[int64]", found.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("unexpected gauge data points: %+v", sum.DataPoints)
	}
}
