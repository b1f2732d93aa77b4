// Package observe provides application-wide observability primitives for
// Voxen: OpenTelemetry metrics and the SDK provider wiring.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxen metrics.
const meterName = "github.com/voxenlabs/voxen"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// IdentifyDuration tracks speaker identification latency (embedding plus
	// matching).
	IdentifyDuration metric.Float64Histogram

	// LLMDuration tracks planner inference latency.
	LLMDuration metric.Float64Histogram

	// SkillDuration tracks skill execution latency.
	SkillDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts completed utterances entering the pipeline. Use with
	// attributes:
	//   attribute.String("source", ...), attribute.Bool("identified", ...)
	Utterances metric.Int64Counter

	// PlanParseFailures counts action plans the parser rejected. Use with
	// attribute:
	//   attribute.String("kind", ...)
	PlanParseFailures metric.Int64Counter

	// SkillCalls counts dispatched skill calls. Use with attributes:
	//   attribute.String("skill", ...), attribute.String("status", ...)
	SkillCalls metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSources tracks the number of live capture sources.
	ActiveSources metric.Int64UpDownCounter

	// PendingConfirmations tracks deferred skill calls awaiting a yes/no.
	PendingConfirmations metric.Int64UpDownCounter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voxen.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IdentifyDuration, err = m.Float64Histogram("voxen.identify.duration",
		metric.WithDescription("Latency of speaker identification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxen.llm.duration",
		metric.WithDescription("Latency of planner inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SkillDuration, err = m.Float64Histogram("voxen.skill.duration",
		metric.WithDescription("Latency of skill execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("voxen.utterances",
		metric.WithDescription("Total completed utterances by source and identification outcome."),
	); err != nil {
		return nil, err
	}
	if met.PlanParseFailures, err = m.Int64Counter("voxen.plan.parse_failures",
		metric.WithDescription("Total rejected action plans by failure kind."),
	); err != nil {
		return nil, err
	}
	if met.SkillCalls, err = m.Int64Counter("voxen.skill.calls",
		metric.WithDescription("Total skill invocations by skill id and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxen.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSources, err = m.Int64UpDownCounter("voxen.active_sources",
		metric.WithDescription("Number of live capture sources."),
	); err != nil {
		return nil, err
	}
	if met.PendingConfirmations, err = m.Int64UpDownCounter("voxen.pending_confirmations",
		metric.WithDescription("Number of deferred skill calls awaiting confirmation."),
	); err != nil {
		return nil, err
	}

	// HTTP histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxen.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance increments the utterance counter with the standard
// attribute set.
func (m *Metrics) RecordUtterance(ctx context.Context, source string, identified bool) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.Bool("identified", identified),
		),
	)
}

// RecordSkillCall increments the skill call counter with the standard
// attribute set.
func (m *Metrics) RecordSkillCall(ctx context.Context, skillID, status string) {
	m.SkillCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("skill", skillID),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter with the
// standard attribute set.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
