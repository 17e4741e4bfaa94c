// Package observe provides the observability primitives shared by the rhyme
// service: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider], so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance exists for convenience; tests should
// use [NewMetrics] with their own [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/rhymeslikedimes"

// Metrics holds all OpenTelemetry instruments for the application. The
// underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Rhyme source ---

	// SourceRequests counts rhyme source lookups. Attributes:
	//   attribute.String("relation", ...), attribute.String("status", ...)
	// where status is one of ok, fallback, unavailable, cached.
	SourceRequests metric.Int64Counter

	// SourceDuration tracks provider call latency. Attributes:
	//   attribute.String("provider", ...), attribute.String("relation", ...)
	SourceDuration metric.Float64Histogram

	// --- Analysis ---

	// AnalysisDuration tracks end-to-end line analysis latency.
	AnalysisDuration metric.Float64Histogram

	// Fragments counts enumerated fragments by outcome (emitted, empty,
	// unknown_word).
	Fragments metric.Int64Counter

	// Classifications counts classified candidates by category, including
	// "none" for discarded ones.
	Classifications metric.Int64Counter

	// --- Transport ---

	// ActiveSessions tracks open WebSocket sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SupersededRequests counts analyses cancelled because a newer line
	// arrived on the same session.
	SupersededRequests metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// interactive, as-you-type lookups.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SourceRequests, err = m.Int64Counter("rhymes.source.requests",
		metric.WithDescription("Rhyme source lookups by relation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SourceDuration, err = m.Float64Histogram("rhymes.source.duration",
		metric.WithDescription("Latency of rhyme source provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.AnalysisDuration, err = m.Float64Histogram("rhymes.analysis.duration",
		metric.WithDescription("Latency of a full line analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Fragments, err = m.Int64Counter("rhymes.analysis.fragments",
		metric.WithDescription("Enumerated fragments by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Classifications, err = m.Int64Counter("rhymes.classifier.classifications",
		metric.WithDescription("Classified candidates by rhyme category."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("rhymes.ws.active_sessions",
		metric.WithDescription("Number of open WebSocket sessions."),
	); err != nil {
		return nil, err
	}
	if met.SupersededRequests, err = m.Int64Counter("rhymes.ws.superseded",
		metric.WithDescription("Analyses cancelled by a newer request on the same session."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("rhymes.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSourceRequest increments the source request counter.
func (m *Metrics) RecordSourceRequest(ctx context.Context, relation, status string) {
	m.SourceRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("relation", relation),
			attribute.String("status", status),
		),
	)
}

// RecordSourceDuration records the latency of one provider call.
func (m *Metrics) RecordSourceDuration(ctx context.Context, provider, relation string, d time.Duration) {
	m.SourceDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("relation", relation),
		),
	)
}

// RecordFragment increments the fragment counter for outcome.
func (m *Metrics) RecordFragment(ctx context.Context, outcome string) {
	m.Fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordClassification increments the classification counter for category.
func (m *Metrics) RecordClassification(ctx context.Context, category string) {
	m.Classifications.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}
