// Package observe provides application-wide observability primitives for the
// doubt-chat service: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all service metrics.
const meterName = "github.com/suryxnshsingh/live-video-doubt-chat"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Triage ---

	// TriageDuration tracks latency per triage stage. Use with attribute:
	//   attribute.String("stage", "classify"|"generate"|"total")
	TriageDuration metric.Float64Histogram

	// Classifications counts classifier outcomes. Use with attribute:
	//   attribute.String("category", ...)
	Classifications metric.Int64Counter

	// GeneratorCalls counts invocations of the expensive answer model. Use
	// with attribute attribute.String("policy", ...).
	GeneratorCalls metric.Int64Counter

	// UpstreamErrors counts failed model calls. Use with attribute:
	//   attribute.String("stage", ...)
	UpstreamErrors metric.Int64Counter

	// --- Transcript ingestion ---

	// TokensIngested counts tokens accepted into a transcript. Use with
	// attribute attribute.Bool("final", ...).
	TokensIngested metric.Int64Counter

	// TokensDeduplicated counts final tokens skipped as re-emissions.
	TokensDeduplicated metric.Int64Counter

	// TokensDropped counts tokens that never reached a transcript. Use with
	// attribute attribute.String("reason", "malformed"|"queue_full"|"reset").
	TokensDropped metric.Int64Counter

	// ExchangeWriteErrors counts failed exchange log writes by sink.
	ExchangeWriteErrors metric.Int64Counter

	// ProviderFailovers counts model calls that a provider could not serve,
	// by provider name and reason ("error" or "circuit_open").
	ProviderFailovers metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open lecture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveStreams tracks the number of connected transcript subscribers.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model round trips, from a fast classifier to a slow long-form answer.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TriageDuration, err = m.Float64Histogram("doubtchat.triage.duration",
		metric.WithDescription("Latency of question triage by stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Classifications, err = m.Int64Counter("doubtchat.triage.classifications",
		metric.WithDescription("Total classified questions by category."),
	); err != nil {
		return nil, err
	}
	if met.GeneratorCalls, err = m.Int64Counter("doubtchat.triage.generator_calls",
		metric.WithDescription("Total answer generator invocations by policy."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamErrors, err = m.Int64Counter("doubtchat.triage.upstream_errors",
		metric.WithDescription("Total failed model calls by stage."),
	); err != nil {
		return nil, err
	}

	if met.TokensIngested, err = m.Int64Counter("doubtchat.transcript.tokens_ingested",
		metric.WithDescription("Total tokens accepted into a transcript."),
	); err != nil {
		return nil, err
	}
	if met.TokensDeduplicated, err = m.Int64Counter("doubtchat.transcript.tokens_deduplicated",
		metric.WithDescription("Total final tokens skipped as duplicates."),
	); err != nil {
		return nil, err
	}
	if met.TokensDropped, err = m.Int64Counter("doubtchat.transcript.tokens_dropped",
		metric.WithDescription("Total tokens dropped before reaching a transcript by reason."),
	); err != nil {
		return nil, err
	}
	if met.ExchangeWriteErrors, err = m.Int64Counter("doubtchat.exchange.write_errors",
		metric.WithDescription("Total failed exchange log writes by sink."),
	); err != nil {
		return nil, err
	}
	if met.ProviderFailovers, err = m.Int64Counter("doubtchat.provider.failovers",
		metric.WithDescription("Total model calls passed on to the next provider."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("doubtchat.active_sessions",
		metric.WithDescription("Number of open lecture sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("doubtchat.active_streams",
		metric.WithDescription("Number of connected transcript stream subscribers."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("doubtchat.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordTriageStage records the latency of one triage stage.
func (m *Metrics) RecordTriageStage(ctx context.Context, stage string, d time.Duration) {
	m.TriageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordClassification increments the classification counter for category.
func (m *Metrics) RecordClassification(ctx context.Context, category string) {
	m.Classifications.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordGeneratorCall increments the generator call counter for policy.
func (m *Metrics) RecordGeneratorCall(ctx context.Context, policy string) {
	m.GeneratorCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("policy", policy)),
	)
}

// RecordUpstreamError increments the upstream error counter for stage.
func (m *Metrics) RecordUpstreamError(ctx context.Context, stage string) {
	m.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordIngest records the outcome of applying one recognition batch.
// Zero counts are skipped.
func (m *Metrics) RecordIngest(ctx context.Context, finals, provisionals, duplicates, malformed int) {
	if finals > 0 {
		m.TokensIngested.Add(ctx, int64(finals), metric.WithAttributes(attribute.Bool("final", true)))
	}
	if provisionals > 0 {
		m.TokensIngested.Add(ctx, int64(provisionals), metric.WithAttributes(attribute.Bool("final", false)))
	}
	if duplicates > 0 {
		m.TokensDeduplicated.Add(ctx, int64(duplicates))
	}
	if malformed > 0 {
		m.RecordTokensDropped(ctx, "malformed", malformed)
	}
}

// RecordTokensDropped adds n to the dropped token counter for reason.
func (m *Metrics) RecordTokensDropped(ctx context.Context, reason string, n int) {
	m.TokensDropped.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordExchangeWriteError increments the exchange write error counter.
func (m *Metrics) RecordExchangeWriteError(ctx context.Context, sink string) {
	m.ExchangeWriteErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("sink", sink)),
	)
}

// RecordProviderFailover increments the failover counter for provider.
func (m *Metrics) RecordProviderFailover(ctx context.Context, provider, reason string) {
	m.ProviderFailovers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("reason", reason),
		),
	)
}
