package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const defaultServiceName = "doubtchat"

// ProviderConfig configures [InitProvider].
type ProviderConfig struct {
	// ServiceName defaults to "doubtchat".
	ServiceName    string
	ServiceVersion string

	// SampleRatio is the fraction of new traces that are recorded. A trace
	// continued from an incoming traceparent follows the caller's decision.
	// Values outside (0, 1) record every trace.
	SampleRatio float64

	// TraceExporter receives finished spans. With nil, spans stay in process,
	// which is still enough for correlation ids and trace-aware logs.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the metric collectors. nil means
	// prometheus.DefaultRegisterer, the registry served on /metrics.
	Registerer prometheus.Registerer
}

// Telemetry is the installed pair of OTel SDK providers.
type Telemetry struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// InitProvider builds the meter and tracer providers and installs them, with
// the W3C trace-context propagator, as the OTel globals. Metrics are exported
// through a Prometheus collector. Call [Telemetry.Shutdown] before exiting to
// flush pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	reader, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	tel := &Telemetry{
		MeterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tel.TracerProvider = sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(tel.MeterProvider)
	otel.SetTracerProvider(tel.TracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tel, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.TracerProvider.Shutdown(ctx),
		t.MeterProvider.Shutdown(ctx),
	)
}
