package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// restoreGlobals puts the OTel globals back after InitProvider replaced them.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitProvider_ExportsSpansAndMetrics(t *testing.T) {
	restoreGlobals(t)

	exp := tracetest.NewInMemoryExporter()
	reg := prometheus.NewRegistry()
	tel, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		TraceExporter:  exp,
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordClassification(context.Background(), "subject_based")

	_, span := StartSpan(WithSession(context.Background(), "sess-1"), SpanAsk)
	span.End()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("registry gathered no metric families")
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != SpanAsk {
		t.Fatalf("exported spans = %v, want one %s", spans, SpanAsk)
	}
	if got := spans[0].Resource.Attributes(); len(got) == 0 {
		t.Error("span resource has no attributes")
	}
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != defaultServiceName {
		t.Errorf("service.name = %q, want %q", service, defaultServiceName)
	}

	if _, ok := otel.GetTextMapPropagator().(propagation.TraceContext); !ok {
		t.Errorf("propagator = %T, want propagation.TraceContext", otel.GetTextMapPropagator())
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		want  string
	}{
		{ratio: 0, want: "AlwaysOnSampler"},
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: -2, want: "AlwaysOnSampler"},
		{ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		got := sampler(tt.ratio).Description()
		want := "ParentBased{root:" + tt.want
		if len(got) < len(want) || got[:len(want)] != want {
			t.Errorf("sampler(%g) = %q, want prefix %q", tt.ratio, got, want)
		}
	}
}
