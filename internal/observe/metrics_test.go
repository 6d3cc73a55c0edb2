package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
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

// sumFor returns the int64 sum data point value whose attribute key has the
// given string value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordTriageStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTriageStage(ctx, "classify", 120*time.Millisecond)
	m.RecordTriageStage(ctx, "classify", 300*time.Millisecond)
	m.RecordTriageStage(ctx, "generate", 2*time.Second)

	rm := collect(t, reader)
	met := findMetric(rm, "doubtchat.triage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("stage")
		counts[v.AsString()] = dp.Count
	}
	if counts["classify"] != 2 || counts["generate"] != 1 {
		t.Errorf("stage counts = %v, want classify=2 generate=1", counts)
	}
}

func TestTriageCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordClassification(ctx, "noise")
	m.RecordClassification(ctx, "noise")
	m.RecordClassification(ctx, "subject_based")
	m.RecordGeneratorCall(ctx, "two_stage")
	m.RecordUpstreamError(ctx, "generate")

	rm := collect(t, reader)

	if got := sumFor(t, rm, "doubtchat.triage.classifications", "category", "noise"); got != 2 {
		t.Errorf("noise classifications = %d, want 2", got)
	}
	if got := sumFor(t, rm, "doubtchat.triage.classifications", "category", "subject_based"); got != 1 {
		t.Errorf("subject classifications = %d, want 1", got)
	}
	if got := sumFor(t, rm, "doubtchat.triage.generator_calls", "policy", "two_stage"); got != 1 {
		t.Errorf("generator calls = %d, want 1", got)
	}
	if got := sumFor(t, rm, "doubtchat.triage.upstream_errors", "stage", "generate"); got != 1 {
		t.Errorf("upstream errors = %d, want 1", got)
	}
}

func TestRecordIngest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordIngest(ctx, 3, 2, 1, 4)
	m.RecordIngest(ctx, 0, 0, 0, 0)
	m.RecordTokensDropped(ctx, "queue_full", 5)

	rm := collect(t, reader)

	if got := sumFor(t, rm, "doubtchat.transcript.tokens_ingested", "final", "true"); got != 3 {
		t.Errorf("final tokens = %d, want 3", got)
	}
	if got := sumFor(t, rm, "doubtchat.transcript.tokens_ingested", "final", "false"); got != 2 {
		t.Errorf("provisional tokens = %d, want 2", got)
	}
	if got := sumFor(t, rm, "doubtchat.transcript.tokens_deduplicated", "", ""); got != 1 {
		t.Errorf("deduplicated = %d, want 1", got)
	}
	if got := sumFor(t, rm, "doubtchat.transcript.tokens_dropped", "reason", "malformed"); got != 4 {
		t.Errorf("malformed = %d, want 4", got)
	}
	if got := sumFor(t, rm, "doubtchat.transcript.tokens_dropped", "reason", "queue_full"); got != 5 {
		t.Errorf("queue_full = %d, want 5", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.ActiveStreams.Add(ctx, 3)

	rm := collect(t, reader)

	if got := sumFor(t, rm, "doubtchat.active_sessions", "", ""); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
	if got := sumFor(t, rm, "doubtchat.active_streams", "", ""); got != 3 {
		t.Errorf("active streams = %d, want 3", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "POST"),
			attribute.String("route", "POST /sessions/{id}/ask"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "doubtchat.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
