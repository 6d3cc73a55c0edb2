package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/suryxnshsingh/live-video-doubt-chat"

// Span names. An ask request produces SpanAsk with one policy span under it,
// and the policy span holds one span per model call.
const (
	SpanAsk         = "ask"
	SpanTwoStage    = "triage.two_stage"
	SpanSingleStage = "triage.single_stage"
	SpanClassify    = "triage.classify"
	SpanGenerate    = "triage.generate"
)

// Span attributes set by the service.
const (
	AttrSessionID = attribute.Key("doubtchat.session.id")
	AttrCategory  = attribute.Key("doubtchat.triage.category")
	AttrOutcome   = attribute.Key("doubtchat.triage.outcome")
	AttrStage     = attribute.Key("doubtchat.triage.stage")
)

type sessionKey struct{}

// WithSession returns a copy of ctx bound to sessionID. The span active in
// ctx is tagged with it, as is every span later started through [StartSpan]
// and every line logged through [Logger].
func WithSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	trace.SpanFromContext(ctx).SetAttributes(AttrSessionID.String(sessionID))
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionID returns the session bound by [WithSession], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// StartSpan starts a span on the global tracer provider. The caller must end
// it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(AttrSessionID.String(id)))
	}
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// Fail records err on span and marks the span as failed. nil is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID is the trace id of the span in ctx, or "" without one. The
// HTTP layer returns it to clients as X-Correlation-ID so a reported failure
// can be found in the logs.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger with the trace_id, span_id and
// session_id found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, slog.String("session_id", id))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
