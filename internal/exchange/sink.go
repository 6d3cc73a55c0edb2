package exchange

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
)

// Sink persists exchange records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Compile-time interface checks.
var (
	_ Sink = Nop{}
	_ Sink = Multi(nil)
	_ Sink = (*FileSink)(nil)
	_ Sink = (*PostgresSink)(nil)
	_ Sink = (*KafkaSink)(nil)
)

// Nop discards every record.
type Nop struct{}

func (Nop) Write(context.Context, Record) error { return nil }
func (Nop) Close() error                        { return nil }
func (Nop) Name() string                        { return "nop" }

// Multi writes each record to every sink concurrently. All sink errors are
// joined; one failing sink does not stop the others.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, rec Record) error {
	errs := make([]error, len(m))
	var g errgroup.Group
	for i, s := range m {
		g.Go(func() error {
			if err := s.Write(ctx, rec); err != nil {
				errs[i] = &SinkError{Sink: sinkName(s), Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sinkName(s), err))
		}
	}
	return errors.Join(errs...)
}

// SinkError attributes a write failure to a sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return e.Sink + ": " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

// Log writes rec to s. Failures are logged and counted, never returned: the
// exchange log must not affect the reply.
func Log(ctx context.Context, s Sink, rec Record, m *observe.Metrics) {
	if s == nil {
		return
	}
	err := s.Write(ctx, rec)
	if err == nil {
		return
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	for _, name := range failedSinks(s, err) {
		m.RecordExchangeWriteError(ctx, name)
	}
	observe.Logger(observe.WithSession(ctx, rec.SessionID)).Warn("exchange: write failed", "error", err)
}

func failedSinks(s Sink, err error) []string {
	var names []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var se *SinkError
			if errors.As(e, &se) {
				names = append(names, se.Sink)
			}
		}
	}
	if len(names) == 0 {
		names = append(names, sinkName(s))
	}
	return names
}

func sinkName(s Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
