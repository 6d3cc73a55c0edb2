package transcript

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// DefaultQueueSize is the number of pending batches an [Ingestor] buffers.
const DefaultQueueSize = 64

var (
	// ErrIngestorClosed is returned by Submit after Close.
	ErrIngestorClosed = errors.New("transcript: ingestor closed")

	// ErrQueueFull is returned by Submit when the queue is full of batches
	// that carry final tokens, none of which may be discarded.
	ErrQueueFull = errors.New("transcript: ingest queue full")
)

// Corrector rewrites the text of a final token before it is accepted.
// Implementations must be safe for concurrent use.
type Corrector interface {
	Correct(text string) string
}

// FinalSink receives the final tokens accepted from each batch. tag is the
// ingestor's tag at the time the batch was applied, see [Ingestor.Reset].
type FinalSink interface {
	PublishFinals(ctx context.Context, tag string, tokens []Token) error
}

type pending struct {
	tokens          []types.RecognitionToken
	provisionalOnly bool
	gen             uint64
}

// Ingestor is the single writer of an [Aggregator]. Producers call Submit from
// any goroutine; Run applies the queued batches one at a time.
type Ingestor struct {
	agg     *Aggregator
	sink    FinalSink
	metrics *observe.Metrics
	size    int

	corrMu    sync.RWMutex
	corrector Corrector

	// applyMu orders Reset against the aggregator write in apply.
	applyMu sync.Mutex

	mu     sync.Mutex
	queue  []pending
	gen    uint64
	tag    string
	closed bool
	wake   chan struct{}
}

// IngestOption configures an [Ingestor].
type IngestOption func(*Ingestor)

// WithCorrector sets the corrector applied to final tokens.
func WithCorrector(c Corrector) IngestOption {
	return func(in *Ingestor) {
		in.corrector = c
	}
}

// WithFinalSink forwards accepted finals to sink.
func WithFinalSink(sink FinalSink) IngestOption {
	return func(in *Ingestor) {
		in.sink = sink
	}
}

// WithTag sets the initial tag passed to the final sink.
func WithTag(tag string) IngestOption {
	return func(in *Ingestor) {
		in.tag = tag
	}
}

// WithQueueSize sets the number of pending batches. Values below 1 are ignored.
func WithQueueSize(n int) IngestOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.size = n
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) IngestOption {
	return func(in *Ingestor) {
		in.metrics = m
	}
}

// NewIngestor returns an Ingestor writing to agg. Call Run to start it.
func NewIngestor(agg *Aggregator, opts ...IngestOption) *Ingestor {
	in := &Ingestor{
		agg:  agg,
		size: DefaultQueueSize,
		wake: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(in)
	}
	if in.metrics == nil {
		in.metrics = observe.DefaultMetrics()
	}
	return in
}

// SetCorrector swaps the corrector, e.g. after a glossary reload. nil disables
// correction.
func (in *Ingestor) SetCorrector(c Corrector) {
	in.corrMu.Lock()
	in.corrector = c
	in.corrMu.Unlock()
}

// Submit queues a recognition batch. It never blocks. When the queue is full
// the oldest provisional-only batch is discarded to make room; provisional
// tokens are superseded by the next batch anyway. If every queued batch holds
// finals and batch does too, Submit returns ErrQueueFull.
func (in *Ingestor) Submit(batch []types.RecognitionToken) error {
	p := pending{tokens: batch, provisionalOnly: true}
	for _, t := range batch {
		if t.IsFinal {
			p.provisionalOnly = false
			break
		}
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return ErrIngestorClosed
	}
	p.gen = in.gen
	if len(in.queue) >= in.size {
		victim := -1
		for i, q := range in.queue {
			if q.provisionalOnly {
				victim = i
				break
			}
		}
		switch {
		case victim >= 0:
			dropped := len(in.queue[victim].tokens)
			in.queue = append(in.queue[:victim], in.queue[victim+1:]...)
			in.metrics.RecordTokensDropped(context.Background(), "queue_full", dropped)
		case p.provisionalOnly:
			in.mu.Unlock()
			in.metrics.RecordTokensDropped(context.Background(), "queue_full", len(batch))
			return nil
		default:
			in.mu.Unlock()
			return ErrQueueFull
		}
	}
	in.queue = append(in.queue, p)
	in.mu.Unlock()

	select {
	case in.wake <- struct{}{}:
	default:
	}
	return nil
}

// Reset discards every queued batch, clears the aggregator and switches the
// sink tag to tag. A batch already being applied when Reset is called is
// discarded too, so nothing submitted before Reset reaches the aggregator or
// the sink afterwards. Batches submitted after Reset returns are kept.
func (in *Ingestor) Reset(tag string) {
	in.applyMu.Lock()
	defer in.applyMu.Unlock()

	in.mu.Lock()
	dropped := 0
	for _, q := range in.queue {
		dropped += len(q.tokens)
	}
	in.queue = nil
	in.gen++
	in.tag = tag
	in.mu.Unlock()

	in.agg.Clear()
	if dropped > 0 {
		in.metrics.RecordTokensDropped(context.Background(), "reset", dropped)
	}
}

// Close stops accepting batches. Run drains what is already queued and then
// returns. Safe to call more than once.
func (in *Ingestor) Close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

// Run applies queued batches until ctx is cancelled or Close is called and the
// queue is drained.
func (in *Ingestor) Run(ctx context.Context) {
	for {
		p, ok, closed := in.next()
		if ok {
			in.apply(ctx, p)
			continue
		}
		if closed {
			return
		}
		select {
		case <-in.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (in *Ingestor) next() (p pending, ok, closed bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.queue) == 0 {
		return pending{}, false, in.closed
	}
	p = in.queue[0]
	in.queue[0] = pending{}
	in.queue = in.queue[1:]
	return p, true, in.closed
}

// current reports whether gen is still the live generation, and the tag that
// goes with it.
func (in *Ingestor) current(gen uint64) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tag, in.gen == gen
}

func (in *Ingestor) apply(ctx context.Context, p pending) {
	batch := p.tokens
	in.corrMu.RLock()
	corr := in.corrector
	in.corrMu.RUnlock()

	malformed := 0
	tokens := make([]Token, 0, len(batch))
	for _, rt := range batch {
		tok, ok := FromRecognition(rt)
		if !ok {
			malformed++
			continue
		}
		if tok.Final && corr != nil {
			if fixed := normalizeText(corr.Correct(tok.Text)); fixed != "" {
				tok.Text = fixed
			}
		}
		tokens = append(tokens, tok)
	}

	in.applyMu.Lock()
	tag, live := in.current(p.gen)
	if !live {
		in.applyMu.Unlock()
		in.metrics.RecordTokensDropped(ctx, "reset", len(batch))
		return
	}
	stats := in.agg.ApplyResult(tokens)
	in.applyMu.Unlock()
	in.metrics.RecordIngest(ctx, len(stats.Accepted), stats.Provisional, stats.Duplicates, malformed+stats.Malformed)

	if in.sink != nil && len(stats.Accepted) > 0 {
		if err := in.sink.PublishFinals(ctx, tag, stats.Accepted); err != nil {
			slog.Warn("transcript: publish finals failed", "tokens", len(stats.Accepted), "err", err)
		}
	}
}
