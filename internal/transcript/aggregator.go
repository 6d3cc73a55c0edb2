// Package transcript assembles a live lecture transcript from a stream of
// speech-recognition results.
//
// Recognisers emit batches that mix provisional guesses with final,
// authoritative tokens, and they often re-emit a final they already sent with
// slightly shifted timestamps. The [Aggregator] folds those batches into one
// ordered, deduplicated token list:
//
//   - final tokens accumulate and are never removed or reordered;
//   - provisional tokens are a disposable overlay, replaced on every batch;
//   - a final is a duplicate when a kept final has the same text and starts
//     less than [DedupTolerance] seconds away.
//
// Writes are serialised behind a single lock. Readers work on an immutable
// [Snapshot] published through an atomic pointer, so sentence segmentation and
// window extraction never observe a half-applied batch. The [Ingestor] wraps
// an Aggregator in a single-writer goroutine fed from a bounded queue.
package transcript

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DedupTolerance is the maximum start-time distance, in seconds, between two
// final tokens with identical text for the later one to count as a re-emission.
const DedupTolerance = 0.5

// DefaultRecent is the size of the "recent tokens" display list.
const DefaultRecent = 20

// ApplyStats reports what one ApplyResult call did with its batch.
type ApplyStats struct {
	// Accepted holds the new final tokens, in batch order.
	Accepted []Token

	// Provisional is the number of provisional tokens now overlaid.
	Provisional int

	// Duplicates is the number of finals skipped by the dedup rule.
	Duplicates int

	// Malformed is the number of tokens dropped for empty text or bad times.
	Malformed int
}

// Aggregator maintains one session's transcript. The zero value is not usable;
// create instances with [NewAggregator].
//
// All methods are safe for concurrent use.
type Aggregator struct {
	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[Snapshot]
	now  func() time.Time

	subMu  sync.Mutex
	subs   map[int]chan *Snapshot
	nextID int
}

// AggregatorOption configures an [Aggregator].
type AggregatorOption func(*Aggregator)

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator returns an empty Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		now:  time.Now,
		subs: make(map[int]chan *Snapshot),
	}
	for _, o := range opts {
		o(a)
	}
	a.snap.Store(&Snapshot{UpdatedAt: a.now()})
	return a
}

// ApplyResult merges one recognition batch into the transcript.
//
// Provisional tokens from earlier calls are always discarded. Incoming tokens
// with empty text are dropped silently. The call never fails: a nil or fully
// malformed batch only clears the provisional overlay.
func (a *Aggregator) ApplyResult(tokens []Token) ApplyStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.snap.Load()
	var stats ApplyStats

	existing := make([]Token, 0, cur.Finals)
	for _, t := range cur.Tokens {
		if t.Final {
			existing = append(existing, t)
		}
	}

	var provisional []Token
	for _, in := range tokens {
		tok, ok := NewToken(in.Text, in.Start, in.End, in.Final, in.Confidence)
		if !ok {
			stats.Malformed++
			continue
		}
		if !tok.Final {
			provisional = append(provisional, tok)
			continue
		}
		if isDuplicate(existing, tok) || nearMatch(stats.Accepted, tok) {
			stats.Duplicates++
			continue
		}
		stats.Accepted = append(stats.Accepted, tok)
	}
	stats.Provisional = len(provisional)

	hadProvisional := len(cur.Tokens) > cur.Finals
	if len(stats.Accepted) == 0 && len(provisional) == 0 && !hadProvisional {
		return stats
	}

	next := make([]Token, 0, len(existing)+len(stats.Accepted)+len(provisional))
	next = append(next, existing...)
	next = append(next, stats.Accepted...)
	next = append(next, provisional...)
	slices.SortStableFunc(next, func(x, y Token) int {
		return cmp.Compare(x.Start, y.Start)
	})

	a.publish(&Snapshot{
		Tokens:    next,
		Version:   cur.Version + 1,
		Finals:    len(existing) + len(stats.Accepted),
		UpdatedAt: a.now(),
	})
	return stats
}

// isDuplicate reports whether finals (sorted by start) holds a token with the
// same text starting within DedupTolerance of tok.
func isDuplicate(finals []Token, tok Token) bool {
	lo := tok.Start - DedupTolerance
	i := sort.Search(len(finals), func(i int) bool { return finals[i].Start > lo })
	for ; i < len(finals); i++ {
		f := finals[i]
		if f.Start-tok.Start >= DedupTolerance {
			break
		}
		if f.Text == tok.Text {
			return true
		}
	}
	return false
}

// nearMatch is the unsorted form of isDuplicate, used within a batch.
func nearMatch(tokens []Token, tok Token) bool {
	for _, t := range tokens {
		if t.Text == tok.Text && math.Abs(t.Start-tok.Start) < DedupTolerance {
			return true
		}
	}
	return false
}

// Clear resets the transcript to empty. Used when the session switches video.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur := a.snap.Load()
	a.publish(&Snapshot{Version: cur.Version + 1, UpdatedAt: a.now()})
}

// Snapshot returns the current immutable view of the transcript.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.snap.Load()
}

// Len returns the number of tokens in the transcript.
func (a *Aggregator) Len() int {
	return len(a.snap.Load().Tokens)
}

// RecentWindow returns the tokens with ref - start <= horizon, in order.
func (a *Aggregator) RecentWindow(ref, horizon float64) Window {
	return a.snap.Load().RecentWindow(ref, horizon)
}

// Recent returns the last n tokens. n <= 0 selects [DefaultRecent].
func (a *Aggregator) Recent(n int) Window {
	return a.snap.Load().Recent(n)
}

// Sentences segments the current transcript into sentences.
func (a *Aggregator) Sentences() []Sentence {
	return a.snap.Load().Sentences()
}

// Subscribe registers for change notifications. Every published snapshot is
// offered to the returned channel without blocking; a subscriber that falls
// behind sees only the newest snapshot. buf below 1 is raised to 1.
//
// The cancel func unregisters and closes the channel. It is safe to call more
// than once.
func (a *Aggregator) Subscribe(buf int) (<-chan *Snapshot, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan *Snapshot, buf)

	a.subMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish stores s and notifies subscribers. Must be called with a.mu held so
// notifications go out in version order.
func (a *Aggregator) publish(s *Snapshot) {
	a.snap.Store(s)

	a.subMu.Lock()
	defer a.subMu.Unlock()
	for _, ch := range a.subs {
		for {
			select {
			case ch <- s:
			default:
				// Full: evict the stalest pending snapshot and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
