package transcript

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

func final(text string, start, end float64) Token {
	return Token{Text: text, Start: start, End: end, Final: true, Confidence: 1}
}

func prov(text string, start, end float64) Token {
	return Token{Text: text, Start: start, End: end, Confidence: 0.5}
}

func texts(w []Token) []string {
	out := make([]string, len(w))
	for i, t := range w {
		out[i] = t.Text
	}
	return out
}

func TestApplyResult_DedupIsIdempotent(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	batch := []Token{final("Newton", 1, 1.4), final("ka", 1.5, 1.7), final("law", 1.8, 2.1)}

	a.ApplyResult(batch)
	once := a.Snapshot().Finals

	stats := a.ApplyResult(batch)
	if got := a.Snapshot().Finals; got != once {
		t.Errorf("finals after reapply = %d, want %d", got, once)
	}
	if stats.Duplicates != 3 || len(stats.Accepted) != 0 {
		t.Errorf("stats = %+v, want 3 duplicates and nothing accepted", stats)
	}
}

func TestApplyResult_DedupTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		second    Token
		wantTotal int
	}{
		{"jitter within tolerance", final("force", 10.3, 10.6), 1},
		{"jitter backwards", final("force", 9.7, 10.1), 1},
		{"exactly half a second apart", final("force", 10.5, 10.9), 2},
		{"same time different text", final("mass", 10, 10.4), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewAggregator()
			a.ApplyResult([]Token{final("force", 10, 10.4)})
			a.ApplyResult([]Token{tt.second})
			if got := a.Len(); got != tt.wantTotal {
				t.Errorf("Len() = %d, want %d", got, tt.wantTotal)
			}
		})
	}
}

func TestApplyResult_DedupWithinBatch(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	stats := a.ApplyResult([]Token{final("haan", 2, 2.3), final("haan", 2.2, 2.5)})
	if len(stats.Accepted) != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want 1 accepted and 1 duplicate", stats)
	}
}

func TestApplyResult_ProvisionalVolatility(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyResult([]Token{final("force", 0, 0.5), prov("barabar", 0.6, 1.0)})
	if got := a.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	a.ApplyResult([]Token{final("barabar", 0.6, 1.0)})
	snap := a.Snapshot()
	if snap.Len() != snap.Finals {
		t.Errorf("provisional tokens survived: len=%d finals=%d", snap.Len(), snap.Finals)
	}

	// An empty batch only clears the overlay.
	a.ApplyResult([]Token{prov("mass", 1.1, 1.4)})
	a.ApplyResult(nil)
	snap = a.Snapshot()
	if snap.Len() != 2 || snap.Finals != 2 {
		t.Errorf("after empty batch: len=%d finals=%d, want 2/2", snap.Len(), snap.Finals)
	}
}

func TestApplyResult_MalformedBatchIsNoop(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyResult([]Token{final("namaste", 0, 1)})
	before := a.Snapshot()

	stats := a.ApplyResult([]Token{final("   ", 2, 3), {Text: "", Final: true}})
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", stats.Malformed)
	}
	if a.Snapshot() != before {
		t.Error("malformed batch with no overlay to clear should not publish a new snapshot")
	}
}

func TestApplyResult_OrderAndTies(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyResult([]Token{final("c", 3, 3.5), final("a", 1, 1.5)})
	a.ApplyResult([]Token{final("b", 2, 2.5), prov("b2", 2, 2.4), prov("d", 4, 4.5)})

	got := texts(a.Snapshot().Tokens)
	want := []string{"a", "b", "b2", "c", "d"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestApplyResult_RandomisedInvariants(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	words := []string{"force", "mass", "acceleration", "hai", "kya", "Newton"}
	a := NewAggregator()

	prevFinals := map[string]bool{}
	for range 200 {
		var batch []Token
		for range rng.IntN(5) {
			start := float64(rng.IntN(600)) / 10
			tok := Token{
				Text:  words[rng.IntN(len(words))],
				Start: start,
				End:   start + 0.3,
				Final: rng.IntN(2) == 0,
			}
			batch = append(batch, tok)
		}
		a.ApplyResult(batch)
		snap := a.Snapshot()

		// Final monotonicity: every earlier final is still present.
		cur := map[string]bool{}
		for _, tok := range snap.Tokens {
			if tok.Final {
				cur[tok.ID+tok.Text] = true
			}
		}
		for id := range prevFinals {
			if !cur[id] {
				t.Fatalf("final %s disappeared", id)
			}
		}
		prevFinals = cur

		// Order invariant.
		for i := 1; i < len(snap.Tokens); i++ {
			if snap.Tokens[i-1].Start > snap.Tokens[i].Start {
				t.Fatalf("tokens out of order at %d: %v > %v", i, snap.Tokens[i-1].Start, snap.Tokens[i].Start)
			}
		}

		// Provisionals only come from the latest batch.
		provisional := 0
		for _, tok := range batch {
			if !tok.Final {
				provisional++
			}
		}
		if got := snap.Len() - snap.Finals; got != provisional {
			t.Fatalf("provisional count = %d, want %d", got, provisional)
		}
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyResult([]Token{final("a", 0, 1), prov("b", 1, 2)})
	v := a.Snapshot().Version

	a.Clear()
	snap := a.Snapshot()
	if snap.Len() != 0 || snap.Finals != 0 {
		t.Errorf("after Clear: len=%d finals=%d", snap.Len(), snap.Finals)
	}
	if snap.Version != v+1 {
		t.Errorf("version = %d, want %d", snap.Version, v+1)
	}
}

func TestRecentWindow_Boundary(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.ApplyResult([]Token{final("zero", 0, 1), final("hundred", 100, 101), final("two-hundred", 200, 201)})

	got := texts(a.RecentWindow(205, 120))
	want := []string{"hundred", "two-hundred"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("RecentWindow(205, 120) = %v, want %v", got, want)
	}

	// Inclusive at exactly the horizon.
	if got := len(a.RecentWindow(220, 120)); got != 2 {
		t.Errorf("RecentWindow(220, 120) len = %d, want 2", got)
	}
}

func TestRecent(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	var batch []Token
	for i := range 30 {
		batch = append(batch, final(fmt.Sprintf("w%d", i), float64(i), float64(i)+0.5))
	}
	a.ApplyResult(batch)

	if got := len(a.Recent(0)); got != DefaultRecent {
		t.Errorf("Recent(0) len = %d, want %d", got, DefaultRecent)
	}
	got := a.Recent(3)
	if fmt.Sprint(texts(got)) != "[w27 w28 w29]" {
		t.Errorf("Recent(3) = %v", texts(got))
	}
	if got := len(a.Recent(100)); got != 30 {
		t.Errorf("Recent(100) len = %d, want 30", got)
	}
}

func TestSubscribe_LatestWins(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	ch, cancel := a.Subscribe(1)
	defer cancel()

	a.ApplyResult([]Token{final("a", 0, 1)})
	a.ApplyResult([]Token{final("b", 1, 2)})
	a.ApplyResult([]Token{final("c", 2, 3)})

	select {
	case snap := <-ch:
		if snap.Version != 3 {
			t.Errorf("version = %d, want the newest (3)", snap.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Publishing after cancel must not panic.
	a.ApplyResult([]Token{final("d", 3, 4)})
}

func TestAggregator_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := a.Snapshot()
				for i := 1; i < len(snap.Tokens); i++ {
					if snap.Tokens[i-1].Start > snap.Tokens[i].Start {
						t.Error("reader saw an unordered snapshot")
						return
					}
				}
				_ = snap.Sentences()
				_ = ContextWindow(snap, 180)
			}
		}()
	}

	for i := range 500 {
		s := float64(i) / 10
		a.ApplyResult([]Token{final(fmt.Sprintf("w%d", i), s, s+0.05), prov("p", s+0.06, s+0.08)})
	}
	close(stop)
	wg.Wait()

	if got := a.Snapshot().Finals; got != 500 {
		t.Errorf("finals = %d, want 500", got)
	}
}
