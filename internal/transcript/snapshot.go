package transcript

import "time"

// Snapshot is an immutable view of a transcript at one version. Callers must
// not modify Tokens.
type Snapshot struct {
	// Tokens is ordered by Start ascending; ties keep arrival order.
	Tokens []Token

	// Version increases by one on every published change.
	Version uint64

	// Finals is the number of final tokens in Tokens.
	Finals int

	// UpdatedAt is when this snapshot was published.
	UpdatedAt time.Time
}

// Len returns the number of tokens.
func (s *Snapshot) Len() int {
	return len(s.Tokens)
}

// LastEnd returns the latest end time in the snapshot, or 0 when empty.
func (s *Snapshot) LastEnd() float64 {
	var end float64
	for _, t := range s.Tokens {
		if t.End > end {
			end = t.End
		}
	}
	return end
}

// RecentWindow returns the tokens with ref - start <= horizon, in order.
func (s *Snapshot) RecentWindow(ref, horizon float64) Window {
	var out Window
	for _, t := range s.Tokens {
		if ref-t.Start <= horizon {
			out = append(out, t)
		}
	}
	return out
}

// Recent returns a copy of the last n tokens. n <= 0 selects [DefaultRecent].
func (s *Snapshot) Recent(n int) Window {
	if n <= 0 {
		n = DefaultRecent
	}
	from := max(len(s.Tokens)-n, 0)
	out := make(Window, len(s.Tokens)-from)
	copy(out, s.Tokens[from:])
	return out
}

// Sentences segments the snapshot. See [Segment].
func (s *Snapshot) Sentences() []Sentence {
	return Segment(s.Tokens)
}
