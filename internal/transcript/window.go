package transcript

import "strings"

// Context window bounds, in seconds, for question answering.
const (
	DefaultContextHorizon = 180.0
	MinContextHorizon     = 120.0
	MaxContextHorizon     = 300.0
)

// Window is an ordered run of tokens taken from a transcript.
type Window []Token

// Text joins the token texts with single spaces.
func (w Window) Text() string {
	texts := make([]string, len(w))
	for i, t := range w {
		texts[i] = t.Text
	}
	return strings.Join(texts, " ")
}

// Span returns the start of the first token and the latest end. Both are zero
// for an empty window.
func (w Window) Span() (start, end float64) {
	if len(w) == 0 {
		return 0, 0
	}
	start = w[0].Start
	for _, t := range w {
		end = max(end, t.End)
	}
	return start, end
}

// Finals returns only the final tokens.
func (w Window) Finals() Window {
	var out Window
	for _, t := range w {
		if t.Final {
			out = append(out, t)
		}
	}
	return out
}

// ContextWindow returns the recent window used as grounding for a question,
// measured back from the latest end time in s. horizon <= 0 selects
// DefaultContextHorizon. A nil snapshot yields an empty window.
func ContextWindow(s *Snapshot, horizon float64) Window {
	if s == nil {
		return nil
	}
	if horizon <= 0 {
		horizon = DefaultContextHorizon
	}
	return s.RecentWindow(s.LastEnd(), horizon)
}
