package transcript

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// Token is one recognised unit of speech as held by the [Aggregator].
//
// Tokens are values: once accepted into a transcript they are never mutated,
// only superseded by a later result. Times are seconds relative to the start of
// the recognition stream.
type Token struct {
	// ID is derived from (Start, End, Final) so the same recognition event
	// always maps to the same identifier.
	ID string `json:"id"`

	// Text is NFC-normalised and trimmed. Never empty for accepted tokens.
	Text string `json:"text"`

	// Start and End are seconds. End >= Start always holds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Final marks an authoritative token. Provisional tokens are replaced
	// wholesale by the next result.
	Final bool `json:"final"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`
}

// NewToken builds a normalised Token. It returns false when the text is empty
// after normalisation or the times are negative.
func NewToken(text string, start, end float64, final bool, confidence float64) (Token, bool) {
	text = normalizeText(text)
	if text == "" || start < 0 || end < 0 {
		return Token{}, false
	}
	if end < start {
		end = start
	}
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return Token{
		ID:         tokenID(start, end, final),
		Text:       text,
		Start:      start,
		End:        end,
		Final:      final,
		Confidence: confidence,
	}, true
}

// FromRecognition converts a boundary recognition token into a Token.
func FromRecognition(rt types.RecognitionToken) (Token, bool) {
	return NewToken(
		rt.Text,
		float64(rt.StartMs)/1000,
		float64(rt.EndMs)/1000,
		rt.IsFinal,
		rt.Confidence,
	)
}

// FromRecognitionBatch converts a batch, skipping malformed entries.
func FromRecognitionBatch(batch []types.RecognitionToken) []Token {
	out := make([]Token, 0, len(batch))
	for _, rt := range batch {
		if tok, ok := FromRecognition(rt); ok {
			out = append(out, tok)
		}
	}
	return out
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func tokenID(start, end float64, final bool) string {
	suffix := "p"
	if final {
		suffix = "f"
	}
	return fmt.Sprintf("%d-%d-%s", int64(start*1000+0.5), int64(end*1000+0.5), suffix)
}
