package transcript

import (
	"strings"
	"unicode/utf8"
)

// SentenceGap is the silence, in seconds, after which a sentence closes even
// without punctuation.
const SentenceGap = 2.0

// BoundaryReason records why a sentence closed.
type BoundaryReason string

const (
	// BoundaryPunctuation: the last token ended in a terminal mark.
	BoundaryPunctuation BoundaryReason = "punctuation"

	// BoundaryGap: the next token started more than SentenceGap later.
	BoundaryGap BoundaryReason = "gap"

	// BoundaryEndOfStream: the last token of the transcript is final.
	BoundaryEndOfStream BoundaryReason = "end_of_stream"

	// BoundaryOpen: the trailing buffer has not closed yet.
	BoundaryOpen BoundaryReason = "open"
)

// Sentence is a contiguous run of tokens merged into one text span. Sentences
// are derived on demand and never stored.
type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Final is true for every closed sentence and false for the open tail.
	Final bool `json:"final"`

	Reason BoundaryReason `json:"reason"`
}

// terminalMarks are the sentence terminators for Latin and Devanagari script.
const terminalMarks = ".?!।॥"

// closingMarks may trail a terminator, as in `"Why?"` or `(F = ma.)`.
const closingMarks = "\"')]}”’»"

// Segment splits tokens into sentences. A sentence closes when its last token
// ends in a terminal mark, when the gap to the next token exceeds SentenceGap,
// or when the token is the last one and is final. Anything left over is
// returned as a trailing open sentence.
func Segment(tokens []Token) []Sentence {
	var (
		out []Sentence
		buf []Token
	)
	flush := func(reason BoundaryReason) {
		texts := make([]string, len(buf))
		for i, t := range buf {
			texts[i] = t.Text
		}
		out = append(out, Sentence{
			Text:   strings.Join(texts, " "),
			Start:  buf[0].Start,
			End:    buf[len(buf)-1].End,
			Final:  reason != BoundaryOpen,
			Reason: reason,
		})
		buf = buf[:0]
	}

	for i, t := range tokens {
		buf = append(buf, t)
		last := i == len(tokens)-1
		switch {
		case endsSentence(t.Text):
			flush(BoundaryPunctuation)
		case !last && tokens[i+1].Start-t.End > SentenceGap:
			flush(BoundaryGap)
		case last && t.Final:
			flush(BoundaryEndOfStream)
		}
	}
	if len(buf) > 0 {
		flush(BoundaryOpen)
	}
	return out
}

// endsSentence reports whether text ends in a terminal mark, optionally
// followed by closing quotes or brackets.
func endsSentence(text string) bool {
	text = strings.TrimRight(text, closingMarks)
	r, _ := utf8.DecodeLastRuneInString(text)
	if r == utf8.RuneError {
		return false
	}
	return strings.ContainsRune(terminalMarks, r)
}
