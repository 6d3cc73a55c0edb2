// Package glossary snaps misrecognised subject vocabulary in final transcript
// tokens to its canonical spelling.
//
// Lecture audio is full of terms a general recogniser gets wrong ("newtan" for
// Newton, "momentam" for momentum). A [Matcher] holds the lecture's glossary
// and matches words against it in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input and for each term. Overlapping codes make a term a phonetic
//     candidate, accepted when its Jaro-Winkler score reaches the phonetic
//     threshold.
//
//  2. Fuzzy fallback: with no phonetic candidate, a term is still accepted
//     when pure Jaro-Winkler similarity reaches the higher fuzzy threshold.
//
// Multi-word terms ("second law") are only matched against runs of the same
// number of words, so a single word never expands into a phrase.
package glossary

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
	defaultMinRunes          = 4
	defaultBoost             = 2
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically matched term. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinRunes sets the shortest word Correct will touch. Default: 4.
func WithMinRunes(n int) Option {
	return func(m *Matcher) {
		m.minRunes = n
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minRunes          int

	terms   []string
	byWords map[int][]string
	maxN    int
}

// New returns a Matcher for the given glossary terms. Blank terms are skipped.
func New(terms []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minRunes:          defaultMinRunes,
		byWords:           make(map[int][]string),
	}
	for _, o := range opts {
		o(m)
	}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		n := len(strings.Fields(t))
		m.terms = append(m.terms, t)
		m.byWords[n] = append(m.byWords[n], t)
		m.maxN = max(m.maxN, n)
	}
	return m
}

// Terms returns the glossary in insertion order.
func (m *Matcher) Terms() []string {
	return append([]string(nil), m.terms...)
}

// Keywords converts the glossary into recogniser keyword boosts. boost <= 0
// selects the default intensity.
func (m *Matcher) Keywords(boost float64) []types.KeywordBoost {
	if boost <= 0 {
		boost = defaultBoost
	}
	out := make([]types.KeywordBoost, 0, len(m.terms))
	for _, t := range m.terms {
		out = append(out, types.KeywordBoost{Keyword: t, Boost: boost})
	}
	return out
}

// Correct rewrites every word or word run in text that matches a glossary
// term. Leading and trailing punctuation of the run is kept.
func (m *Matcher) Correct(text string) string {
	if len(m.terms) == 0 {
		return text
	}
	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); {
		n, replaced := m.correctAt(words, i)
		if n == 0 {
			out = append(out, words[i])
			i++
			continue
		}
		out = append(out, replaced)
		i += n
	}
	return strings.Join(out, " ")
}

// correctAt tries the longest term length first at position i. It returns the
// number of words consumed, or 0 when nothing matched.
func (m *Matcher) correctAt(words []string, i int) (int, string) {
	for n := min(m.maxN, len(words)-i); n >= 1; n-- {
		candidates := m.byWords[n]
		if len(candidates) == 0 {
			continue
		}
		lead, _, _ := splitPunct(words[i])
		_, _, trail := splitPunct(words[i+n-1])

		cores := make([]string, n)
		for k := range n {
			_, cores[k], _ = splitPunct(words[i+k])
		}
		phrase := strings.Join(cores, " ")
		if utf8.RuneCountInString(phrase) < m.minRunes {
			continue
		}
		if term, _, ok := m.Match(phrase, candidates); ok {
			return n, lead + term + trail
		}
	}
	return 0, ""
}

// splitPunct separates leading and trailing punctuation from a word.
func splitPunct(w string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(w, unicode.IsPunct)
	lead = w[:len(w)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}

// Match finds the term in candidates most similar to word. When matched is
// false, corrected equals word and confidence is 0.
func (m *Matcher) Match(word string, candidates []string) (corrected string, confidence float64, matched bool) {
	if len(candidates) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, term := range candidates {
		termLower := strings.ToLower(term)
		termTokens := strings.Fields(termLower)

		phoneticMatch := codesOverlap(inputCodes, codesForTokens(termTokens))
		jw := jwScore(wordTokens, termTokens, wordLower, termLower)

		if phoneticMatch {
			if jw >= m.phoneticThreshold && (!best.phonetic || jw > best.score) {
				best = candidate{term: term, score: jw, phonetic: true}
			}
		} else if !best.phonetic && jw >= m.fuzzyThreshold && jw > best.score {
			best = candidate{term: term, score: jw}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return word, 0, false
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// jwScore compares the full strings and, for phrases, the space-stripped forms.
func jwScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)
	if len(inputTokens) > 1 || len(termTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
