// Package triage decides, per student question, whether the expensive answer
// model is worth calling.
//
// A cheap classifier sorts every question into a fixed taxonomy using the
// recent lecture transcript and the board description as grounding. Only
// subject questions reach the generator; guidance requests get a fixed
// acknowledgment and noise gets no reply at all. Whatever path is taken, the
// caller receives the same [Response] envelope.
//
// Model output is parsed tolerantly (see [ParseClassification]) and a parse
// problem never reaches the student. Only transport failures of the upstream
// models surface, as [ErrUpstream].
package triage

import "strings"

// Category is the triage class of a question.
type Category string

const (
	// CategoryNoise covers greetings, acknowledgments and filler ("okay",
	// "haan sir").
	CategoryNoise Category = "noise"

	// CategoryGuidance is a request to repeat a step, number or derivation
	// that was just explained ("20 kaise aaya?").
	CategoryGuidance Category = "guidance"

	// CategorySubject is a conceptual or topical question about the subject.
	CategorySubject Category = "subject_based"

	// CategoryFollowUp is accepted from models but always canonicalised to
	// CategorySubject; it carries no separate meaning.
	CategoryFollowUp Category = "follow_up"

	// CategoryError marks output that could not be understood.
	CategoryError Category = "error"
)

// categoryAliases maps every spelling seen from models to a canonical value.
var categoryAliases = map[string]Category{
	"noise":            CategoryNoise,
	"ack":              CategoryNoise,
	"acknowledgement":  CategoryNoise,
	"acknowledgment":   CategoryNoise,
	"guidance":         CategoryGuidance,
	"subject_based":    CategorySubject,
	"subject_doubt":    CategorySubject,
	"subject":          CategorySubject,
	"subject_question": CategorySubject,
	"follow_up":        CategorySubject,
	"followup":         CategorySubject,
	"error":            CategoryError,
}

// ParseCategory canonicalises a category name. Case, surrounding space and
// hyphen/space separators are ignored. Unknown names map to CategoryError.
func ParseCategory(s string) Category {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	return CategoryError
}

// Valid reports whether c is one of the canonical categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryNoise, CategoryGuidance, CategorySubject, CategoryError:
		return true
	}
	return false
}

// Classification is the result of triaging one question.
type Classification struct {
	IsGenuine  bool     `json:"is_genuine"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Fallback is the classification used when model output cannot be parsed.
// Its reason is left empty; policies fill in a localised one. The parse
// detail travels in the accompanying *ParseFailure.
func Fallback() Classification {
	return Classification{
		IsGenuine:  false,
		Category:   CategoryError,
		Confidence: 0,
	}
}

// normalize canonicalises the category, clamps the confidence and forces
// is_genuine off for noise and error.
func (c Classification) normalize() Classification {
	c.Category = ParseCategory(string(c.Category))
	c.Confidence = min(max(c.Confidence, 0), 1)
	c.Reason = strings.TrimSpace(c.Reason)
	if c.Category == CategoryNoise || c.Category == CategoryError {
		c.IsGenuine = false
	}
	return c
}
