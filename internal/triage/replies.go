package triage

import "strings"

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "hi"

// Replies holds the fixed, localised texts sent without calling the
// generator. Maps are keyed by language code ("hi", "en").
type Replies struct {
	// Acknowledgments answer guidance requests.
	Acknowledgments map[string]string

	// Clarifications replace an empty generator answer.
	Clarifications map[string]string

	// UnclearReasons are the classification reason when model output could
	// not be parsed.
	UnclearReasons map[string]string
}

// DefaultReplies returns the built-in Hinglish and English texts.
func DefaultReplies() Replies {
	return Replies{
		Acknowledgments: map[string]string{
			"hi": "Achha sawaal! Yeh step thodi der mein dobara samjhaya jaayega, dhyaan se suniye.",
			"en": "Good question! This step will be explained again shortly, please keep listening.",
		},
		Clarifications: map[string]string{
			"hi": "Maaf kijiye, sawaal samajh nahi aaya. Thoda aur detail mein poochiye?",
			"en": "Sorry, I could not understand the question. Could you ask it with a little more detail?",
		},
		UnclearReasons: map[string]string{
			"hi": "Sawaal samajh nahi aaya",
			"en": "The question could not be understood",
		},
	}
}

// Merge returns r with any entry in o overriding it.
func (r Replies) Merge(o Replies) Replies {
	return Replies{
		Acknowledgments: mergeTexts(r.Acknowledgments, o.Acknowledgments),
		Clarifications:  mergeTexts(r.Clarifications, o.Clarifications),
		UnclearReasons:  mergeTexts(r.UnclearReasons, o.UnclearReasons),
	}
}

// Acknowledgment returns the guidance reply for lang.
func (r Replies) Acknowledgment(lang string) string {
	return lookup(r.Acknowledgments, DefaultReplies().Acknowledgments, lang)
}

// Clarification returns the empty-answer reply for lang.
func (r Replies) Clarification(lang string) string {
	return lookup(r.Clarifications, DefaultReplies().Clarifications, lang)
}

// UnclearReason returns the parse-failure reason for lang.
func (r Replies) UnclearReason(lang string) string {
	return lookup(r.UnclearReasons, DefaultReplies().UnclearReasons, lang)
}

// lookup tries lang, its base tag ("hi" for "hi-IN"), the default language
// and finally English, first in texts and then in builtin.
func lookup(texts, builtin map[string]string, lang string) string {
	keys := candidates(lang)
	for _, m := range []map[string]string{texts, builtin} {
		for _, k := range keys {
			if s := strings.TrimSpace(m[k]); s != "" {
				return s
			}
		}
	}
	return ""
}

func candidates(lang string) []string {
	lang = NormalizeLanguage(lang)
	keys := []string{lang}
	if base, _, ok := strings.Cut(lang, "-"); ok {
		keys = append(keys, base)
	}
	return append(keys, DefaultLanguage, "en")
}

// NormalizeLanguage lower-cases a language tag, replaces "_" with "-" and
// falls back to DefaultLanguage when empty.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" {
		return DefaultLanguage
	}
	return lang
}

func mergeTexts(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if strings.TrimSpace(v) != "" {
			out[NormalizeLanguage(k)] = v
		}
	}
	return out
}
