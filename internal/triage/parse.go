package triage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseFailure reports model output that held no usable JSON object. Raw is
// kept for logging and is never shown to students.
type ParseFailure struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("triage: parse: %s: %v", e.Reason, e.Err)
	}
	return "triage: parse: " + e.Reason
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// Answer is the generator's output. Plain is set when the model replied with
// prose instead of JSON; the prose is then the answer and the classification
// fields are zero.
type Answer struct {
	Classification
	Answer string
	Plain  bool
}

// rawObject is the loose shape both models are asked for. Booleans and
// numbers are sometimes quoted, so they are decoded as any and coerced.
type rawObject struct {
	IsGenuine  any    `json:"is_genuine"`
	Category   string `json:"category"`
	Confidence any    `json:"confidence"`
	Reason     string `json:"reason"`
	Answer     string `json:"answer"`
}

// ParseClassification extracts a classification from model output.
//
// Strict JSON is tried first, after stripping any markdown code fence. If that
// fails the first balanced {...} region in the text is tried, skipping braces
// inside string literals. When neither yields an object the error is a
// *ParseFailure and the returned value is [Fallback].
func ParseClassification(raw string) (Classification, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Fallback(), err
	}
	if strings.TrimSpace(obj.Category) == "" {
		return Fallback(), &ParseFailure{Raw: raw, Reason: "missing category"}
	}
	return obj.classification(), nil
}

// ParseAnswer extracts the generator's answer. Output that is not JSON at all
// but has text is accepted as a plain answer. Empty output is a
// *ParseFailure.
func ParseAnswer(raw string) (Answer, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		text := strings.TrimSpace(stripMarkdown(raw))
		if text == "" {
			return Answer{Classification: Fallback()}, err
		}
		return Answer{Answer: text, Plain: true}, nil
	}
	return Answer{
		Classification: obj.classification(),
		Answer:         strings.TrimSpace(obj.Answer),
	}, nil
}

func decodeObject(raw string) (rawObject, error) {
	if strings.TrimSpace(raw) == "" {
		return rawObject{}, &ParseFailure{Raw: raw, Reason: "empty output"}
	}

	var obj rawObject
	candidate := stripMarkdown(raw)
	if strings.HasPrefix(candidate, "{") {
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, nil
		}
	}

	region, ok := firstObject(raw)
	if !ok {
		return rawObject{}, &ParseFailure{Raw: raw, Reason: "no json object found"}
	}
	if err := json.Unmarshal([]byte(region), &obj); err != nil {
		return rawObject{}, &ParseFailure{Raw: raw, Reason: "invalid json object", Err: err}
	}
	return obj, nil
}

// firstObject returns the first balanced {...} region of s that is valid
// JSON. Braces inside string literals do not count towards nesting.
func firstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			if region := s[start : end+1]; json.Valid([]byte(region)) {
				return region, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at s[open].
func matchBrace(s string, open int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// stripMarkdown removes a surrounding ```json ... ``` or ``` ... ``` fence.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (o rawObject) classification() Classification {
	cat := ParseCategory(o.Category)
	genuine, ok := coerceBool(o.IsGenuine)
	if !ok {
		genuine = cat == CategorySubject || cat == CategoryGuidance
	}
	return Classification{
		IsGenuine:  genuine,
		Category:   cat,
		Confidence: coerceFloat(o.Confidence),
		Reason:     o.Reason,
	}.normalize()
}

func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	case float64:
		return b != 0, true
	}
	return false, false
}

func coerceFloat(v any) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}
