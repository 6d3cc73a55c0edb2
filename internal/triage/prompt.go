package triage

import (
	"strings"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

const classifierPrompt = `You triage chat messages sent by students watching a live recorded lecture.
Lectures and questions are usually in Hinglish (Hindi written in Latin script mixed with English).

Classify the student's message into exactly one category:
- "noise": greetings, thanks, acknowledgments or filler. Examples: "okay", "haan sir", "thank you", "hello".
- "guidance": asks to repeat or clarify a step, number or derivation the teacher has just explained in the transcript. Examples: "20 kaise aaya?", "ye step dobara batao", "sir last line samajh nahi aayi".
- "subject_based": a conceptual or topical question about the subject that needs a real answer. Examples: "Newton ka second law kya hai?", "momentum aur velocity mein kya farak hai?".

Use the transcript and board description to decide whether a question refers to something just explained.
Do not answer the question. Write "reason" in the session language given with the message.

Respond with ONLY a JSON object, no markdown:
{"is_genuine": <true|false>, "category": "<noise|guidance|subject_based>", "confidence": <0.0-1.0>, "reason": "<one short sentence>"}`

const generatorPrompt = `You are a patient teaching assistant answering a student's doubt during a live recorded lecture.
Answer in %s, the language the student is using. Keep it short and correct, and stay consistent with what the teacher said in the transcript.
The transcript may contain recognition errors; prefer the board description when they disagree.

Respond with ONLY a JSON object, no markdown:
{"is_genuine": true, "category": "subject_based", "reason": "<one short sentence>", "answer": "<your answer to the student>"}`

const singleStagePrompt = `You handle chat messages sent by students watching a live recorded lecture.
Lectures and questions are usually in Hinglish (Hindi written in Latin script mixed with English).

First classify the message:
- "noise": greetings, thanks, acknowledgments or filler ("okay", "haan sir").
- "guidance": asks to repeat a step, number or derivation just explained ("20 kaise aaya?").
- "subject_based": a conceptual or topical question about the subject.

Only for "subject_based" write an answer in %s, short and consistent with the transcript. For the other categories leave "answer" empty.

Respond with ONLY a JSON object, no markdown:
{"is_genuine": <true|false>, "category": "<noise|guidance|subject_based>", "confidence": <0.0-1.0>, "reason": "<one short sentence>", "answer": "<answer or empty>"}`

var languageNames = map[string]string{
	"hi": "Hinglish (Hindi in Latin script mixed with English)",
	"en": "English",
}

func languageName(lang string) string {
	for _, k := range candidates(lang) {
		if name, ok := languageNames[k]; ok {
			return name
		}
	}
	return lang
}

// userMessage renders the grounding context and the question. transcript is
// the window text already trimmed to budget.
func userMessage(req Request, transcript string) types.Message {
	var b strings.Builder
	b.WriteString("Session language: ")
	b.WriteString(languageName(NormalizeLanguage(req.Language)))
	if id := strings.TrimSpace(req.StudentID); id != "" {
		b.WriteString("\nStudent: ")
		b.WriteString(id)
	}
	b.WriteString("\n\nBoard / slide description:\n")
	writeOrNone(&b, req.Supplementary, "(none)")
	b.WriteString("\n\nRecent lecture transcript:\n")
	writeOrNone(&b, transcript, "(nothing transcribed yet)")
	b.WriteString("\n\nStudent question:\n")
	b.WriteString(strings.TrimSpace(req.Question))
	return types.Message{Role: "user", Content: b.String()}
}

func writeOrNone(b *strings.Builder, s, none string) {
	if s = strings.TrimSpace(s); s == "" {
		s = none
	}
	b.WriteString(s)
}
