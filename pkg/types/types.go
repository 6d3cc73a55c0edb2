// Package types defines the shared types used across the doubt-chat packages.
//
// These types are the boundary vocabulary between providers, the transcript
// aggregator, and the triage pipeline. Each package keeps its own domain types;
// only cross-cutting data structures live here to avoid circular imports.
package types

// RecognitionToken is one recognised unit of speech as delivered by a
// speech-recognition source. Times are milliseconds relative to the start of
// the recognition stream.
//
// This is the wire shape accepted from browsers and STT adapters. The
// transcript aggregator converts it into its own normalised token type.
type RecognitionToken struct {
	// Text is the recognised text, not yet normalised.
	Text string `json:"text"`

	// StartMs is the utterance start in milliseconds.
	StartMs int64 `json:"start_ms"`

	// EndMs is the utterance end in milliseconds.
	EndMs int64 `json:"end_ms"`

	// IsFinal marks an authoritative result. Provisional tokens may be
	// superseded by the next result.
	IsFinal bool `json:"is_final"`

	// Confidence is the recogniser's score in [0, 1]. Zero when unreported.
	Confidence float64 `json:"confidence"`
}

// RecognitionResult is one batch of tokens emitted by a recogniser. A batch
// may mix provisional and final tokens.
type RecognitionResult struct {
	Tokens []RecognitionToken `json:"tokens"`
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can be constrained to emit a
	// single JSON object.
	SupportsJSONMode bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of subject vocabulary (names of laws, units, people).
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Newton").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
