// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, Anthropic,
// or a local Ollama instance) and exposes a uniform interface to the triage
// pipeline. The pipeline uses two providers with very different cost profiles:
// a cheap model that only classifies a student's question, and an expensive
// model that writes answers. Both go through this interface so that neither
// the classifier nor the generator is coupled to a specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// Message is an alias so callers can build requests without importing types.
type Message = types.Message

// ModelCapabilities is an alias for [types.ModelCapabilities].
type ModelCapabilities = types.ModelCapabilities

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered message list. The last message is typically
	// from the "user" role and drives the response.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before
	// the messages. Providers without a dedicated system field prepend it as
	// a "system"-role message.
	SystemPrompt string

	// JSONMode asks the backend to return a single JSON object. Providers
	// that cannot enforce it ignore the flag; callers must still parse
	// tolerantly.
	JSONMode bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Each method should propagate context cancellation promptly: when ctx is
// cancelled the method must return as quickly as possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before
	// the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens the given messages would
	// consume in the model's context window. The generator uses it to trim
	// the transcript window before sending a request. The result need not be
	// exact but should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities returns static metadata describing what this provider's
	// model supports. Constant for the lifetime of the Provider.
	Capabilities() types.ModelCapabilities
}

// EstimateTokens is the shared ~4 characters per token approximation used by
// providers that have no tokeniser endpoint. Each message carries a fixed
// overhead for role and formatting tokens.
func EstimateTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total
}
