package resilience

import (
	"context"

	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

// LLMFallback implements [llm.Provider] over an ordered list of backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers provider after the backends already registered.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens uses the primary's counter. Counting is local and never trips a
// breaker; on error it falls back to [llm.EstimateTokens].
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	n, err := f.group.entries[0].value.CountTokens(messages)
	if err != nil {
		return llm.EstimateTokens(messages), nil
	}
	return n, nil
}

// Capabilities returns the smallest limits across all backends so a request
// trimmed for one fits every fallback.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	caps := f.group.entries[0].value.Capabilities()
	for _, e := range f.group.entries[1:] {
		c := e.value.Capabilities()
		caps.ContextWindow = minPositive(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = minPositive(caps.MaxOutputTokens, c.MaxOutputTokens)
		caps.SupportsJSONMode = caps.SupportsJSONMode && c.SupportsJSONMode
		caps.SupportsStreaming = caps.SupportsStreaming && c.SupportsStreaming
	}
	return caps
}

// Healthy reports whether any backend would currently accept a call.
func (f *LLMFallback) Healthy() bool { return f.group.Healthy() }

// States returns each backend's breaker state keyed by name.
func (f *LLMFallback) States() map[string]State { return f.group.States() }

// minPositive treats zero as "unknown" rather than as a limit.
func minPositive(a, b int) int {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}
