package triage

import (
	"context"
	"fmt"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

const (
	defaultGeneratorTemperature = 0.3
	defaultGeneratorMaxTokens   = 1024
)

// Generator writes answers with the expensive model.
type Generator struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorTemperature sets the sampling temperature.
func WithGeneratorTemperature(t float64) GeneratorOption {
	return func(g *Generator) { g.temperature = t }
}

// WithGeneratorMaxTokens caps the answer length. It is also the share of the
// context window kept free for the answer.
func WithGeneratorMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// NewGenerator returns a Generator backed by p.
func NewGenerator(p llm.Provider, opts ...GeneratorOption) *Generator {
	g := &Generator{
		llm:         p,
		temperature: defaultGeneratorTemperature,
		maxTokens:   defaultGeneratorMaxTokens,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Answer answers a question already classified as subject_based.
func (g *Generator) Answer(ctx context.Context, req Request) (Answer, error) {
	return g.generate(ctx, req, fmt.Sprintf(generatorPrompt, languageName(req.Language)))
}

// Combined classifies and answers in a single call.
func (g *Generator) Combined(ctx context.Context, req Request) (Answer, error) {
	return g.generate(ctx, req, fmt.Sprintf(singleStagePrompt, languageName(req.Language)))
}

func (g *Generator) generate(ctx context.Context, req Request, system string) (Answer, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanGenerate)
	defer span.End()

	msg := g.fit(ctx, req, system)
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []types.Message{msg},
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generator model: %w", err)
	}
	if resp == nil {
		resp = &llm.CompletionResponse{}
	}

	ans, err := ParseAnswer(resp.Content)
	if err != nil {
		observe.Logger(ctx).Warn("triage: generator output unusable", "parse_failure", true, "error", err)
	}
	return ans, nil
}

// fit builds the user message, dropping the oldest transcript tokens until
// the prompt leaves room for the answer in the model's context window.
func (g *Generator) fit(ctx context.Context, req Request, system string) types.Message {
	window := req.Window
	budget := g.budget()
	for {
		msg := userMessage(req, window.Text())
		if budget <= 0 || len(window) == 0 {
			return msg
		}
		msgs := []types.Message{{Role: "system", Content: system}, msg}
		n, err := g.llm.CountTokens(msgs)
		if err != nil {
			n = llm.EstimateTokens(msgs)
		}
		if n <= budget {
			if dropped := len(req.Window) - len(window); dropped > 0 {
				observe.Logger(ctx).Debug("triage: trimmed transcript window",
					"dropped_tokens", dropped, "prompt_tokens", n, "budget", budget)
			}
			return msg
		}
		window = window[max(len(window)/10, 1):]
	}
}

// budget is the prompt token limit, or zero when the model reports no
// context window.
func (g *Generator) budget() int {
	caps := g.llm.Capabilities()
	if caps.ContextWindow <= 0 {
		return 0
	}
	reserve := g.maxTokens
	if caps.MaxOutputTokens > 0 {
		reserve = min(reserve, caps.MaxOutputTokens)
	}
	if b := caps.ContextWindow - reserve; b > 0 {
		return b
	}
	return caps.ContextWindow / 2
}
