package triage

import (
	"context"
	"fmt"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/types"
)

const defaultClassifierMaxTokens = 200

// Classifier labels questions with the cheap model.
type Classifier struct {
	llm       llm.Provider
	maxTokens int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierMaxTokens caps the classifier's completion length.
func WithClassifierMaxTokens(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// NewClassifier returns a Classifier backed by p.
func NewClassifier(p llm.Provider, opts ...ClassifierOption) *Classifier {
	c := &Classifier{llm: p, maxTokens: defaultClassifierMaxTokens}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify asks the model for a classification of req.Question. Errors are
// transport errors only: unparseable output yields [Fallback] and a nil error.
func (c *Classifier) Classify(ctx context.Context, req Request) (Classification, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanClassify)
	defer span.End()

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierPrompt,
		Messages:     []types.Message{userMessage(req, req.Window.Text())},
		Temperature:  0,
		MaxTokens:    c.maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classifier model: %w", err)
	}
	if resp == nil {
		resp = &llm.CompletionResponse{}
	}

	cls, err := ParseClassification(resp.Content)
	if err != nil {
		observe.Logger(ctx).Warn("triage: classifier output unusable",
			"parse_failure", true,
			"error", err,
			"raw", resp.Content,
		)
	}
	return cls, nil
}
