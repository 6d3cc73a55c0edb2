package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript"
)

// Policy names accepted by [New].
const (
	PolicyTwoStage    = "two_stage"
	PolicySingleStage = "single_stage"
)

// Default per-stage timeouts.
const (
	DefaultClassifyTimeout = 10 * time.Second
	DefaultGenerateTimeout = 30 * time.Second
)

// Stage names used in errors and metrics.
const (
	StageClassify = "classify"
	StageGenerate = "generate"
)

// ErrUpstream reports that a model call failed in transport. Callers map it
// to a retry-later response.
var ErrUpstream = errors.New("upstream model unavailable")

// UpstreamError carries the failing stage. It matches ErrUpstream with
// errors.Is.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("triage: %s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Request is one student question with its grounding context.
type Request struct {
	Question      string
	Window        transcript.Window
	Supplementary string
	Language      string
	StudentID     string
}

// Policy turns a question into a reply envelope.
type Policy interface {
	Triage(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// Option configures a policy.
type Option func(*core)

// WithReplies overrides the built-in acknowledgment and clarification texts.
func WithReplies(r Replies) Option {
	return func(c *core) { c.SetReplies(r) }
}

// WithTimeouts sets the per-stage timeouts. Zero keeps the default.
func WithTimeouts(classify, generate time.Duration) Option {
	return func(c *core) {
		if classify > 0 {
			c.classifyTimeout = classify
		}
		if generate > 0 {
			c.generateTimeout = generate
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *core) { c.metrics = m }
}

// core is the routing and bookkeeping shared by both policies.
type core struct {
	name            string
	replies         atomic.Pointer[Replies]
	classifyTimeout time.Duration
	generateTimeout time.Duration
	metrics         *observe.Metrics
}

func newCore(name string, opts []Option) *core {
	c := &core{
		name:            name,
		classifyTimeout: DefaultClassifyTimeout,
		generateTimeout: DefaultGenerateTimeout,
	}
	def := DefaultReplies()
	c.replies.Store(&def)
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Name returns the policy name.
func (c *core) Name() string { return c.name }

// SetReplies swaps the fixed reply texts. Safe to call while serving.
func (c *core) SetReplies(r Replies) {
	merged := DefaultReplies().Merge(r)
	c.replies.Store(&merged)
}

func (c *core) upstream(ctx context.Context, stage string, err error) error {
	c.metrics.RecordUpstreamError(ctx, stage)
	uerr := &UpstreamError{Stage: stage, Err: err}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(observe.AttrStage.String(stage))
	observe.Fail(span, uerr)
	return uerr
}

// finish routes a classification to its reply. answer is only consulted for
// subject_based questions.
func (c *core) finish(ctx context.Context, req Request, cls Classification, answer string, generated bool, start time.Time) *Response {
	replies := c.replies.Load()
	resp := &Response{
		Classification:  cls,
		Policy:          c.name,
		GeneratorCalled: generated,
	}
	switch cls.Category {
	case CategorySubject:
		resp.Outcome = OutcomeAnswered
		if answer = strings.TrimSpace(answer); answer == "" {
			answer = replies.Clarification(req.Language)
		}
		resp.Reply = textReply(answer)
	case CategoryGuidance:
		resp.Outcome = OutcomeAcknowledged
		resp.Reply = textReply(replies.Acknowledgment(req.Language))
	case CategoryNoise:
		resp.Outcome = OutcomeSilent
	default:
		resp.Outcome = OutcomeParseError
		if strings.TrimSpace(resp.Classification.Reason) == "" {
			resp.Classification.Reason = replies.UnclearReason(req.Language)
		}
	}
	resp.Latency = time.Since(start)

	c.metrics.RecordClassification(ctx, string(cls.Category))
	trace.SpanFromContext(ctx).SetAttributes(
		observe.AttrCategory.String(string(cls.Category)),
		observe.AttrOutcome.String(string(resp.Outcome)),
	)
	observe.Logger(ctx).Info("triage decision",
		"student_id", req.StudentID,
		"category", cls.Category,
		"outcome", resp.Outcome,
		"policy", c.name,
		"generator_called", generated,
		"latency", resp.Latency,
	)
	return resp
}

func emptyQuestion(q string) (Classification, bool) {
	if strings.TrimSpace(q) != "" {
		return Classification{}, false
	}
	return Classification{Category: CategoryNoise, Confidence: 1, Reason: "empty question"}, true
}

// TwoStage classifies with the cheap model and calls the generator only for
// subject questions.
type TwoStage struct {
	*core
	classifier *Classifier
	generator  *Generator
}

// NewTwoStage returns the two-stage policy.
func NewTwoStage(classifier *Classifier, generator *Generator, opts ...Option) *TwoStage {
	return &TwoStage{core: newCore(PolicyTwoStage, opts), classifier: classifier, generator: generator}
}

// Triage implements Policy.
func (p *TwoStage) Triage(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, observe.SpanTwoStage)
	defer span.End()

	if cls, ok := emptyQuestion(req.Question); ok {
		return p.finish(ctx, req, cls, "", false, start), nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.classifyTimeout)
	stageStart := time.Now()
	cls, err := p.classifier.Classify(cctx, req)
	cancel()
	p.metrics.RecordTriageStage(ctx, StageClassify, time.Since(stageStart))
	if err != nil {
		return nil, p.upstream(ctx, StageClassify, err)
	}
	if cls.Category != CategorySubject {
		return p.finish(ctx, req, cls, "", false, start), nil
	}

	gctx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	stageStart = time.Now()
	ans, err := p.generator.Answer(gctx, req)
	cancel()
	p.metrics.RecordTriageStage(ctx, StageGenerate, time.Since(stageStart))
	p.metrics.RecordGeneratorCall(ctx, p.name)
	if err != nil {
		return nil, p.upstream(ctx, StageGenerate, err)
	}
	return p.finish(ctx, req, cls, ans.Answer, true, start), nil
}

// SingleStage classifies and answers in one generator call and then routes
// its output the same way TwoStage does.
type SingleStage struct {
	*core
	generator *Generator
}

// NewSingleStage returns the single-call policy.
func NewSingleStage(generator *Generator, opts ...Option) *SingleStage {
	return &SingleStage{core: newCore(PolicySingleStage, opts), generator: generator}
}

// Triage implements Policy.
func (p *SingleStage) Triage(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, observe.SpanSingleStage)
	defer span.End()

	if cls, ok := emptyQuestion(req.Question); ok {
		return p.finish(ctx, req, cls, "", false, start), nil
	}

	gctx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	ans, err := p.generator.Combined(gctx, req)
	cancel()
	p.metrics.RecordTriageStage(ctx, StageGenerate, time.Since(start))
	p.metrics.RecordGeneratorCall(ctx, p.name)
	if err != nil {
		return nil, p.upstream(ctx, StageGenerate, err)
	}

	cls := ans.Classification
	if ans.Plain {
		cls = Classification{IsGenuine: true, Category: CategorySubject, Reason: "unstructured answer"}
	}
	return p.finish(ctx, req, cls, ans.Answer, true, start), nil
}

// New builds the policy named by name.
func New(name string, classifier *Classifier, generator *Generator, opts ...Option) (Policy, error) {
	switch name {
	case "", PolicyTwoStage:
		if classifier == nil || generator == nil {
			return nil, errors.New("triage: two_stage needs a classifier and a generator")
		}
		return NewTwoStage(classifier, generator, opts...), nil
	case PolicySingleStage:
		if generator == nil {
			return nil, errors.New("triage: single_stage needs a generator")
		}
		return NewSingleStage(generator, opts...), nil
	}
	return nil, fmt.Errorf("triage: unknown policy %q", name)
}
