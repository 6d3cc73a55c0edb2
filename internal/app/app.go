// Package app wires the doubt-chat subsystems into a running server.
//
// The App owns the full lifecycle: [New] builds the exchange log, the
// session manager and the triage policy from config; [App.Run] serves the
// HTTP and websocket API until its context ends; [App.Shutdown] drains and
// tears everything down in order. [App.Reload] applies hot config changes
// delivered by [config.Watcher].
//
// For testing, inject doubles via functional options ([WithSink],
// [WithMetrics]). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/config"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/exchange"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/health"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/session"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/transcript/glossary"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/triage"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Classifier llm.Provider
	Generator  llm.Provider
	STT        stt.Provider
}

// App owns all subsystem lifetimes and serves the API.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar

	sink      exchange.Sink
	publisher session.TranscriptPublisher
	sessions  *session.Manager
	policy    triage.Policy // nil when no generator is configured
	health    *health.Handler
	checks    []health.Checker
	handler   http.Handler

	// contextWindow holds the float64 bits of the triage horizon in seconds.
	contextWindow atomic.Uint64
	glossary      atomic.Pointer[glossary.Matcher]

	// logs tracks in-flight exchange writes so Shutdown can wait for them.
	logs sync.WaitGroup

	server *http.Server

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSink injects an exchange sink instead of building one from
// exchange_log. The App takes ownership and closes it on Shutdown.
func WithSink(s exchange.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithPublisher injects the receiver of accepted final tokens. Without it
// the Kafka sink is used when a transcript topic is configured.
func WithPublisher(p session.TranscriptPublisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithMetrics overrides observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar hands the App the level of the process logger so
// server.log_level can be hot-reloaded.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already be
// validated; providers come from main.go.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}
	a.setContextWindow(cfg.Triage.ContextWindow)

	// ── 1. Exchange log ──────────────────────────────────────────────────
	if err := a.initExchangeLog(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init exchange log: %w", err)
	}

	// ── 2. Sessions ──────────────────────────────────────────────────────
	var corrector transcript.Corrector
	if m := newGlossary(cfg.Transcript.Glossary); m != nil {
		a.glossary.Store(m)
		corrector = m
	}
	a.sessions = session.NewManager(session.ManagerConfig{
		DefaultLanguage: cfg.Triage.DefaultLanguage,
		QueueSize:       cfg.Transcript.IngestQueue,
		Corrector:       corrector,
		Publisher:       a.publisher,
		Metrics:         a.metrics,
	})

	// ── 3. Triage policy ─────────────────────────────────────────────────
	if err := a.initPolicy(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init triage: %w", err)
	}

	// ── 4. Health + routes ───────────────────────────────────────────────
	a.checks = append(a.checks,
		providerCheck("generator", providers.Generator),
	)
	if cfg.Triage.Policy != config.PolicySingleStage {
		a.checks = append(a.checks, providerCheck("classifier", providers.Classifier))
	}
	a.health = health.New(a.checks...)
	a.handler = a.routes()

	slog.Info("app initialised",
		"policy", a.policyName(),
		"context_window", cfg.Triage.ContextWindow,
		"glossary_terms", len(cfg.Transcript.Glossary),
		"stt", providers.STT != nil,
	)
	return a, nil
}

func (a *App) initExchangeLog(ctx context.Context) error {
	if a.sink != nil {
		a.closers = append(a.closers, a.sink.Close)
		return nil
	}

	var sinks exchange.Multi
	logCfg := a.cfg.ExchangeLog
	if f := logCfg.File; f != nil {
		s, err := exchange.NewFileSink(f.Path)
		if err != nil {
			return err
		}
		sinks = append(sinks, s)
	}
	if pg := logCfg.Postgres; pg != nil {
		s, err := exchange.NewPostgresSink(ctx, pg.DSN)
		if err != nil {
			_ = sinks.Close()
			return err
		}
		sinks = append(sinks, s)
		a.checks = append(a.checks, health.PingCheck("postgres", s))
	}
	if k := logCfg.Kafka; k != nil {
		s, err := exchange.NewKafkaSink(exchange.KafkaConfig{
			Brokers:         k.Brokers,
			ExchangeTopic:   k.ExchangeTopic,
			TranscriptTopic: k.TranscriptTopic,
		})
		if err != nil {
			_ = sinks.Close()
			return err
		}
		sinks = append(sinks, s)
		if a.publisher == nil && k.TranscriptTopic != "" {
			a.publisher = s
		}
	}

	switch len(sinks) {
	case 0:
		a.sink = exchange.Nop{}
	case 1:
		a.sink = sinks[0]
	default:
		a.sink = sinks
	}
	a.closers = append(a.closers, a.sink.Close)
	return nil
}

func (a *App) initPolicy() error {
	t := a.cfg.Triage
	if a.providers.Generator == nil {
		slog.Warn("no generator configured; /ask will answer 503")
		return nil
	}
	var classifier *triage.Classifier
	if a.providers.Classifier != nil {
		classifier = triage.NewClassifier(a.providers.Classifier)
	}
	generator := triage.NewGenerator(a.providers.Generator)

	p, err := triage.New(string(t.Policy), classifier, generator,
		triage.WithReplies(replies(t)),
		triage.WithTimeouts(t.ClassifyTimeout, t.GenerateTimeout),
		triage.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.policy = p
	return nil
}

// providerCheck reports a missing provider, and an open breaker when p is
// guarded by one.
func providerCheck(name string, p llm.Provider) health.Checker {
	if b, ok := p.(health.Breaker); ok {
		return health.BreakerCheck(name, b)
	}
	return health.Checker{Name: name, Check: func(context.Context) error {
		if p == nil {
			return errors.New("not configured")
		}
		return nil
	}}
}

func newGlossary(terms []string) *glossary.Matcher {
	if len(terms) == 0 {
		return nil
	}
	return glossary.New(terms)
}

func (a *App) policyName() string {
	if a.policy == nil {
		return "none"
	}
	return a.policy.Name()
}

func (a *App) setContextWindow(seconds float64) {
	a.contextWindow.Store(math.Float64bits(seconds))
}

// ContextWindow returns the current triage horizon in seconds.
func (a *App) ContextWindow() float64 {
	return math.Float64frombits(a.contextWindow.Load())
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable settings in d. It matches
// [config.ChangeFunc] so it can be handed to [config.NewWatcher] directly.
func (a *App) Reload(_, newCfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
	}
	if d.RepliesChanged && a.policy != nil {
		if rs, ok := a.policy.(interface{ SetReplies(triage.Replies) }); ok {
			rs.SetReplies(replies(newCfg.Triage))
		}
	}
	if d.ContextWindowChanged {
		a.setContextWindow(d.NewContextWindow)
	}
	if d.GlossaryChanged {
		m := newGlossary(newCfg.Transcript.Glossary)
		a.glossary.Store(m)
		if m == nil {
			a.sessions.SetCorrector(nil)
		} else {
			a.sessions.SetCorrector(m)
		}
	}
	if d.Any() {
		slog.Info("config reloaded",
			"log_level", d.LogLevelChanged,
			"replies", d.RepliesChanged,
			"context_window", d.ContextWindowChanged,
			"glossary", d.GlossaryChanged,
		)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the API on server.listen_addr until ctx is cancelled or the
// listener fails. It does not tear down subsystems; call Shutdown after.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		a.health.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every session, waits for in-flight exchange writes, then
// runs the closers. If ctx expires first, the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len(), "closers", len(a.closers))
		a.health.SetDraining()

		if err := a.sessions.CloseAll(ctx); err != nil {
			slog.Warn("closing sessions", "err", err)
		}

		logged := make(chan struct{})
		go func() {
			a.logs.Wait()
			close(logged)
		}()
		select {
		case <-logged:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded waiting for exchange log")
			shutdownErr = ctx.Err()
			return
		}

		a.closeAll()
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}

func replies(t config.TriageConfig) triage.Replies {
	return triage.Replies{
		Acknowledgments: t.Acknowledgments,
		Clarifications:  t.Clarifications,
		UnclearReasons:  t.UnclearReasons,
	}
}
