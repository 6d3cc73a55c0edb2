// Command doubtchat is the main entry point for the live video doubt-chat
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/app"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/config"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/observe"
	"github.com/suryxnshsingh/live-video-doubt-chat/internal/resilience"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm/anyllm"
	oaillm "github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/llm/openai"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt"
	"github.com/suryxnshsingh/live-video-doubt-chat/pkg/provider/stt/deepgram"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "doubtchat: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "doubtchat: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("doubtchat starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLevelVar(level), app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.Reload)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders share one factory: optional APIKey plus optional BaseURL.
var anyLLMProviders = []string{
	"openai", "anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// openai-native talks to any OpenAI-compatible endpoint through the
	// official SDK, with native JSON mode.
	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if raw := optString(entry.Options, "timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("openai-native: options.timeout: %w", err)
			}
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the configured providers. Each model role is
// wrapped in a fallback group so its configured fallbacks take over when the
// primary's circuit breaker opens.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fallbackCfg := resilience.FallbackConfig{Metrics: metrics}

	var err error
	if ps.Classifier, err = buildLLM(reg, "classifier", cfg.Providers.Classifier, cfg.Providers.ClassifierFallbacks, fallbackCfg); err != nil {
		return nil, err
	}
	if ps.Generator, err = buildLLM(reg, "generator", cfg.Providers.Generator, cfg.Providers.GeneratorFallbacks, fallbackCfg); err != nil {
		return nil, err
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown provider, skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}
	return ps, nil
}

// buildLLM creates the primary for role and appends every fallback that can
// be constructed. It returns nil when role is not configured.
func buildLLM(reg *config.Registry, role string, primary config.ProviderEntry, fallbacks []config.ProviderEntry, fc resilience.FallbackConfig) (llm.Provider, error) {
	if primary.Name == "" {
		return nil, nil
	}
	p, err := reg.CreateLLM(primary)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("unknown provider, skipping", "kind", role, "name", primary.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider %q: %w", role, primary.Name, err)
	}

	group := resilience.NewLLMFallback(p, entryName(primary), fc)
	for _, fb := range fallbacks {
		fp, err := reg.CreateLLM(fb)
		if err != nil {
			slog.Warn("skipping fallback", "kind", role, "name", fb.Name, "err", err)
			continue
		}
		group.AddFallback(entryName(fb), fp)
	}
	slog.Info("provider created", "kind", role, "name", primary.Name, "model", primary.Model, "fallbacks", len(fallbacks))
	return group, nil
}

func entryName(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

// optString extracts a string value from a provider options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        doubtchat startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Classifier", cfg.Providers.Classifier.Name, cfg.Providers.Classifier.Model)
	printProvider("Generator", cfg.Providers.Generator.Name, cfg.Providers.Generator.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Printf("║  Policy          : %-19s ║\n", cfg.Triage.Policy)
	fmt.Printf("║  Context window  : %-19s ║\n", fmt.Sprintf("%gs", cfg.Triage.ContextWindow))
	fmt.Printf("║  Glossary terms  : %-19d ║\n", len(cfg.Transcript.Glossary))
	fmt.Printf("║  Exchange sinks  : %-19s ║\n", sinkSummary(cfg.ExchangeLog))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	val := "(not configured)"
	if name != "" {
		val = name
		if model != "" {
			val += "/" + model
		}
	}
	if len(val) > 19 {
		val = val[:16] + "..."
	}
	fmt.Printf("║  %-16s: %-19s ║\n", kind, val)
}

func sinkSummary(c config.ExchangeLogConfig) string {
	var s string
	add := func(on bool, name string) {
		if !on {
			return
		}
		if s != "" {
			s += ","
		}
		s += name
	}
	add(c.File != nil, "file")
	add(c.Postgres != nil, "postgres")
	add(c.Kafka != nil, "kafka")
	if s == "" {
		return "(none)"
	}
	return s
}
