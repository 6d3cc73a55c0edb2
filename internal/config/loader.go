package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "openai-native", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %g must be between 0 and 1", r))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.Classifier.Name)
	validateProviderName("llm", cfg.Providers.Generator.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	errs = append(errs, validateFallbacks("providers.classifier_fallbacks", cfg.Providers.ClassifierFallbacks)...)
	errs = append(errs, validateFallbacks("providers.generator_fallbacks", cfg.Providers.GeneratorFallbacks)...)

	// Triage
	t := cfg.Triage
	if t.Policy != "" && !t.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("triage.policy %q is invalid; valid values: two_stage, single_stage", t.Policy))
	}
	if cfg.Providers.Generator.Name == "" {
		slog.Warn("providers.generator is not configured; questions cannot be answered")
	} else if t.Policy != PolicySingleStage && cfg.Providers.Classifier.Name == "" {
		errs = append(errs, errors.New("triage.policy two_stage requires providers.classifier"))
	}
	if t.ContextWindow != 0 && (t.ContextWindow < MinContextWindow || t.ContextWindow > MaxContextWindow) {
		errs = append(errs, fmt.Errorf("triage.context_window %.0f is out of range [%.0f, %.0f]", t.ContextWindow, MinContextWindow, MaxContextWindow))
	}
	if t.ClassifyTimeout < 0 {
		errs = append(errs, fmt.Errorf("triage.classify_timeout %v must not be negative", t.ClassifyTimeout))
	}
	if t.GenerateTimeout < 0 {
		errs = append(errs, fmt.Errorf("triage.generate_timeout %v must not be negative", t.GenerateTimeout))
	}
	for lang, text := range t.Acknowledgments {
		if strings.TrimSpace(text) == "" {
			errs = append(errs, fmt.Errorf("triage.acknowledgments[%s] is empty", lang))
		}
	}
	for lang, text := range t.Clarifications {
		if strings.TrimSpace(text) == "" {
			errs = append(errs, fmt.Errorf("triage.clarifications[%s] is empty", lang))
		}
	}
	for lang, text := range t.UnclearReasons {
		if strings.TrimSpace(text) == "" {
			errs = append(errs, fmt.Errorf("triage.unclear_reasons[%s] is empty", lang))
		}
	}

	// Transcript
	if cfg.Transcript.DisplayTokens < 0 {
		errs = append(errs, fmt.Errorf("transcript.display_tokens %d must not be negative", cfg.Transcript.DisplayTokens))
	}
	if cfg.Transcript.IngestQueue < 0 {
		errs = append(errs, fmt.Errorf("transcript.ingest_queue %d must not be negative", cfg.Transcript.IngestQueue))
	}
	for i, term := range cfg.Transcript.Glossary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("transcript.glossary[%d] is empty", i))
		}
	}

	// Exchange log
	if f := cfg.ExchangeLog.File; f != nil && f.Path == "" {
		errs = append(errs, errors.New("exchange_log.file.path is required"))
	}
	if pg := cfg.ExchangeLog.Postgres; pg != nil && pg.DSN == "" {
		errs = append(errs, errors.New("exchange_log.postgres.dsn is required"))
	}
	if k := cfg.ExchangeLog.Kafka; k != nil {
		if len(k.Brokers) == 0 {
			errs = append(errs, errors.New("exchange_log.kafka.brokers is required"))
		}
		if k.ExchangeTopic == "" {
			errs = append(errs, errors.New("exchange_log.kafka.exchange_topic is required"))
		}
	}

	return errors.Join(errs...)
}

func validateFallbacks(prefix string, entries []ProviderEntry) []error {
	var errs []error
	for i, e := range entries {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s[%d].name is required", prefix, i))
			continue
		}
		validateProviderName("llm", e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
