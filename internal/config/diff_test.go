package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/suryxnshsingh/live-video-doubt-chat/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old := validConfig()
	old.Triage.Acknowledgments = map[string]string{"hi": "Ruko"}
	old.Transcript.Glossary = []string{"Newton"}
	new := validConfig()
	new.Triage.Acknowledgments = map[string]string{"hi": "Ruko"}
	new.Transcript.Glossary = []string{"Newton"}

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_Fields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("got %+v, want log level debug", d)
				}
			},
		},
		{
			name:   "acknowledgment edited",
			mutate: func(c *config.Config) { c.Triage.Acknowledgments = map[string]string{"hi": "Thoda ruko"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.RepliesChanged {
					t.Errorf("got %+v, want replies changed", d)
				}
			},
		},
		{
			name:   "clarification added",
			mutate: func(c *config.Config) { c.Triage.Clarifications = map[string]string{"en": "Say again?"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.RepliesChanged {
					t.Errorf("got %+v, want replies changed", d)
				}
			},
		},
		{
			name:   "unclear reason added",
			mutate: func(c *config.Config) { c.Triage.UnclearReasons = map[string]string{"hi": "Dobara likhiye"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.RepliesChanged {
					t.Errorf("got %+v, want replies changed", d)
				}
			},
		},
		{
			name:   "context window",
			mutate: func(c *config.Config) { c.Triage.ContextWindow = 150 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.ContextWindowChanged || d.NewContextWindow != 150 {
					t.Errorf("got %+v, want context window 150", d)
				}
			},
		},
		{
			name:   "glossary",
			mutate: func(c *config.Config) { c.Transcript.Glossary = []string{"Newton", "Kepler"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.GlossaryChanged {
					t.Errorf("got %+v, want glossary changed", d)
				}
			},
		},
		{
			name:   "restart-only field is not hot",
			mutate: func(c *config.Config) { c.Server.ListenAddr = ":9999" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if d.Any() {
					t.Errorf("listen_addr should not appear in diff, got %+v", d)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := validConfig()
			old.Triage.Acknowledgments = map[string]string{"hi": "Ruko"}
			old.Transcript.Glossary = []string{"Newton"}
			new := validConfig()
			new.Triage.Acknowledgments = map[string]string{"hi": "Ruko"}
			new.Transcript.Glossary = []string{"Newton"}
			tt.mutate(new)
			tt.check(t, config.Diff(old, new))
		})
	}
}

func TestRestartRequired(t *testing.T) {
	t.Parallel()

	old := validConfig()
	if got := config.RestartRequired(old, validConfig()); len(got) != 0 {
		t.Errorf("identical configs: got %v, want none", got)
	}

	new := validConfig()
	new.Server.ListenAddr = ":9999"
	new.Providers.Generator.Model = "gpt-4.1"
	new.Triage.GenerateTimeout = time.Minute
	new.Transcript.IngestQueue = 8
	new.ExchangeLog.File = &config.FileLogConfig{Path: "x.jsonl"}
	new.Triage.ContextWindow = 200 // hot, must not be listed

	got := config.RestartRequired(old, new)
	want := []string{"server", "providers", "triage", "transcript", "exchange_log"}
	if !slices.Equal(got, want) {
		t.Errorf("RestartRequired: got %v, want %v", got, want)
	}
}
