package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RepliesChanged is true when any acknowledgment or clarification text
	// was added, removed or edited.
	RepliesChanged bool

	ContextWindowChanged bool
	NewContextWindow     float64

	GlossaryChanged bool
}

// Any reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.RepliesChanged || d.ContextWindowChanged || d.GlossaryChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !maps.Equal(old.Triage.Acknowledgments, new.Triage.Acknowledgments) ||
		!maps.Equal(old.Triage.Clarifications, new.Triage.Clarifications) ||
		!maps.Equal(old.Triage.UnclearReasons, new.Triage.UnclearReasons) {
		d.RepliesChanged = true
	}

	if old.Triage.ContextWindow != new.Triage.ContextWindow {
		d.ContextWindowChanged = true
		d.NewContextWindow = new.Triage.ContextWindow
	}

	if !slices.Equal(old.Transcript.Glossary, new.Transcript.Glossary) {
		d.GlossaryChanged = true
	}

	return d
}
