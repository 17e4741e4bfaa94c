package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Log level,
// analysis and classifier changes are applied live; everything listed in
// RestartRequired only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnalyzerChanged is set when the analysis or classifier sections
	// differ, so the analyzer must be rebuilt.
	AnalyzerChanged bool

	// OptionsChanged is set when the per-request defaults differ.
	OptionsChanged bool

	// RestartRequired names changed sections that cannot be hot-reloaded.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AnalyzerChanged && !d.OptionsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Analysis, new.Analysis
	if oa.MaxPhraseLength != na.MaxPhraseLength || oa.MaxResultsPerCategory != na.MaxResultsPerCategory {
		d.OptionsChanged = true
	}
	if oa.Concurrency != na.Concurrency ||
		oa.MaxGeneratedPhrases != na.MaxGeneratedPhrases ||
		oa.PhraseEndingLookups != na.PhraseEndingLookups ||
		!slices.Equal(oa.Prefixes, na.Prefixes) ||
		old.Classifier != new.Classifier {
		d.AnalyzerChanged = true
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	for _, section := range []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"lexicon", old.Lexicon, new.Lexicon},
		{"source", old.Source, new.Source},
		{"telemetry", old.Telemetry, new.Telemetry},
	} {
		if !reflect.DeepEqual(section.old, section.new) {
			d.RestartRequired = append(d.RestartRequired, section.name)
		}
	}

	return d
}
