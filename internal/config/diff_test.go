package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/rhymeslikedimes/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(mustLoad(t, validYAML), mustLoad(t, validYAML))
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	base := "server:\n  log_level: info\n"
	tests := []struct {
		name         string
		next         string
		logLevel     bool
		analyzer     bool
		options      bool
		restartNeeds []string
	}{
		{
			name:     "log level",
			next:     "server:\n  log_level: debug\n",
			logLevel: true,
		},
		{
			name:    "request options",
			next:    base + "analysis:\n  max_results_per_category: 3\n",
			options: true,
		},
		{
			name:     "classifier threshold",
			next:     base + "classifier:\n  slant_vowel_similarity: 0.8\n",
			analyzer: true,
		},
		{
			name:     "phrase prefixes",
			next:     base + "analysis:\n  prefixes: [made]\n",
			analyzer: true,
		},
		{
			name:         "listen address",
			next:         "server:\n  log_level: info\n  listen_addr: \":9999\"\n",
			restartNeeds: []string{"server"},
		},
		{
			name:         "source and lexicon",
			next:         base + "source:\n  name: offline\nlexicon:\n  memo_size: 10\n",
			restartNeeds: []string{"lexicon", "source"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := config.Diff(mustLoad(t, base), mustLoad(t, tt.next))
			if d.LogLevelChanged != tt.logLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.logLevel)
			}
			if tt.logLevel && d.NewLogLevel != config.LogDebug {
				t.Errorf("NewLogLevel = %q", d.NewLogLevel)
			}
			if d.AnalyzerChanged != tt.analyzer {
				t.Errorf("AnalyzerChanged = %v, want %v", d.AnalyzerChanged, tt.analyzer)
			}
			if d.OptionsChanged != tt.options {
				t.Errorf("OptionsChanged = %v, want %v", d.OptionsChanged, tt.options)
			}
			if !slices.Equal(d.RestartRequired, tt.restartNeeds) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.restartNeeds)
			}
		})
	}
}
