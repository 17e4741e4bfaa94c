package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// ValidSourceNames lists the rhyme source providers that ship with the
// service. Used by [Validate] to warn about unrecognised names.
var ValidSourceNames = []string{"datamuse", "offline"}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config]. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(strings.NewReader(""))
	}

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

// LoadFromReader decodes a YAML config from r, layers RHYMES_* environment
// variables and defaults on top, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
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
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if (cfg.Server.TLS.CertFile == "") != (cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.WSMessageRate <= 0 || cfg.Server.WSMessageBurst <= 0 {
		errs = append(errs, fmt.Errorf("server.ws_message_rate and ws_message_burst must be > 0, got %g and %d", cfg.Server.WSMessageRate, cfg.Server.WSMessageBurst))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be >= 0, got %v", cfg.Server.ShutdownTimeout))
	}

	// Lexicon
	if cfg.Lexicon.MemoSize < 0 {
		errs = append(errs, fmt.Errorf("lexicon.memo_size must be >= 0, got %d", cfg.Lexicon.MemoSize))
	}

	// Source
	src := cfg.Source
	if src.Name == "" {
		errs = append(errs, errors.New("source.name is required"))
	}
	validateSourceName(src.Name)
	if src.Fallback != "" && !src.Fallback.IsValid() {
		errs = append(errs, fmt.Errorf("source.fallback %q is invalid; valid values: offline, none", src.Fallback))
	}
	if src.Name == "offline" && src.Fallback == FallbackOffline {
		slog.Warn("source.fallback offline is redundant when the primary source is offline")
	}
	if src.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("source.timeout must be > 0, got %v", src.Timeout))
	}
	if src.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("source.max_results must be > 0, got %d", src.MaxResults))
	}
	if src.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("source.cache_size must be > 0, got %d", src.CacheSize))
	}
	if src.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("source.cache_ttl must be >= 0, got %v", src.CacheTTL))
	}
	if src.PersistentTTL < 0 {
		errs = append(errs, fmt.Errorf("source.persistent_ttl must be >= 0, got %v", src.PersistentTTL))
	}
	if src.CircuitBreaker.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("source.circuit_breaker.max_failures must be > 0, got %d", src.CircuitBreaker.MaxFailures))
	}
	if src.CircuitBreaker.ResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("source.circuit_breaker.reset_timeout must be > 0, got %v", src.CircuitBreaker.ResetTimeout))
	}
	if src.CircuitBreaker.HalfOpenMax <= 0 {
		errs = append(errs, fmt.Errorf("source.circuit_breaker.half_open_max must be > 0, got %d", src.CircuitBreaker.HalfOpenMax))
	}

	// Analysis
	if err := cfg.Analysis.Options().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis: %w", err))
	}
	if cfg.Analysis.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("analysis.concurrency must be > 0, got %d", cfg.Analysis.Concurrency))
	}
	if cfg.Analysis.MaxGeneratedPhrases <= 0 {
		errs = append(errs, fmt.Errorf("analysis.max_generated_phrases must be > 0, got %d", cfg.Analysis.MaxGeneratedPhrases))
	}
	for i, p := range cfg.Analysis.Prefixes {
		if strings.TrimSpace(p) == "" || len(strings.Fields(p)) > 1 {
			errs = append(errs, fmt.Errorf("analysis.prefixes[%d] %q must be a single word", i, p))
		}
	}

	// Classifier
	if err := cfg.Classifier.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("classifier: %w", err))
	}

	return errors.Join(errs...)
}

// validateSourceName logs a warning if name is non-empty and not one of
// [ValidSourceNames].
func validateSourceName(name string) {
	if name == "" || slices.Contains(ValidSourceNames, name) {
		return
	}
	slog.Warn("unknown rhyme source name; may be a typo or third-party provider",
		"name", name,
		"known", ValidSourceNames,
	)
}
