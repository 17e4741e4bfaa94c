// Package config provides the configuration schema, loader, hot-reload
// watcher and rhyme source registry for the rhyme service.
//
// Values are layered: built-in defaults (env-default tags), then the YAML
// file, then RHYMES_* environment variables. A zero value in the file counts
// as unset and receives the default.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
	"github.com/MrWong99/rhymeslikedimes/internal/resilience"
)

// LogLevel controls log verbosity for the rhyme server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FallbackMode selects what answers when the primary rhyme source is down.
type FallbackMode string

const (
	// FallbackOffline serves lookups from the lexicon-backed generator.
	FallbackOffline FallbackMode = "offline"

	// FallbackNone degrades straight to empty candidate lists.
	FallbackNone FallbackMode = "none"
)

// IsValid reports whether m is a recognised fallback mode.
func (m FallbackMode) IsValid() bool {
	return m == FallbackOffline || m == FallbackNone
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Lexicon    LexiconConfig    `yaml:"lexicon"`
	Source     SourceConfig     `yaml:"source"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr" env:"RHYMES_LISTEN_ADDR" env-default:":8080"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"RHYMES_LOG_LEVEL" env-default:"info"`

	// TLS configures TLS for the server. Both files must be set to enable it.
	TLS TLSConfig `yaml:"tls"`

	// AllowedOrigins are host patterns accepted for cross-origin WebSocket
	// upgrades. Empty allows same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins" env:"RHYMES_ALLOWED_ORIGINS" env-separator:","`

	// WSMessageRate and WSMessageBurst limit messages per WebSocket session.
	WSMessageRate  float64 `yaml:"ws_message_rate" env:"RHYMES_WS_MESSAGE_RATE" env-default:"20"`
	WSMessageBurst int     `yaml:"ws_message_burst" env:"RHYMES_WS_MESSAGE_BURST" env-default:"40"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"RHYMES_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// TLSConfig holds paths to TLS certificate and key files.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" env:"RHYMES_TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"RHYMES_TLS_KEY_FILE"`
}

// Enabled reports whether both files are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// LexiconConfig selects the pronunciation data.
type LexiconConfig struct {
	// DictionaryPath is a CMU-format dictionary. Empty uses the embedded
	// starter dictionary.
	DictionaryPath string `yaml:"dictionary_path" env:"RHYMES_DICTIONARY_PATH"`

	// OverridesPath is a YAML or JSON override table; a missing file is
	// ignored.
	OverridesPath string `yaml:"overrides_path" env:"RHYMES_OVERRIDES_PATH"`

	// MemoSize bounds the transcription memo.
	MemoSize int `yaml:"memo_size" env:"RHYMES_LEXICON_MEMO_SIZE" env-default:"8192"`
}

// SourceConfig configures the rhyme source client and its providers.
type SourceConfig struct {
	// Name selects the primary provider from the [Registry].
	Name string `yaml:"name" env:"RHYMES_SOURCE" env-default:"datamuse"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" env:"RHYMES_SOURCE_BASE_URL"`

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration `yaml:"timeout" env:"RHYMES_SOURCE_TIMEOUT" env-default:"2s"`

	// MaxResults is the number of candidates requested per lookup.
	MaxResults int `yaml:"max_results" env:"RHYMES_SOURCE_MAX_RESULTS" env-default:"50"`

	// Fallback selects the secondary provider.
	Fallback FallbackMode `yaml:"fallback" env:"RHYMES_SOURCE_FALLBACK" env-default:"offline"`

	// CacheSize and CacheTTL bound the in-memory response cache.
	CacheSize int           `yaml:"cache_size" env:"RHYMES_SOURCE_CACHE_SIZE" env-default:"4096"`
	CacheTTL  time.Duration `yaml:"cache_ttl" env:"RHYMES_SOURCE_CACHE_TTL" env-default:"1h"`

	// PostgresDSN enables the persistent response cache when set.
	PostgresDSN string `yaml:"postgres_dsn" env:"RHYMES_POSTGRES_DSN"`

	// PersistentTTL is how long persisted responses stay fresh.
	PersistentTTL time.Duration `yaml:"persistent_ttl" env:"RHYMES_SOURCE_PERSISTENT_TTL" env-default:"168h"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-provider circuit breakers.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" env:"RHYMES_BREAKER_MAX_FAILURES" env-default:"5"`
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RHYMES_BREAKER_RESET_TIMEOUT" env-default:"30s"`
	HalfOpenMax  int           `yaml:"half_open_max" env:"RHYMES_BREAKER_HALF_OPEN_MAX" env-default:"3"`
}

// Resilience converts c for [resilience.NewCircuitBreaker].
func (c CircuitBreakerConfig) Resilience() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		MaxFailures:  c.MaxFailures,
		ResetTimeout: c.ResetTimeout,
		HalfOpenMax:  c.HalfOpenMax,
	}
}

// AnalysisConfig holds analyzer defaults. Hot-reloadable.
type AnalysisConfig struct {
	MaxPhraseLength       int `yaml:"max_phrase_length" env:"RHYMES_MAX_PHRASE_LENGTH" env-default:"3"`
	MaxResultsPerCategory int `yaml:"max_results_per_category" env:"RHYMES_MAX_RESULTS_PER_CATEGORY" env-default:"7"`

	// Concurrency bounds in-flight source lookups per analysis.
	Concurrency int `yaml:"concurrency" env:"RHYMES_ANALYSIS_CONCURRENCY" env-default:"8"`

	MaxGeneratedPhrases int `yaml:"max_generated_phrases" env:"RHYMES_MAX_GENERATED_PHRASES" env-default:"40"`

	// PhraseEndingLookups is how many top rhymes of a final word are looked
	// up as phrase endings. Negative disables them.
	PhraseEndingLookups int `yaml:"phrase_ending_lookups" env:"RHYMES_PHRASE_ENDING_LOOKUPS" env-default:"3"`

	// Prefixes replace the built-in leading words for generated phrases.
	Prefixes []string `yaml:"prefixes" env:"RHYMES_PHRASE_PREFIXES" env-separator:","`
}

// Options returns the per-request defaults.
func (a AnalysisConfig) Options() rhyme.Options {
	return rhyme.Options{
		MaxPhraseLength:       a.MaxPhraseLength,
		MaxResultsPerCategory: a.MaxResultsPerCategory,
	}
}

// ClassifierConfig tunes the rhyme classifier. Hot-reloadable.
type ClassifierConfig struct {
	MaxNearSyllableGap       int     `yaml:"max_near_syllable_gap" env:"RHYMES_CLASSIFIER_MAX_NEAR_SYLLABLE_GAP" env-default:"1"`
	NearCodaSimilarity       float64 `yaml:"near_coda_similarity" env:"RHYMES_CLASSIFIER_NEAR_CODA_SIMILARITY" env-default:"1.0"`
	SlantVowelSimilarity     float64 `yaml:"slant_vowel_similarity" env:"RHYMES_CLASSIFIER_SLANT_VOWEL_SIMILARITY" env-default:"0.5"`
	SlantConsonantSimilarity float64 `yaml:"slant_consonant_similarity" env:"RHYMES_CLASSIFIER_SLANT_CONSONANT_SIMILARITY" env-default:"1.0"`
}

// Thresholds converts c for the classifier.
func (c ClassifierConfig) Thresholds() rhyme.Thresholds {
	return rhyme.Thresholds{
		MaxNearSyllableGap:       c.MaxNearSyllableGap,
		NearCodaSimilarity:       c.NearCodaSimilarity,
		SlantVowelSimilarity:     c.SlantVowelSimilarity,
		SlantConsonantSimilarity: c.SlantConsonantSimilarity,
	}
}

// TelemetryConfig names the service in exported telemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" env:"RHYMES_SERVICE_NAME" env-default:"rhymeslikedimes"`
}

// AnalyzerConfig assembles the [rhyme.Config] described by cfg. Metrics and
// Logger are left for the caller.
func (cfg *Config) AnalyzerConfig() rhyme.Config {
	phraseEnding := cfg.Analysis.PhraseEndingLookups
	if phraseEnding < 0 {
		phraseEnding = 0
	}
	return rhyme.Config{
		Thresholds:          cfg.Classifier.Thresholds(),
		Prefixes:            cfg.Analysis.Prefixes,
		MaxGeneratedPhrases: cfg.Analysis.MaxGeneratedPhrases,
		PhraseEndingLookups: phraseEnding,
		Concurrency:         cfg.Analysis.Concurrency,
	}
}
