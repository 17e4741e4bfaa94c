// Package lexicon resolves words and phrases to ARPAbet pronunciations.
//
// A [Lexicon] combines a base dictionary in CMU Pronouncing Dictionary format
// with an optional override table. Overrides always win over the base entry
// for the same (lower-cased) word. Both tables are read-only after
// construction; the only shared mutable state is a bounded LRU memo of
// resolved lookups, populated at most once per key.
//
// When no dictionary path is configured, a compact starter dictionary
// embedded in the binary is used so the service works out of the box.
package lexicon

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MrWong99/rhymeslikedimes/pkg/phoneme"
)

// DefaultMemoSize is the memo capacity used when none is configured.
const DefaultMemoSize = 8192

// MaxPhraseVariants caps the number of alternate pronunciations produced for
// a multi-word phrase. Heteronyms multiply quickly across words.
const MaxPhraseVariants = 8

//go:embed data/core.dict
var coreDict []byte

// Config selects the dictionary sources for [Load].
type Config struct {
	// DictionaryPath points at a CMU-format dictionary. Empty selects the
	// embedded starter dictionary.
	DictionaryPath string

	// OverridesPath points at a YAML or JSON override table. A missing file
	// is not an error.
	OverridesPath string

	// MemoSize bounds the lookup memo. Zero selects [DefaultMemoSize].
	MemoSize int
}

// Option is a functional option for [New].
type Option func(*options)

type options struct {
	overrides map[string][]phoneme.Pronunciation
	memoSize  int
}

// WithOverrides installs an override table. Keys must already be lower-case.
func WithOverrides(overrides map[string][]phoneme.Pronunciation) Option {
	return func(o *options) {
		o.overrides = overrides
	}
}

// WithMemoSize sets the capacity of the lookup memo.
func WithMemoSize(n int) Option {
	return func(o *options) {
		o.memoSize = n
	}
}

// Lexicon is a read-only pronunciation dictionary with memoised lookups.
// It is safe for concurrent use.
type Lexicon struct {
	base      map[string][]phoneme.Pronunciation
	overrides map[string][]phoneme.Pronunciation
	words     []string
	memo      *lru.Cache[string, []phoneme.Pronunciation]
}

// New builds a Lexicon from an already parsed base dictionary.
func New(base map[string][]phoneme.Pronunciation, opts ...Option) (*Lexicon, error) {
	o := options{memoSize: DefaultMemoSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.memoSize <= 0 {
		o.memoSize = DefaultMemoSize
	}

	memo, err := lru.New[string, []phoneme.Pronunciation](o.memoSize)
	if err != nil {
		return nil, fmt.Errorf("lexicon: create memo: %w", err)
	}

	seen := make(map[string]struct{}, len(base)+len(o.overrides))
	words := make([]string, 0, len(base)+len(o.overrides))
	for _, table := range []map[string][]phoneme.Pronunciation{base, o.overrides} {
		for w := range table {
			if _, dup := seen[w]; dup || strings.ContainsRune(w, ' ') {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	slices.Sort(words)

	return &Lexicon{
		base:      base,
		overrides: o.overrides,
		words:     words,
		memo:      memo,
	}, nil
}

// Default builds a Lexicon from the embedded starter dictionary.
func Default(opts ...Option) (*Lexicon, error) {
	base, _, err := ParseCMU(bytes.NewReader(coreDict))
	if err != nil {
		return nil, fmt.Errorf("lexicon: embedded dictionary: %w", err)
	}
	return New(base, opts...)
}

// Load builds a Lexicon from cfg, logging dictionary statistics to log.
func Load(cfg Config, log *slog.Logger) (*Lexicon, error) {
	if log == nil {
		log = slog.Default()
	}

	var (
		base  map[string][]phoneme.Pronunciation
		stats Stats
		err   error
	)
	source := cfg.DictionaryPath
	if source == "" {
		source = "embedded"
		base, stats, err = ParseCMU(bytes.NewReader(coreDict))
	} else {
		base, stats, err = ParseCMUFile(cfg.DictionaryPath)
	}
	if err != nil {
		return nil, fmt.Errorf("lexicon: load %s: %w", source, err)
	}

	overrides, err := LoadOverridesFile(cfg.OverridesPath)
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}

	log.Info("lexicon loaded",
		"source", source,
		"words", stats.UniqueWords,
		"parsed_lines", stats.ParsedLines,
		"skipped_lines", stats.SkippedLines,
		"overrides", len(overrides),
	)
	return New(base, WithOverrides(overrides), WithMemoSize(cfg.MemoSize))
}

// Transcribe returns every known pronunciation of text, which may be a
// single word or a space-separated phrase. An unknown word, or a phrase
// containing one, yields nil.
//
// The returned slices are shared with the memo and must not be modified.
func (l *Lexicon) Transcribe(text string) []phoneme.Pronunciation {
	key := strings.Join(strings.Fields(normalizeWord(text)), " ")
	if key == "" {
		return nil
	}
	if v, ok := l.memo.Get(key); ok {
		return v
	}

	v := l.resolve(key)
	if prev, ok, _ := l.memo.PeekOrAdd(key, v); ok {
		return prev
	}
	return v
}

// Known reports whether every word of text has a pronunciation.
func (l *Lexicon) Known(text string) bool {
	return len(l.Transcribe(text)) > 0
}

// Words returns the single-word vocabulary in sorted order.
func (l *Lexicon) Words() []string {
	return slices.Clone(l.words)
}

// Len returns the vocabulary size.
func (l *Lexicon) Len() int {
	return len(l.words)
}

// resolve looks key up without touching the memo.
func (l *Lexicon) resolve(key string) []phoneme.Pronunciation {
	if p := l.entry(key); len(p) > 0 {
		return p
	}

	words := strings.Split(key, " ")
	if len(words) < 2 {
		return nil
	}

	variants := []phoneme.Pronunciation{nil}
	for _, w := range words {
		alts := l.entry(w)
		if len(alts) == 0 {
			return nil
		}
		next := make([]phoneme.Pronunciation, 0, min(len(variants)*len(alts), MaxPhraseVariants))
		for _, prefix := range variants {
			for _, alt := range alts {
				if len(next) == MaxPhraseVariants {
					break
				}
				next = append(next, phoneme.Concat(prefix, alt))
			}
		}
		variants = next
	}
	return variants
}

// entry returns the direct table entry for key, overrides first.
func (l *Lexicon) entry(key string) []phoneme.Pronunciation {
	if p, ok := l.overrides[key]; ok && len(p) > 0 {
		return p
	}
	return l.base[key]
}
