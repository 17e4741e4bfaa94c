// Package rhyme finds and classifies rhymes for every fragment of a line.
//
// An [Analyzer] enumerates the line's word fragments, asks the rhyme source
// for candidates per fragment, classifies each candidate phonetically with a
// [Classifier], adds generated phrase candidates for multi-word fragments and
// returns ranked, deduplicated lists per [Category].
package rhyme

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/source"
	"github.com/MrWong99/rhymeslikedimes/pkg/phoneme"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

// ErrInvalidOptions is returned for non-positive analysis options. It is the
// only error an analysis reports besides context cancellation.
var ErrInvalidOptions = errors.New("rhyme: invalid options")

// Defaults for [Options] and [Config].
const (
	DefaultMaxPhraseLength     = 3
	DefaultMaxResults          = 7
	DefaultSuggestResults      = 10
	DefaultConcurrency         = 8
	DefaultPhraseEndingLookups = 3
)

// Options are the per-request analysis knobs.
type Options struct {
	// MaxPhraseLength is the longest fragment, in words. Must be >= 1.
	MaxPhraseLength int `json:"max_phrase_length"`

	// MaxResultsPerCategory caps every category list. Must be >= 1.
	MaxResultsPerCategory int `json:"max_results_per_category"`
}

// DefaultOptions returns the default request options.
func DefaultOptions() Options {
	return Options{
		MaxPhraseLength:       DefaultMaxPhraseLength,
		MaxResultsPerCategory: DefaultMaxResults,
	}
}

// Validate returns an error wrapping [ErrInvalidOptions] for each
// non-positive field.
func (o Options) Validate() error {
	var errs []error
	if o.MaxPhraseLength <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_phrase_length must be >= 1, got %d", ErrInvalidOptions, o.MaxPhraseLength))
	}
	if o.MaxResultsPerCategory <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_results_per_category must be >= 1, got %d", ErrInvalidOptions, o.MaxResultsPerCategory))
	}
	return errors.Join(errs...)
}

// Filter restricts [Analyzer.Suggest] to one rhyme quality.
type Filter int

const (
	FilterAll Filter = iota
	FilterPerfect
	FilterNear
	FilterSlant
)

// ParseFilter parses "all", "perfect", "near" or "slant". The empty string
// means all.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "perfect":
		return FilterPerfect, nil
	case "near":
		return FilterNear, nil
	case "slant":
		return FilterSlant, nil
	default:
		return FilterAll, fmt.Errorf("%w: unknown rhyme type %q", ErrInvalidOptions, s)
	}
}

// String returns the filter name.
func (f Filter) String() string {
	switch f {
	case FilterPerfect:
		return "perfect"
	case FilterNear:
		return "near"
	case FilterSlant:
		return "slant"
	default:
		return "all"
	}
}

// allows reports whether c passes the filter. Phrase variants follow their
// base category.
func (f Filter) allows(c Category) bool {
	switch f {
	case FilterPerfect:
		return c.Base() == Perfect
	case FilterNear:
		return c.Base() == Near
	case FilterSlant:
		return c.Base() == Slant
	default:
		return true
	}
}

// Transcriber resolves words and phrases to pronunciations.
// *lexicon.Lexicon implements it.
type Transcriber interface {
	Transcribe(text string) []phoneme.Pronunciation
}

// Source answers rhyme lookups without failing. *source.Client implements it.
type Source interface {
	Lookup(ctx context.Context, text string, rel rhymesource.Relation) source.Result
}

// Config wires an [Analyzer].
type Config struct {
	// Thresholds tune the classifier. The zero value selects
	// [DefaultThresholds].
	Thresholds Thresholds

	// Prefixes are extra leading words for generated phrases. Nil selects
	// [DefaultPrefixes].
	Prefixes []string

	// MaxGeneratedPhrases caps generated phrases per fragment.
	MaxGeneratedPhrases int

	// PhraseEndingLookups is how many of the final word's top rhymes are
	// looked up as phrase endings. Zero disables those lookups; negative
	// selects [DefaultPhraseEndingLookups].
	PhraseEndingLookups int

	// Concurrency bounds in-flight source lookups per analysis.
	Concurrency int

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Analyzer runs line analyses. It is safe for concurrent use.
type Analyzer struct {
	lex          Transcriber
	src          Source
	classifier   *Classifier
	augmenter    *Augmenter
	phraseEnding int
	concurrency  int
	metrics      *observe.Metrics
	log          *slog.Logger
}

// New returns an Analyzer backed by lex and src.
func New(lex Transcriber, src Source, cfg Config) *Analyzer {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PhraseEndingLookups < 0 {
		cfg.PhraseEndingLookups = DefaultPhraseEndingLookups
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{
		lex:          lex,
		src:          src,
		classifier:   NewClassifier(cfg.Thresholds),
		augmenter:    NewAugmenter(cfg.Prefixes, cfg.MaxGeneratedPhrases),
		phraseEnding: cfg.PhraseEndingLookups,
		concurrency:  cfg.Concurrency,
		metrics:      cfg.Metrics,
		log:          cfg.Logger.With("component", "analyzer"),
	}
}

// Classifier returns the classifier used by a.
func (a *Analyzer) Classifier() *Classifier { return a.classifier }

// Analyze finds rhymes for every fragment of line. Unknown words, source
// failures and empty lines only reduce the result; the returned error is
// non-nil only for invalid opts or when ctx ends first.
func (a *Analyzer) Analyze(ctx context.Context, line string, opts Options) (*AnalysisResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observe.StartAnalysisSpan(ctx, "analyze", line)
	defer span.End()

	frags := Enumerate(Tokenize(line), opts.MaxPhraseLength)
	span.SetAttributes(observe.AttrFragments.Int(len(frags)))

	res := &AnalysisResult{OriginalLine: line}
	results, err := a.run(ctx, frags, opts.MaxResultsPerCategory, FilterAll)
	if err != nil {
		return nil, err
	}
	for _, fr := range results {
		if fr.Empty() {
			a.metrics.RecordFragment(ctx, "empty")
			continue
		}
		a.metrics.RecordFragment(ctx, "emitted")
		res.Fragments = append(res.Fragments, fr)
	}

	elapsed := time.Since(start)
	a.metrics.AnalysisDuration.Record(ctx, elapsed.Seconds())
	span.SetAttributes(observe.AttrEmitted.Int(len(res.Fragments)))
	observe.Logger(ctx, "analyzer").Debug("line analysed",
		"fragments", len(frags),
		"emitted", len(res.Fragments),
		"duration", elapsed,
	)
	return res, nil
}

// Suggest classifies the rhymes of a single word (or phrase) and keeps only
// the categories that pass filter. Each list holds at most maxResults
// entries. An unknown word yields an empty result.
func (a *Analyzer) Suggest(ctx context.Context, word string, filter Filter, maxResults int) (*FragmentResult, error) {
	if maxResults <= 0 {
		return nil, fmt.Errorf("%w: max_results must be >= 1, got %d", ErrInvalidOptions, maxResults)
	}

	ctx, span := observe.StartAnalysisSpan(ctx, "suggest", word)
	defer span.End()

	tokens := Tokenize(word)
	if len(tokens) == 0 {
		return &FragmentResult{}, nil
	}
	frag := Fragment{Text: strings.Join(tokens, " "), Start: 0, End: len(tokens), Words: tokens}

	results, err := a.run(ctx, []Fragment{frag}, maxResults, filter)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &FragmentResult{Text: frag.Text, Span: [2]int{frag.Start, frag.End}}, nil
	}
	return results[0], nil
}

// job is one transcribed fragment awaiting candidates.
type job struct {
	frag   Fragment
	phrase Phrase
}

type lookupKey struct {
	text string
	rel  rhymesource.Relation
}

// run analyses frags and returns one result per known fragment, in order.
func (a *Analyzer) run(ctx context.Context, frags []Fragment, maxResults int, filter Filter) ([]*FragmentResult, error) {
	jobs := a.prepare(ctx, frags)
	if len(jobs) == 0 {
		return nil, nil
	}

	lookups := make(map[lookupKey]source.Result)
	var keys []lookupKey
	for _, j := range jobs {
		for _, rel := range rhymesource.Relations {
			keys = append(keys, lookupKey{j.frag.Text, rel})
		}
		if j.frag.Len() > 1 {
			w := j.frag.Words
			keys = append(keys,
				lookupKey{w[len(w)-1], rhymesource.RelationPerfect},
				lookupKey{w[len(w)-2], rhymesource.RelationPerfect},
			)
		}
	}
	if err := a.lookupAll(ctx, keys, lookups); err != nil {
		return nil, err
	}

	if a.phraseEnding > 0 {
		keys = keys[:0]
		for _, j := range jobs {
			if j.frag.Len() < 2 {
				continue
			}
			finals := candidateTexts(lookups[lookupKey{j.frag.LastWord(), rhymesource.RelationPerfect}].Candidates)
			for _, final := range finals[:min(a.phraseEnding, len(finals))] {
				keys = append(keys, lookupKey{final, rhymesource.RelationPhraseEnding})
			}
		}
		if err := a.lookupAll(ctx, keys, lookups); err != nil {
			return nil, err
		}
	}

	out := make([]*FragmentResult, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, a.rank(ctx, j, lookups, maxResults, filter))
	}
	return out, nil
}

// prepare drops repeated fragment texts (first occurrence wins) and
// fragments containing a word without a pronunciation.
func (a *Analyzer) prepare(ctx context.Context, frags []Fragment) []job {
	seen := make(map[string]struct{}, len(frags))
	jobs := make([]job, 0, len(frags))
	for _, f := range frags {
		if _, dup := seen[f.Text]; dup {
			continue
		}
		seen[f.Text] = struct{}{}

		alts := a.lex.Transcribe(f.Text)
		if len(alts) == 0 {
			a.metrics.RecordFragment(ctx, "unknown_word")
			observe.Logger(ctx, "analyzer").Debug("fragment skipped", "fragment", f.Text, "reason", "no pronunciation")
			continue
		}
		p := Phrase{Alternates: alts, Words: f.Len()}
		if f.Len() > 1 {
			p.LastWord = a.lex.Transcribe(f.LastWord())
		}
		jobs = append(jobs, job{frag: f, phrase: p})
	}
	return jobs
}

// lookupAll fetches every key not yet present in into, bounded by the
// analyzer's concurrency.
func (a *Analyzer) lookupAll(ctx context.Context, keys []lookupKey, into map[lookupKey]source.Result) error {
	pending := make(map[lookupKey]struct{}, len(keys))
	for _, k := range keys {
		if _, done := into[k]; !done {
			pending[k] = struct{}{}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for k := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := a.src.Lookup(gctx, k.text, k.rel)
			mu.Lock()
			into[k] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// entry is a candidate on its way into a category list.
type entry struct {
	text      string
	score     int
	syllables int
}

// rank classifies and orders every candidate gathered for j.
func (a *Analyzer) rank(ctx context.Context, j job, lookups map[lookupKey]source.Result, maxResults int, filter Filter) *FragmentResult {
	var (
		order []string
		pool  = make(map[string]*entry)
	)
	add := func(c rhymesource.Candidate) {
		text := normalizeCandidate(c.Text)
		if text == "" || text == j.frag.Text {
			return
		}
		if e, ok := pool[text]; ok {
			if c.HasScore && c.Score > e.score {
				e.score = c.Score
			}
			return
		}
		e := &entry{text: text}
		if c.HasScore {
			e.score = c.Score
		}
		pool[text] = e
		order = append(order, text)
	}

	for _, rel := range rhymesource.Relations {
		for _, c := range lookups[lookupKey{j.frag.Text, rel}].Candidates {
			add(c)
		}
	}
	if j.frag.Len() > 1 {
		w := j.frag.Words
		finals := candidateTexts(lookups[lookupKey{w[len(w)-1], rhymesource.RelationPerfect}].Candidates)
		leads := candidateTexts(lookups[lookupKey{w[len(w)-2], rhymesource.RelationPerfect}].Candidates)
		for _, final := range finals[:min(a.phraseEnding, len(finals))] {
			for _, c := range lookups[lookupKey{final, rhymesource.RelationPhraseEnding}].Candidates {
				add(c)
			}
		}
		for _, phrase := range a.augmenter.Generate(leads, finals) {
			add(rhymesource.Candidate{Text: phrase, Origin: rhymesource.OriginGenerated})
		}
	}

	var buckets [numCategories][]*entry
	for _, text := range order {
		e := pool[text]
		alts := a.lex.Transcribe(text)
		if len(alts) == 0 {
			continue
		}
		m := a.classifier.Classify(j.phrase, Phrase{Alternates: alts, Words: strings.Count(text, " ") + 1})
		a.metrics.RecordClassification(ctx, m.Category.String())
		if m.Category == None || !filter.allows(m.Category) {
			continue
		}
		e.syllables = m.CandidateSyllables
		buckets[m.Category] = append(buckets[m.Category], e)
	}

	fr := &FragmentResult{Text: j.frag.Text, Span: [2]int{j.frag.Start, j.frag.End}}
	for _, c := range Categories {
		list := buckets[c]
		slices.SortFunc(list, func(x, y *entry) int {
			if d := cmp.Compare(y.score, x.score); d != 0 {
				return d
			}
			if d := cmp.Compare(y.syllables, x.syllables); d != 0 {
				return d
			}
			return strings.Compare(x.text, y.text)
		})
		texts := make([]string, 0, min(len(list), maxResults))
		for _, e := range list[:min(len(list), maxResults)] {
			texts = append(texts, e.text)
		}
		fr.Set(c, texts)
	}
	return fr
}

// normalizeCandidate lower-cases text and strips punctuation the same way
// input lines are tokenized.
func normalizeCandidate(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// candidateTexts returns the normalized single-word texts of cands, in order.
func candidateTexts(cands []rhymesource.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if t := normalizeCandidate(c.Text); t != "" && !strings.Contains(t, " ") {
			out = append(out, t)
		}
	}
	return out
}
