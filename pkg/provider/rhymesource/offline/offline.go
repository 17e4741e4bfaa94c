// Package offline implements a rhyme source over a closed pronunciation
// vocabulary, with no network access.
//
// It serves as the degraded-mode fallback when the remote source is down,
// and as a standalone source for air-gapped deployments. Candidates are
// drawn only from the vocabulary, are tagged [rhymesource.OriginFallback],
// and never carry a score.
//
// Relations are answered from indices built once at construction:
//
//   - perfect: words sharing the exact rhyming tail (stress ignored).
//   - near: words whose tail has the same vowels and the same consonant
//     classes (e.g. "T" and "D" are both stops).
//   - sound_alike: words sharing the stressed vowel and final consonant, plus
//     words whose Double Metaphone code overlaps the input, ranked by
//     Jaro-Winkler similarity on spelling.
//   - phrase_ending: unsupported (the vocabulary holds single words); an
//     empty result is returned.
package offline

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/rhymeslikedimes/pkg/phoneme"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

// DefaultMaxResults is the number of candidates returned per lookup.
const DefaultMaxResults = 50

// Vocabulary is the pronunciation data the generator draws from.
// *lexicon.Lexicon satisfies it.
type Vocabulary interface {
	// Words returns the single-word vocabulary.
	Words() []string
	// Transcribe returns every pronunciation of a word or phrase.
	Transcribe(text string) []phoneme.Pronunciation
}

// Option is a functional option for [New].
type Option func(*Provider)

// WithMaxResults caps the number of candidates per lookup.
func WithMaxResults(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxResults = n
		}
	}
}

// Provider is the offline rhyme source. It is read-only after construction
// and safe for concurrent use.
type Provider struct {
	vocab      Vocabulary
	maxResults int

	byTail      map[string][]string
	bySignature map[string][]string
	bySound     map[string][]string
	byCode      map[string][]string
}

// Ensure Provider implements the rhymesource.Provider interface at compile time.
var _ rhymesource.Provider = (*Provider)(nil)

// New indexes vocab and returns a Provider.
func New(vocab Vocabulary, opts ...Option) *Provider {
	p := &Provider{
		vocab:       vocab,
		maxResults:  DefaultMaxResults,
		byTail:      make(map[string][]string),
		bySignature: make(map[string][]string),
		bySound:     make(map[string][]string),
		byCode:      make(map[string][]string),
	}
	for _, o := range opts {
		o(p)
	}

	for _, w := range vocab.Words() {
		for _, pron := range vocab.Transcribe(w) {
			tail := pron.RhymingTail()
			if len(tail) == 0 {
				continue
			}
			addUnique(p.byTail, tail.Key(), w)
			addUnique(p.bySignature, signature(tail), w)
			addUnique(p.bySound, soundKey(pron), w)
		}
		for code := range codesForTokens([]string{w}) {
			addUnique(p.byCode, code, w)
		}
	}
	return p
}

// Name implements rhymesource.Provider.
func (p *Provider) Name() string { return "offline" }

// Lookup implements rhymesource.Provider. It never fails; unknown input
// yields an empty result.
func (p *Provider) Lookup(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = strings.ToLower(strings.TrimSpace(text))
	prons := p.vocab.Transcribe(text)
	if len(prons) == 0 {
		return nil, nil
	}

	var words []string
	switch rel {
	case rhymesource.RelationPerfect:
		words = p.collect(prons, p.byTail, func(pr phoneme.Pronunciation) string { return pr.RhymingTail().Key() })
		p.sortBySyllables(words, prons)
	case rhymesource.RelationNear:
		words = p.collect(prons, p.bySignature, func(pr phoneme.Pronunciation) string { return signature(pr.RhymingTail()) })
		p.sortBySyllables(words, prons)
	case rhymesource.RelationSoundAlike:
		words = p.soundAlike(text, prons)
	case rhymesource.RelationPhraseEnding:
		return nil, nil
	default:
		return nil, rhymesource.ErrUnsupportedRelation
	}

	words = slices.DeleteFunc(words, func(w string) bool { return w == text })
	if len(words) > p.maxResults {
		words = words[:p.maxResults]
	}

	out := make([]rhymesource.Candidate, len(words))
	for i, w := range words {
		out[i] = rhymesource.Candidate{
			Text:     w,
			Relation: rel,
			Origin:   rhymesource.OriginFallback,
		}
	}
	return out, nil
}

// collect gathers the union of index entries for every input pronunciation.
func (p *Provider) collect(prons []phoneme.Pronunciation, index map[string][]string, key func(phoneme.Pronunciation) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, pr := range prons {
		if len(pr.RhymingTail()) == 0 {
			continue
		}
		for _, w := range index[key(pr)] {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// sortBySyllables orders words by how close their syllable count is to the
// input's, then alphabetically.
func (p *Provider) sortBySyllables(words []string, prons []phoneme.Pronunciation) {
	target := prons[0].Syllables()
	dist := make(map[string]int, len(words))
	for _, w := range words {
		best := -1
		for _, pr := range p.vocab.Transcribe(w) {
			d := pr.Syllables() - target
			if d < 0 {
				d = -d
			}
			if best < 0 || d < best {
				best = d
			}
		}
		dist[w] = best
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(dist[a], dist[b]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

// soundAlike merges phonetic-key neighbours with Double Metaphone matches and
// ranks them by spelling similarity.
func (p *Provider) soundAlike(text string, prons []phoneme.Pronunciation) []string {
	words := p.collect(prons, p.bySound, soundKey)

	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	tokens := strings.Fields(text)
	last := tokens[len(tokens)-1]
	for code := range codesForTokens([]string{last}) {
		for _, w := range p.byCode[code] {
			if _, ok := seen[w]; !ok {
				seen[w] = struct{}{}
				words = append(words, w)
			}
		}
	}

	score := make(map[string]float64, len(words))
	for _, w := range words {
		score[w] = matchr.JaroWinkler(last, w, false)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(score[b], score[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return words
}

// signature encodes a tail as its vowels plus the classes of its consonants.
func signature(tail phoneme.Pronunciation) string {
	parts := make([]string, len(tail))
	for i, ph := range tail {
		if ph.IsVowel() {
			parts[i] = ph.Symbol
		} else {
			parts[i] = ph.Class().String()
		}
	}
	return strings.Join(parts, " ")
}

// soundKey is the stressed vowel plus the final consonant, if any.
func soundKey(pr phoneme.Pronunciation) string {
	v, ok := pr.StressedVowel()
	if !ok {
		return ""
	}
	final := ""
	if last := pr[len(pr)-1]; !last.IsVowel() {
		final = last.Symbol
	}
	return v.Symbol + "/" + final
}

// codesForTokens returns the union of the Double Metaphone codes of tokens,
// excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func addUnique(index map[string][]string, key, word string) {
	if key == "" {
		return
	}
	if slices.Contains(index[key], word) {
		return
	}
	index[key] = append(index[key], word)
}
