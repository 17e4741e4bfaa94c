package rhyme

import (
	"errors"
	"fmt"
	"slices"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/rhymeslikedimes/pkg/phoneme"
)

// Thresholds tune where near ends and slant begins. Similarities are in
// [0, 1] and computed as 1 - Levenshtein distance / longer length over
// phoneme sequences.
type Thresholds struct {
	// MaxNearSyllableGap is the largest total syllable difference at which
	// identical tails still count as near. Default: 1.
	MaxNearSyllableGap int

	// NearCodaSimilarity is the minimum similarity of the tails' consonant
	// class sequences for a near rhyme when the tail vowels agree but the
	// consonants differ. Default: 1.0.
	NearCodaSimilarity float64

	// SlantVowelSimilarity is the minimum tail vowel-sequence similarity for
	// assonance. Default: 0.5.
	SlantVowelSimilarity float64

	// SlantConsonantSimilarity is the minimum tail consonant-skeleton
	// similarity for consonance. Default: 1.0.
	SlantConsonantSimilarity float64
}

// DefaultThresholds returns the built-in classifier tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxNearSyllableGap:       1,
		NearCodaSimilarity:       1.0,
		SlantVowelSimilarity:     0.5,
		SlantConsonantSimilarity: 1.0,
	}
}

// Validate reports every out-of-range threshold.
func (t Thresholds) Validate() error {
	var errs []error
	if t.MaxNearSyllableGap < 0 {
		errs = append(errs, fmt.Errorf("max_near_syllable_gap must be >= 0, got %d", t.MaxNearSyllableGap))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"near_coda_similarity", t.NearCodaSimilarity},
		{"slant_vowel_similarity", t.SlantVowelSimilarity},
		{"slant_consonant_similarity", t.SlantConsonantSimilarity},
	} {
		if f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %g", f.name, f.v))
		}
	}
	return errors.Join(errs...)
}

// Match is the outcome of comparing two pronunciations.
type Match struct {
	Category Category

	// MatchedSyllables counts the trailing vowels that agree pairwise,
	// walking back from the end of both items.
	MatchedSyllables int

	// Coverage is MatchedSyllables divided by the syllable count of the
	// shorter item.
	Coverage float64

	// CandidateSyllables is the candidate's total syllable count.
	CandidateSyllables int

	// fragAlt indexes the fragment alternate that produced the match.
	fragAlt int
}

// better reports whether m should be preferred over o.
func (m Match) better(o Match) bool {
	if m.Category.Strength() != o.Category.Strength() {
		return m.Category.Strength() > o.Category.Strength()
	}
	if m.Coverage != o.Coverage {
		return m.Coverage > o.Coverage
	}
	return m.MatchedSyllables > o.MatchedSyllables
}

// Phrase is one side of a classification: every pronunciation of a word or
// phrase plus its word count.
type Phrase struct {
	Alternates []phoneme.Pronunciation
	Words      int

	// LastWord holds the pronunciations of the final word when Words > 1.
	LastWord []phoneme.Pronunciation
}

// Classifier assigns rhyme categories. It holds no mutable state and is safe
// for concurrent use.
type Classifier struct {
	t Thresholds
}

// NewClassifier returns a Classifier using t.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// Classify compares a fragment with a candidate.
//
// A multi-word candidate always yields a phrase_* category. For a multi-word
// fragment and a single-word candidate both the whole fragment and its last
// word are compared: the whole-phrase result wins, as a phrase_* category,
// only when its matched syllables reach past the last word and it is at
// least as strong as the last-word result.
func (c *Classifier) Classify(frag, cand Phrase) Match {
	whole := c.Best(frag.Alternates, cand.Alternates)
	if cand.Words > 1 {
		whole.Category = whole.Category.Phrase()
		return whole
	}
	if frag.Words <= 1 || len(frag.LastWord) == 0 {
		return whole
	}

	last := c.Best(frag.LastWord, cand.Alternates)
	if whole.Category != None &&
		whole.MatchedSyllables > lastWordSyllables(frag.Alternates[whole.fragAlt], frag.LastWord) &&
		whole.Category.Strength() >= last.Category.Strength() {
		whole.Category = whole.Category.Phrase()
		return whole
	}
	return last
}

// Best compares every pair of alternates and returns the strongest match.
// Either side being empty yields None.
func (c *Classifier) Best(frag, cand []phoneme.Pronunciation) Match {
	var best Match
	for i, f := range frag {
		for _, p := range cand {
			if m := c.Compare(f, p); m.better(best) {
				m.fragAlt = i
				best = m
			}
		}
	}
	return best
}

// lastWordSyllables returns the syllable count of the longest last-word
// alternate that whole ends with, or of the longest alternate when none does.
func lastWordSyllables(whole phoneme.Pronunciation, last []phoneme.Pronunciation) int {
	suffix, most := -1, 0
	for _, l := range last {
		n := l.Syllables()
		most = max(most, n)
		if len(l) <= len(whole) && whole[len(whole)-len(l):].SameSymbols(l) {
			suffix = max(suffix, n)
		}
	}
	if suffix < 0 {
		return most
	}
	return suffix
}

// Compare classifies a single pair of pronunciations into a base category.
func (c *Classifier) Compare(frag, cand phoneme.Pronunciation) Match {
	ft, ct := frag.RhymingTail(), cand.RhymingTail()
	if len(ft) == 0 || len(ct) == 0 {
		return Match{}
	}

	fs, cs := frag.Syllables(), cand.Syllables()
	shorter := min(fs, cs)
	matched := trailingVowelMatches(frag, cand)
	m := Match{
		MatchedSyllables:   matched,
		Coverage:           float64(matched) / float64(shorter),
		CandidateSyllables: cs,
	}

	exact := ft.SameSymbols(ct)
	gap := fs - cs
	if gap < 0 {
		gap = -gap
	}

	switch {
	case exact && gap == 0 && matched == shorter:
		m.Category = Perfect
	case exact && gap <= c.t.MaxNearSyllableGap:
		m.Category = Near
	case !exact && slices.Equal(ft.Vowels(), ct.Vowels()) &&
		similarity(classNames(ft), classNames(ct)) >= c.t.NearCodaSimilarity:
		m.Category = Near
	case c.assonant(ft, ct) || c.consonant(ft, ct):
		m.Category = Slant
	}
	return m
}

func (c *Classifier) assonant(ft, ct phoneme.Pronunciation) bool {
	if ft[0].Symbol != ct[0].Symbol {
		return false
	}
	return similarity(ft.Vowels(), ct.Vowels()) >= c.t.SlantVowelSimilarity
}

func (c *Classifier) consonant(ft, ct phoneme.Pronunciation) bool {
	fc, cc := ft.Consonants(), ct.Consonants()
	if len(fc) == 0 || len(cc) == 0 {
		return false
	}
	return similarity(fc, cc) >= c.t.SlantConsonantSimilarity
}

// trailingVowelMatches counts vowels that agree pairwise from the end of a
// and b, stopping at the first disagreement.
func trailingVowelMatches(a, b phoneme.Pronunciation) int {
	av, bv := a.Vowels(), b.Vowels()
	n := 0
	for i, j := len(av)-1, len(bv)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if av[i] != bv[j] {
			break
		}
		n++
	}
	return n
}

// classNames maps the consonants of p to their articulation class names.
func classNames(p phoneme.Pronunciation) []string {
	out := make([]string, 0, len(p))
	for _, ph := range p {
		if !ph.IsVowel() {
			out = append(out, ph.Class().String())
		}
	}
	return out
}

// similarity returns 1 - Levenshtein(a, b) / max(len(a), len(b)) treating
// each string as one symbol. Two empty sequences are identical.
func similarity(a, b []string) float64 {
	longer := max(len(a), len(b))
	if longer == 0 {
		return 1
	}
	codes := make(map[string]rune, len(a)+len(b))
	encode := func(seq []string) string {
		rs := make([]rune, len(seq))
		for i, s := range seq {
			r, ok := codes[s]
			if !ok {
				r = rune(0x100 + len(codes))
				codes[s] = r
			}
			rs[i] = r
		}
		return string(rs)
	}
	d := matchr.Levenshtein(encode(a), encode(b))
	return 1 - float64(d)/float64(longer)
}
