package phoneme

import (
	"fmt"
	"strings"
)

// Pronunciation is one transcription of a word or phrase. Values are treated
// as immutable once built; callers that need to modify one must copy it.
type Pronunciation []Phoneme

// Parse parses a whitespace-separated ARPAbet string such as
// "S P AH0 G EH1 T IY0".
func Parse(s string) (Pronunciation, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("phoneme: empty transcription")
	}
	p := make(Pronunciation, 0, len(fields))
	for _, f := range fields {
		ph, err := ParsePhoneme(f)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		p = append(p, ph)
	}
	return p, nil
}

// MustParse is like [Parse] but panics on error. Intended for tests and
// package-level tables.
func MustParse(s string) Pronunciation {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Concat joins several pronunciations into one, as when words of a phrase
// are spoken in sequence.
func Concat(parts ...Pronunciation) Pronunciation {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Pronunciation, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// String renders p in CMU notation.
func (p Pronunciation) String() string {
	parts := make([]string, len(p))
	for i, ph := range p {
		parts[i] = ph.String()
	}
	return strings.Join(parts, " ")
}

// Syllables returns the number of vowels in p.
func (p Pronunciation) Syllables() int {
	n := 0
	for _, ph := range p {
		if ph.IsVowel() {
			n++
		}
	}
	return n
}

// TailStart returns the index where the rhyming tail begins: the last vowel
// with primary stress, else the last vowel with secondary stress, else the
// last vowel. It returns -1 when p has no vowel at all.
func (p Pronunciation) TailStart() int {
	lastSecondary, lastVowel := -1, -1
	for i := len(p) - 1; i >= 0; i-- {
		ph := p[i]
		if !ph.IsVowel() {
			continue
		}
		if ph.Stress == Primary {
			return i
		}
		if ph.Stress == Secondary && lastSecondary < 0 {
			lastSecondary = i
		}
		if lastVowel < 0 {
			lastVowel = i
		}
	}
	if lastSecondary >= 0 {
		return lastSecondary
	}
	return lastVowel
}

// RhymingTail returns the suffix of p starting at [Pronunciation.TailStart].
// It returns nil when p contains no vowel.
func (p Pronunciation) RhymingTail() Pronunciation {
	i := p.TailStart()
	if i < 0 {
		return nil
	}
	return p[i:]
}

// StressedVowel returns the vowel that opens the rhyming tail.
func (p Pronunciation) StressedVowel() (Phoneme, bool) {
	i := p.TailStart()
	if i < 0 {
		return Phoneme{}, false
	}
	return p[i], true
}

// Symbols returns the bare symbols of p with stress removed.
func (p Pronunciation) Symbols() []string {
	out := make([]string, len(p))
	for i, ph := range p {
		out[i] = ph.Symbol
	}
	return out
}

// Vowels returns the vowel symbols of p in order.
func (p Pronunciation) Vowels() []string {
	out := make([]string, 0, len(p))
	for _, ph := range p {
		if ph.IsVowel() {
			out = append(out, ph.Symbol)
		}
	}
	return out
}

// Consonants returns the consonant symbols of p in order.
func (p Pronunciation) Consonants() []string {
	out := make([]string, 0, len(p))
	for _, ph := range p {
		if !ph.IsVowel() {
			out = append(out, ph.Symbol)
		}
	}
	return out
}

// Classes returns the articulation class of each phoneme in p. Vowels keep
// their own symbol-level identity elsewhere, so they appear here only as
// [ClassVowel].
func (p Pronunciation) Classes() []Class {
	out := make([]Class, len(p))
	for i, ph := range p {
		out[i] = ph.Class()
	}
	return out
}

// SameSymbols reports whether p and q spell the same phonemes, ignoring
// stress.
func (p Pronunciation) SameSymbols(q Pronunciation) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i].Symbol != q[i].Symbol {
			return false
		}
	}
	return true
}

// Key returns a stress-free string form of p suitable as a map key.
func (p Pronunciation) Key() string {
	return strings.Join(p.Symbols(), " ")
}
