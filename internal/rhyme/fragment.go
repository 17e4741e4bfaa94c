package rhyme

import (
	"strings"
	"unicode"
)

// Fragment is a contiguous run of words from an input line.
type Fragment struct {
	// Text is the words joined by single spaces.
	Text string

	// Start and End delimit the word-index span [Start, End).
	Start, End int

	// Words holds the fragment's tokens.
	Words []string
}

// Len returns the number of words in f.
func (f Fragment) Len() int { return f.End - f.Start }

// LastWord returns the fragment's final token.
func (f Fragment) LastWord() string { return f.Words[len(f.Words)-1] }

// Tokenize splits line into lower-cased word tokens. Letters, digits and
// apostrophes inside a word are kept; everything else separates words.
// Typographic apostrophes are folded to ASCII and leading or trailing
// apostrophes are dropped, so "Rock’n’roll," becomes "rock'n'roll".
func Tokenize(line string) []string {
	line = strings.ToLower(strings.NewReplacer("’", "'", "‘", "'").Replace(line))
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Enumerate returns every fragment of 1..maxLen words of tokens. Fragments
// are ordered by start offset and then by length, so each single word is
// immediately followed by the longer phrases that begin with it. A
// non-positive maxLen or an empty token list yields nil.
func Enumerate(tokens []string, maxLen int) []Fragment {
	if maxLen <= 0 || len(tokens) == 0 {
		return nil
	}
	var out []Fragment
	for start := range tokens {
		for n := 1; n <= maxLen && start+n <= len(tokens); n++ {
			words := tokens[start : start+n : start+n]
			out = append(out, Fragment{
				Text:  strings.Join(words, " "),
				Start: start,
				End:   start + n,
				Words: words,
			})
		}
	}
	return out
}
