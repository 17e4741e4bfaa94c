package rhyme

import "fmt"

// Category is the rhyme quality assigned to a (fragment, candidate) pair.
// The zero value is [None].
type Category int

const (
	// None means the pair does not rhyme well enough to be shown.
	None Category = iota
	Perfect
	Near
	Slant
	PhrasePerfect
	PhraseNear
	PhraseSlant

	numCategories
)

// Categories lists every emitted category in output order.
var Categories = [...]Category{Perfect, Near, Slant, PhrasePerfect, PhraseNear, PhraseSlant}

var categoryNames = [numCategories]string{
	None:          "none",
	Perfect:       "perfect",
	Near:          "near",
	Slant:         "slant",
	PhrasePerfect: "phrase_perfect",
	PhraseNear:    "phrase_near",
	PhraseSlant:   "phrase_slant",
}

// String returns the category's wire name.
func (c Category) String() string {
	if c < 0 || c >= numCategories {
		return "unknown"
	}
	return categoryNames[c]
}

// ParseCategory is the inverse of [Category.String].
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return None, fmt.Errorf("rhyme: unknown category %q", s)
}

// IsPhrase reports whether c is one of the phrase_* variants.
func (c Category) IsPhrase() bool {
	return c >= PhrasePerfect && c <= PhraseSlant
}

// Phrase returns the phrase_* variant of c. None stays None.
func (c Category) Phrase() Category {
	switch c {
	case Perfect, PhrasePerfect:
		return PhrasePerfect
	case Near, PhraseNear:
		return PhraseNear
	case Slant, PhraseSlant:
		return PhraseSlant
	default:
		return None
	}
}

// Base strips the phrase_* variant.
func (c Category) Base() Category {
	switch c {
	case Perfect, PhrasePerfect:
		return Perfect
	case Near, PhraseNear:
		return Near
	case Slant, PhraseSlant:
		return Slant
	default:
		return None
	}
}

// Strength orders categories by rhyme quality regardless of variant:
// perfect 3, near 2, slant 1, none 0.
func (c Category) Strength() int {
	switch c.Base() {
	case Perfect:
		return 3
	case Near:
		return 2
	case Slant:
		return 1
	default:
		return 0
	}
}
