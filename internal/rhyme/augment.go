package rhyme

import "strings"

// DefaultMaxGeneratedPhrases caps the phrases generated per fragment.
const DefaultMaxGeneratedPhrases = 40

// DefaultPrefixes are the common leading words combined with final-word
// rhymes when generating phrase candidates.
var DefaultPrefixes = []string{
	"made", "take", "came", "late", "hate", "gate", "date", "rate", "wait",
	"state", "stayed", "played", "delayed", "displayed", "betrayed",
	"conveyed", "surveyed",
	"blue", "new", "true", "threw", "grew", "knew", "flew", "drew", "few", "view",
	"break", "make", "fake", "wake", "shake", "cake", "lake", "snake",
	"said", "red", "bed", "head", "dead", "led", "fed", "thread", "spread", "bread",
}

// Augmenter builds supplementary two-word phrase candidates for multi-word
// fragments. It is stateless and safe for concurrent use.
type Augmenter struct {
	prefixes []string
	max      int
}

// NewAugmenter returns an Augmenter that uses prefixes as extra leading words
// and produces at most limit phrases per call. A nil prefixes slice selects
// [DefaultPrefixes]; a non-positive limit selects [DefaultMaxGeneratedPhrases].
func NewAugmenter(prefixes []string, limit int) *Augmenter {
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	if limit <= 0 {
		limit = DefaultMaxGeneratedPhrases
	}
	return &Augmenter{prefixes: prefixes, max: limit}
}

// Generate pairs leading words with final words. Leads are the given leads
// followed by the configured prefixes. Phrases are produced lead by lead in
// that order, skipping duplicates and single-word inputs, until the cap is
// reached.
func (a *Augmenter) Generate(leads, finals []string) []string {
	if len(finals) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{leads, a.prefixes} {
		for _, lead := range group {
			lead = strings.ToLower(strings.TrimSpace(lead))
			if lead == "" || strings.Contains(lead, " ") {
				continue
			}
			for _, final := range finals {
				final = strings.ToLower(strings.TrimSpace(final))
				if final == "" || strings.Contains(final, " ") {
					continue
				}
				phrase := lead + " " + final
				if _, dup := seen[phrase]; dup {
					continue
				}
				seen[phrase] = struct{}{}
				out = append(out, phrase)
				if len(out) == a.max {
					return out
				}
			}
		}
	}
	return out
}
