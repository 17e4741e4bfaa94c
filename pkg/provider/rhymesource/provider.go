// Package rhymesource defines the Provider interface for rhyme-suggestion
// backends.
//
// A rhyme source maps a word or phrase to candidate words and phrases that
// are related to it by sound, tagged with the source's own coarse relation
// (rhyme, near rhyme, sound-alike). The source's opinion is only a starting
// point: candidates are re-classified phonetically before they reach a user.
//
// Implementations must be safe for concurrent use.
package rhymesource

import (
	"context"
	"errors"
)

// ErrUnsupportedRelation is returned by providers that cannot answer a given
// [Relation].
var ErrUnsupportedRelation = errors.New("rhymesource: unsupported relation")

// Relation is the coarse relation a lookup asks the source for.
type Relation int

const (
	// RelationPerfect asks for words the source considers rhymes.
	RelationPerfect Relation = iota

	// RelationNear asks for approximate rhymes.
	RelationNear

	// RelationSoundAlike asks for words that sound similar overall.
	RelationSoundAlike

	// RelationPhraseEnding asks for multi-word phrases that end with the
	// looked-up word.
	RelationPhraseEnding
)

// Relations lists the relations queried for every fragment.
var Relations = []Relation{RelationPerfect, RelationNear, RelationSoundAlike}

// String returns the relation's wire name.
func (r Relation) String() string {
	switch r {
	case RelationPerfect:
		return "perfect"
	case RelationNear:
		return "near"
	case RelationSoundAlike:
		return "sound_alike"
	case RelationPhraseEnding:
		return "phrase_ending"
	default:
		return "unknown"
	}
}

// Origin records where a candidate came from.
type Origin int

const (
	// OriginSource marks a candidate returned by a remote, scoring source.
	OriginSource Origin = iota

	// OriginFallback marks a candidate produced by the offline dictionary
	// generator. Such candidates never carry a score.
	OriginFallback

	// OriginGenerated marks a phrase assembled locally from other candidates.
	OriginGenerated
)

// String returns the origin's name.
func (o Origin) String() string {
	switch o {
	case OriginSource:
		return "source"
	case OriginFallback:
		return "fallback"
	case OriginGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// Candidate is one suggestion returned by a rhyme source.
type Candidate struct {
	// Text is the suggested word or phrase, as returned by the source.
	Text string `json:"text"`

	// Relation is the relation that was queried to obtain this candidate.
	Relation Relation `json:"relation"`

	// Score is the source's relevance score. Only meaningful when HasScore.
	Score int `json:"score,omitempty"`

	// HasScore reports whether the source attached a score.
	HasScore bool `json:"has_score,omitempty"`

	// Origin records where the candidate came from.
	Origin Origin `json:"origin"`
}

// Provider is the abstraction over any rhyme-suggestion backend.
type Provider interface {
	// Lookup returns candidates related to text by rel, ordered by the
	// source's preference. text is already lower-cased and whitespace
	// normalised. An empty result with a nil error means the source had
	// nothing to offer; a non-nil error means the source could not answer.
	Lookup(ctx context.Context, text string, rel Relation) ([]Candidate, error)

	// Name returns a short identifier used in logs and metrics
	// (e.g., "datamuse", "offline").
	Name() string
}
