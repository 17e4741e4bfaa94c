package lexicon

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/rhymeslikedimes/pkg/phoneme"
)

// overrideValue accepts either a single transcription string or a list of
// them, so both of these are valid:
//
//	skrrt: "S K ER1 T"
//	tear: ["T EH1 R", "T IH1 R"]
type overrideValue []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *overrideValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = overrideValue{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*v = list
		return nil
	default:
		return fmt.Errorf("line %d: override must be a string or a list of strings", node.Line)
	}
}

// LoadOverridesFile reads an overrides file. A missing file is not an error
// and yields an empty table.
func LoadOverridesFile(path string) (map[string][]phoneme.Pronunciation, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open overrides: %w", err)
	}
	defer f.Close()

	overrides, err := LoadOverrides(f)
	if err != nil {
		return nil, fmt.Errorf("overrides %s: %w", path, err)
	}
	return overrides, nil
}

// LoadOverrides decodes a YAML (or JSON) mapping from word to one or more
// ARPAbet transcriptions. Keys are lower-cased. Any malformed transcription
// fails the whole load.
func LoadOverrides(r io.Reader) (map[string][]phoneme.Pronunciation, error) {
	var raw map[string]overrideValue
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode overrides: %w", err)
	}

	var errs []error
	out := make(map[string][]phoneme.Pronunciation, len(raw))
	for word, transcriptions := range raw {
		key := normalizeWord(word)
		if key == "" {
			errs = append(errs, fmt.Errorf("override with empty word"))
			continue
		}
		for _, s := range transcriptions {
			p, err := phoneme.Parse(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("override %q: %w", word, err))
				continue
			}
			out[key] = append(out[key], p)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
