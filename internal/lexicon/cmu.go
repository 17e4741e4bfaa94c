package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrWong99/rhymeslikedimes/pkg/phoneme"
)

// errSkipLine signals that a line carries no entry (comment, blank, malformed).
var errSkipLine = errors.New("skip line")

// Stats holds dictionary parser statistics for logging.
type Stats struct {
	TotalLines   int
	CommentLines int
	ParsedLines  int
	SkippedLines int
	UniqueWords  int
}

// ParseCMUFile opens path and parses it with [ParseCMU].
func ParseCMUFile(path string) (map[string][]phoneme.Pronunciation, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return ParseCMU(f)
}

// ParseCMU reads a dictionary in CMU Pronouncing Dictionary format:
//
//	;;; comment
//	TEAR  T EH1 R
//	TEAR(2)  T IH1 R
//
// Words are lower-cased and variants are appended in file order. Lines whose
// transcription contains unknown symbols are skipped and counted.
func ParseCMU(r io.Reader) (map[string][]phoneme.Pronunciation, Stats, error) {
	entries := make(map[string][]phoneme.Pronunciation)
	var stats Stats

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		stats.TotalLines++
		line := scanner.Text()

		word, pron, err := parseLine(line)
		if errors.Is(err, errSkipLine) {
			if strings.HasPrefix(line, ";;;") {
				stats.CommentLines++
			}
			continue
		}
		if err != nil {
			stats.SkippedLines++
			continue
		}

		stats.ParsedLines++
		entries[word] = append(entries[word], pron)
	}
	if err := scanner.Err(); err != nil {
		return nil, Stats{}, fmt.Errorf("scan dictionary: %w", err)
	}

	stats.UniqueWords = len(entries)
	return entries, stats, nil
}

// parseLine splits a CMU line into its normalised word and transcription.
func parseLine(line string) (string, phoneme.Pronunciation, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ";;;") {
		return "", nil, errSkipLine
	}

	// Two spaces separate the headword from its phonemes in the canonical
	// file; tolerate a single space or tab as well.
	word, rest, ok := strings.Cut(line, "  ")
	if !ok {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return "", nil, errSkipLine
		}
		word, rest = fields[0], strings.Join(fields[1:], " ")
	}

	word = stripVariant(strings.TrimSpace(word))
	if word == "" {
		return "", nil, errSkipLine
	}

	pron, err := phoneme.Parse(rest)
	if err != nil {
		return "", nil, err
	}
	return normalizeWord(word), pron, nil
}

// stripVariant turns "TEAR(2)" into "TEAR".
func stripVariant(raw string) string {
	idx := strings.IndexByte(raw, '(')
	if idx <= 0 || !strings.HasSuffix(raw, ")") {
		return raw
	}
	return raw[:idx]
}

// normalizeWord lower-cases w and folds typographic apostrophes.
func normalizeWord(w string) string {
	w = strings.ReplaceAll(w, "’", "'")
	return strings.ToLower(strings.TrimSpace(w))
}
