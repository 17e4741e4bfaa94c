package rhyme_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/rhymeslikedimes/internal/lexicon"
	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
	"github.com/MrWong99/rhymeslikedimes/internal/source"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

type key struct {
	text string
	rel  rhymesource.Relation
}

// fakeSource answers from a fixed table and records every lookup.
type fakeSource struct {
	mu        sync.Mutex
	responses map[key][]rhymesource.Candidate
	calls     map[key]int
	block     bool
}

func (s *fakeSource) Lookup(ctx context.Context, text string, rel rhymesource.Relation) source.Result {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[key]int)
	}
	s.calls[key{text, rel}]++
	cands := s.responses[key{text, rel}]
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return source.Result{Status: source.StatusUnavailable}
	}
	return source.Result{Candidates: slices.Clone(cands), Status: source.StatusOK}
}

func (s *fakeSource) callCount(text string, rel rhymesource.Relation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key{text, rel}]
}

func words(texts ...string) []rhymesource.Candidate {
	out := make([]rhymesource.Candidate, len(texts))
	for i, t := range texts {
		out[i] = rhymesource.Candidate{Text: t}
	}
	return out
}

func scored(text string, score int) rhymesource.Candidate {
	return rhymesource.Candidate{Text: text, Score: score, HasScore: true}
}

// scenarioSource mimics a remote rhyme API for the words used below.
func scenarioSource() *fakeSource {
	return &fakeSource{responses: map[key][]rhymesource.Candidate{
		{"ate", rhymesource.RelationPerfect}: words("date", "late", "gate", "rate"),
		{"spaghetti", rhymesource.RelationPerfect}: {
			scored("confetti", 900), scored("machete", 850), scored("yeti", 800), scored("Tea", 100),
		},
		{"spaghetti", rhymesource.RelationNear}:       words("sweaty", "jetty", "betty", "spaghetti"),
		{"spaghetti", rhymesource.RelationSoundAlike}: words("pretty", "city"),
		{"cookie", rhymesource.RelationPerfect}:       words("rookie", "bookie"),
		{"tear", rhymesource.RelationPerfect}:         words("year", "bear", "near"),
	}}
}

func newAnalyzer(t *testing.T, src rhyme.Source) *rhyme.Analyzer {
	t.Helper()
	lex, err := lexicon.Default()
	if err != nil {
		t.Fatalf("lexicon.Default: %v", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return rhyme.New(lex, src, rhyme.Config{
		PhraseEndingLookups: -1,
		Metrics:             m,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func fragmentTexts(res *rhyme.AnalysisResult) []string {
	out := make([]string, len(res.Fragments))
	for i, f := range res.Fragments {
		out[i] = f.Text
	}
	return out
}

func TestAnalyze_AteSpaghetti(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, scenarioSource())
	res, err := a.Analyze(context.Background(), "Ate spaghetti!", rhyme.Options{MaxPhraseLength: 2, MaxResultsPerCategory: 7})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.OriginalLine != "Ate spaghetti!" {
		t.Errorf("OriginalLine = %q", res.OriginalLine)
	}
	if got, want := fragmentTexts(res), []string{"ate", "ate spaghetti", "spaghetti"}; !slices.Equal(got, want) {
		t.Fatalf("fragments = %q, want %q", got, want)
	}

	sp := res.Get("spaghetti")
	if sp.Span != [2]int{1, 2} {
		t.Errorf("span = %v, want [1 2]", sp.Span)
	}
	if got, want := sp.List(rhyme.Perfect), []string{"confetti", "machete"}; !slices.Equal(got, want) {
		t.Errorf("perfect = %q, want %q", got, want)
	}
	for _, w := range sp.List(rhyme.Perfect) {
		if w == "tea" || w == "yeti" {
			t.Errorf("perfect contains %q, which does not match every syllable", w)
		}
	}
	if got, want := sp.List(rhyme.Near), []string{"yeti", "betty", "jetty", "sweaty"}; !slices.Equal(got, want) {
		t.Errorf("near = %q, want %q", got, want)
	}
	if slices.Contains(sp.List(rhyme.Near), "spaghetti") {
		t.Error("fragment text appears among its own rhymes")
	}

	phrase := res.Get("ate spaghetti")
	if phrase.Span != [2]int{0, 2} {
		t.Errorf("phrase span = %v", phrase.Span)
	}
	if !slices.Contains(phrase.List(rhyme.PhrasePerfect), "date confetti") {
		t.Errorf("phrase_perfect = %q, want a generated \"date confetti\"", phrase.List(rhyme.PhrasePerfect))
	}
	for _, c := range []rhyme.Category{rhyme.Perfect, rhyme.Near, rhyme.Slant} {
		if len(phrase.List(c)) != 0 {
			t.Errorf("%v for the phrase = %q, want only phrase candidates", c, phrase.List(c))
		}
	}
}

func TestAnalyze_CookieTear(t *testing.T) {
	t.Parallel()

	src := scenarioSource()
	a := newAnalyzer(t, src)
	res, err := a.Analyze(context.Background(), "cookie tear", rhyme.Options{MaxPhraseLength: 2, MaxResultsPerCategory: 7})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	phrase := res.Get("cookie tear")
	if phrase == nil {
		t.Fatalf("no result for the phrase; fragments = %q", fragmentTexts(res))
	}
	found := slices.Contains(phrase.List(rhyme.PhrasePerfect), "rookie year") ||
		slices.Contains(phrase.List(rhyme.PhraseNear), "rookie year")
	if !found {
		t.Errorf("rookie year missing: phrase_perfect=%q phrase_near=%q",
			phrase.List(rhyme.PhrasePerfect), phrase.List(rhyme.PhraseNear))
	}
	if n := len(phrase.List(rhyme.PhrasePerfect)); n > 7 {
		t.Errorf("phrase_perfect has %d entries, want at most 7", n)
	}

	tear := res.Get("tear")
	if tear == nil || !slices.Contains(tear.List(rhyme.Perfect), "year") || !slices.Contains(tear.List(rhyme.Perfect), "bear") {
		t.Errorf("tear result = %+v", tear)
	}
	if src.callCount("year", rhymesource.RelationPhraseEnding) != 1 {
		t.Error("expected a phrase-ending lookup for the top final-word rhyme")
	}
}

func TestAnalyze_UnknownWordIsSkipped(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, scenarioSource())
	opts := rhyme.Options{MaxPhraseLength: 2, MaxResultsPerCategory: 7}

	alone, err := a.Analyze(context.Background(), "spaghetti", opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	mixed, err := a.Analyze(context.Background(), "skrrt spaghetti", opts)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for _, text := range []string{"skrrt", "skrrt spaghetti"} {
		if mixed.Get(text) != nil {
			t.Errorf("fragment %q present despite an unknown word", text)
		}
	}
	want, _ := json.Marshal(alone.Get("spaghetti"))
	got, _ := json.Marshal(mixed.Get("spaghetti"))
	// Only the span moves with the extra leading word.
	want = []byte(strings.Replace(string(want), `"span":[0,1]`, `"span":[1,2]`, 1))
	if string(got) != string(want) {
		t.Errorf("spaghetti result changed:\n got %s\nwant %s", got, want)
	}
}

func TestAnalyze_ClosedSchema(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, scenarioSource())
	res, err := a.Analyze(context.Background(), "ate spaghetti cookie tear", rhyme.DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded struct {
		Fragments map[string]map[string]json.RawMessage `json:"fragments"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded.Fragments) == 0 {
		t.Fatal("no fragments")
	}
	allowed := []string{"span", "perfect", "near", "slant", "phrase_perfect", "phrase_near", "phrase_slant"}
	for text, fr := range decoded.Fragments {
		if len(fr) != len(allowed) {
			t.Errorf("fragment %q has keys %v", text, keysOf(fr))
		}
		for _, k := range allowed {
			raw, ok := fr[k]
			if !ok {
				t.Errorf("fragment %q is missing %q", text, k)
				continue
			}
			if k != "span" && raw[0] != '[' {
				t.Errorf("fragment %q key %q is %s, want a list", text, k, raw)
			}
		}
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func TestAnalyze_Idempotent(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, scenarioSource())
	line := "cookie tear ate spaghetti"
	first, err := a.Analyze(context.Background(), line, rhyme.DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := a.Analyze(context.Background(), line, rhyme.DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	if string(b1) != string(b2) {
		t.Errorf("repeated analysis differs:\n%s\n%s", b1, b2)
	}
}

func TestAnalyze_DegradesToEmpty(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, &fakeSource{})
	for _, line := range []string{"ate spaghetti", "", "   \t", "?!"} {
		res, err := a.Analyze(context.Background(), line, rhyme.DefaultOptions())
		if err != nil {
			t.Fatalf("Analyze(%q): %v", line, err)
		}
		b, err := json.Marshal(res)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !strings.HasSuffix(string(b), `"fragments":{}}`) {
			t.Errorf("Analyze(%q) = %s, want an empty mapping", line, b)
		}
	}
}

func TestAnalyze_RankingAndDedup(t *testing.T) {
	t.Parallel()

	src := &fakeSource{responses: map[key][]rhymesource.Candidate{
		{"spaghetti", rhymesource.RelationPerfect}: {scored("Confetti", 10), scored("machete", 500)},
		{"spaghetti", rhymesource.RelationNear}:    {scored("confetti", 900), scored("YETI", 300), scored("sweaty", 300), scored("jetty", 300), scored("betty", 300)},
	}}
	a := newAnalyzer(t, src)
	res, err := a.Analyze(context.Background(), "spaghetti", rhyme.Options{MaxPhraseLength: 1, MaxResultsPerCategory: 2})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	sp := res.Get("spaghetti")
	if got, want := sp.List(rhyme.Perfect), []string{"confetti", "machete"}; !slices.Equal(got, want) {
		t.Errorf("perfect = %q, want %q (max score of duplicates kept)", got, want)
	}
	if got, want := sp.List(rhyme.Near), []string{"betty", "jetty"}; !slices.Equal(got, want) {
		t.Errorf("near = %q, want %q (alphabetical among equals, truncated)", got, want)
	}
}

func TestAnalyze_RankingPrefersMoreSyllablesAmongEqualScores(t *testing.T) {
	t.Parallel()

	src := &fakeSource{responses: map[key][]rhymesource.Candidate{
		{"yeti", rhymesource.RelationNear}: {scored("ready", 400), scored("spaghetti", 400), scored("machete", 400)},
	}}
	a := newAnalyzer(t, src)
	res, err := a.Analyze(context.Background(), "yeti", rhyme.Options{MaxPhraseLength: 1, MaxResultsPerCategory: 5})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got, want := res.Get("yeti").List(rhyme.Near), []string{"machete", "spaghetti", "ready"}; !slices.Equal(got, want) {
		t.Errorf("near = %q, want %q (three syllables before two, then alphabetical)", got, want)
	}
}

func TestAnalyze_DuplicateFragmentFirstWins(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, scenarioSource())
	res, err := a.Analyze(context.Background(), "tear it, tear", rhyme.Options{MaxPhraseLength: 1, MaxResultsPerCategory: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := fragmentTexts(res); !slices.Equal(got, []string{"tear"}) {
		t.Fatalf("fragments = %q", got)
	}
	if res.Get("tear").Span != [2]int{0, 1} {
		t.Errorf("span = %v, want the first occurrence", res.Get("tear").Span)
	}
}

func TestAnalyze_InvalidOptions(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, &fakeSource{})
	tests := []struct {
		opts  rhyme.Options
		field string
	}{
		{rhyme.Options{MaxPhraseLength: 0, MaxResultsPerCategory: 7}, "max_phrase_length"},
		{rhyme.Options{MaxPhraseLength: 3, MaxResultsPerCategory: -1}, "max_results_per_category"},
	}
	for _, tt := range tests {
		_, err := a.Analyze(context.Background(), "ate spaghetti", tt.opts)
		if !errors.Is(err, rhyme.ErrInvalidOptions) {
			t.Errorf("Analyze(%+v) err = %v, want ErrInvalidOptions", tt.opts, err)
			continue
		}
		if !strings.Contains(err.Error(), tt.field) {
			t.Errorf("error %q does not name %s", err, tt.field)
		}
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, &fakeSource{block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Analyze(ctx, "ate spaghetti", rhyme.DefaultOptions())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, scenarioSource())
	ctx := context.Background()

	all, err := a.Suggest(ctx, "Spaghetti", rhyme.FilterAll, 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(all.List(rhyme.Perfect)) == 0 || len(all.List(rhyme.Near)) == 0 {
		t.Errorf("Suggest(all) = %+v", all)
	}

	perfect, err := a.Suggest(ctx, "spaghetti", rhyme.FilterPerfect, 1)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got := perfect.List(rhyme.Perfect); !slices.Equal(got, []string{"confetti"}) {
		t.Errorf("perfect = %q", got)
	}
	if len(perfect.List(rhyme.Near)) != 0 {
		t.Errorf("near should be filtered out, got %q", perfect.List(rhyme.Near))
	}

	unknown, err := a.Suggest(ctx, "skrrt", rhyme.FilterAll, 10)
	if err != nil || !unknown.Empty() {
		t.Errorf("Suggest(unknown) = %+v, %v", unknown, err)
	}

	if _, err := a.Suggest(ctx, "spaghetti", rhyme.FilterAll, 0); !errors.Is(err, rhyme.ErrInvalidOptions) {
		t.Errorf("max 0 err = %v", err)
	}
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]rhyme.Filter{"": rhyme.FilterAll, "all": rhyme.FilterAll, "Perfect": rhyme.FilterPerfect, "near": rhyme.FilterNear, "slant": rhyme.FilterSlant} {
		got, err := rhyme.ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := rhyme.ParseFilter("rhymey"); !errors.Is(err, rhyme.ErrInvalidOptions) {
		t.Errorf("ParseFilter(rhymey) err = %v", err)
	}
}
