package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/rhymeslikedimes/internal/health"
	"github.com/MrWong99/rhymeslikedimes/internal/lexicon"
	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
	"github.com/MrWong99/rhymeslikedimes/internal/source"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/mock"
)

// stubAnalyzer records the options it was called with and answers from
// the configured functions.
type stubAnalyzer struct {
	mu          sync.Mutex
	opts        []rhyme.Options
	suggestions []suggestCall

	analyze func(ctx context.Context, line string, opts rhyme.Options) (*rhyme.AnalysisResult, error)
	suggest func(ctx context.Context, word string, filter rhyme.Filter, maxResults int) (*rhyme.FragmentResult, error)
}

type suggestCall struct {
	word   string
	filter rhyme.Filter
	max    int
}

func (a *stubAnalyzer) Analyze(ctx context.Context, line string, opts rhyme.Options) (*rhyme.AnalysisResult, error) {
	a.mu.Lock()
	a.opts = append(a.opts, opts)
	a.mu.Unlock()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if a.analyze != nil {
		return a.analyze(ctx, line, opts)
	}
	return echoResult(line), nil
}

func (a *stubAnalyzer) Suggest(ctx context.Context, word string, filter rhyme.Filter, maxResults int) (*rhyme.FragmentResult, error) {
	a.mu.Lock()
	a.suggestions = append(a.suggestions, suggestCall{word, filter, maxResults})
	a.mu.Unlock()
	if maxResults <= 0 {
		return nil, rhyme.ErrInvalidOptions
	}
	if a.suggest != nil {
		return a.suggest(ctx, word, filter, maxResults)
	}
	fr := &rhyme.FragmentResult{Text: word, Span: [2]int{0, 1}}
	fr.Set(rhyme.Perfect, []string{word + "-rhyme"})
	return fr, nil
}

func (a *stubAnalyzer) lastOpts() rhyme.Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts[len(a.opts)-1]
}

// echoResult returns a one-fragment result whose perfect list names line.
func echoResult(line string) *rhyme.AnalysisResult {
	fr := &rhyme.FragmentResult{Text: "echo", Span: [2]int{0, 1}}
	fr.Set(rhyme.Perfect, []string{line})
	return &rhyme.AnalysisResult{OriginalLine: line, Fragments: []*rhyme.FragmentResult{fr}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInstruments(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, a Analyzer, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Analyzer:       a,
		AllowedOrigins: []string{"localhost:*"},
		Version:        "test",
		Instrument:     testInstruments(t),
		Logger:         quietLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyze_RealAnalyzerClosedSchema(t *testing.T) {
	t.Parallel()

	lex, err := lexicon.Default()
	if err != nil {
		t.Fatalf("lexicon.Default: %v", err)
	}
	provider := &mock.Provider{Responses: map[mock.Key][]rhymesource.Candidate{
		{Text: "spaghetti", Relation: rhymesource.RelationPerfect}: {
			{Text: "confetti", Score: 900, HasScore: true},
		},
	}}
	instr := testInstruments(t)
	client := source.New(provider, source.WithMetrics(instr), source.WithLogger(quietLogger()))
	analyzer := rhyme.New(lex, client, rhyme.Config{Metrics: instr, Logger: quietLogger()})
	h := newTestServer(t, analyzer).Handler()

	rec := do(t, h, http.MethodPost, "/api/analyze", `{"bar":"ate spaghetti"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var body struct {
		Fragments   map[string]map[string]json.RawMessage `json:"fragments"`
		OriginalBar string                                `json:"original_bar"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OriginalBar != "ate spaghetti" {
		t.Errorf("original_bar = %q", body.OriginalBar)
	}
	frag, ok := body.Fragments["spaghetti"]
	if !ok {
		t.Fatalf("fragments = %v, want a spaghetti entry", body.Fragments)
	}
	for _, key := range []string{"span", "perfect", "near", "slant", "phrase_perfect", "phrase_near", "phrase_slant"} {
		if _, ok := frag[key]; !ok {
			t.Errorf("spaghetti is missing %q", key)
		}
	}
	var perfect []string
	if err := json.Unmarshal(frag["perfect"], &perfect); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(perfect, []string{"confetti"}) {
		t.Errorf("perfect = %v, want [confetti]", perfect)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	t.Parallel()

	errBackend := errors.New("backend exploded")
	a := &stubAnalyzer{analyze: func(_ context.Context, line string, _ rhyme.Options) (*rhyme.AnalysisResult, error) {
		if line == "explode" {
			return nil, errBackend
		}
		return echoResult(line), nil
	}}
	h := newTestServer(t, a).Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed json", `{"bar":`, http.StatusBadRequest},
		{"unknown field", `{"bar":"x","colour":"red"}`, http.StatusBadRequest},
		{"blank bar", `{"bar":"   "}`, http.StatusBadRequest},
		{"zero ngram", `{"bar":"cat","ngram_max":0}`, http.StatusBadRequest},
		{"negative results", `{"bar":"cat","max_results":-1}`, http.StatusBadRequest},
		{"backend failure", `{"bar":"explode"}`, http.StatusInternalServerError},
		{"ok", `{"bar":"cat"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/analyze", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "exploded") {
				t.Error("internal error details leaked to the client")
			}
		})
	}
}

func TestAnalyze_DefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	a := &stubAnalyzer{}
	h := newTestServer(t, a, func(c *Config) {
		c.Defaults = func() rhyme.Options { return rhyme.Options{MaxPhraseLength: 2, MaxResultsPerCategory: 4} }
	}).Handler()

	do(t, h, http.MethodPost, "/api/analyze", `{"bar":"cat"}`)
	if got := a.lastOpts(); got != (rhyme.Options{MaxPhraseLength: 2, MaxResultsPerCategory: 4}) {
		t.Errorf("defaults: opts = %+v", got)
	}

	do(t, h, http.MethodPost, "/api/analyze", `{"bar":"cat","max_results":3,"ngram_max":1}`)
	if got := a.lastOpts(); got != (rhyme.Options{MaxPhraseLength: 1, MaxResultsPerCategory: 3}) {
		t.Errorf("overrides: opts = %+v", got)
	}
}

func TestSuggestions(t *testing.T) {
	t.Parallel()

	a := &stubAnalyzer{}
	h := newTestServer(t, a).Handler()

	rec := do(t, h, http.MethodGet, "/api/suggestions/tear?rhyme_type=perfect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Word        string         `json:"word"`
		RhymeType   string         `json:"rhyme_type"`
		Suggestions map[string]any `json:"suggestions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Word != "tear" || body.RhymeType != "perfect" {
		t.Errorf("word/rhyme_type = %q/%q", body.Word, body.RhymeType)
	}
	if _, ok := body.Suggestions["phrase_slant"]; !ok {
		t.Errorf("suggestions missing phrase_slant: %v", body.Suggestions)
	}

	rec = do(t, h, http.MethodPost, "/api/suggestions/cookie", `{"rhyme_type":"near","max_results":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body)
	}

	a.mu.Lock()
	calls := slices.Clone(a.suggestions)
	a.mu.Unlock()
	want := []suggestCall{
		{"tear", rhyme.FilterPerfect, rhyme.DefaultSuggestResults},
		{"cookie", rhyme.FilterNear, 3},
	}
	if !slices.Equal(calls, want) {
		t.Errorf("Suggest calls = %+v, want %+v", calls, want)
	}

	for _, target := range []string{
		"/api/suggestions/tear?rhyme_type=assonant",
		"/api/suggestions/tear?max_results=lots",
		"/api/suggestions/tear?max_results=-2",
	} {
		rec := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &stubAnalyzer{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"bar":"cat"}`))
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	hh := health.New(health.LexiconChecker(func() int { return 0 }))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "# metrics\n")
	})
	h := newTestServer(t, &stubAnalyzer{}, func(c *Config) {
		c.Health = hh
		c.Metrics = metrics
	}).Handler()

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/analyze", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, "")
		if rec.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}

	rec := do(t, h, http.MethodGet, "/", "")
	if !strings.Contains(rec.Body.String(), `"version":"test"`) {
		t.Errorf("index body = %s", rec.Body)
	}
}
