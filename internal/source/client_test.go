package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/resilience"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/datamuse"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/mock"
)

var errUpstream = errors.New("upstream 503")

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestClient(t *testing.T, primary rhymesource.Provider, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithMetrics(testMetrics(t)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return New(primary, opts...)
}

func spaghettiResponses() map[mock.Key][]rhymesource.Candidate {
	return map[mock.Key][]rhymesource.Candidate{
		{Text: "spaghetti", Relation: rhymesource.RelationPerfect}: {
			{Text: "confetti", Score: 812, HasScore: true},
			{Text: "yeti", Score: 640, HasScore: true},
		},
	}
}

func TestLookup_PrimaryResultIsCached(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{NameValue: "datamuse", Responses: spaghettiResponses()}
	c := newTestClient(t, p)
	ctx := context.Background()

	first := c.Lookup(ctx, "Spaghetti", rhymesource.RelationPerfect)
	if first.Status != StatusOK || first.Provider != "datamuse" {
		t.Fatalf("first lookup = %+v, want ok from datamuse", first)
	}
	if len(first.Candidates) != 2 || first.Candidates[0].Text != "confetti" {
		t.Fatalf("candidates = %+v", first.Candidates)
	}

	second := c.Lookup(ctx, "  spaghetti ", rhymesource.RelationPerfect)
	if second.Status != StatusOK || len(second.Candidates) != 2 {
		t.Fatalf("second lookup = %+v", second)
	}
	if n := p.CallCount("spaghetti", rhymesource.RelationPerfect); n != 1 {
		t.Errorf("provider calls = %d, want 1 (second lookup should hit the cache)", n)
	}

	// Relations are cached independently.
	c.Lookup(ctx, "spaghetti", rhymesource.RelationNear)
	if n := p.CallCount("spaghetti", rhymesource.RelationNear); n != 1 {
		t.Errorf("near calls = %d, want 1", n)
	}
}

func TestLookup_FallbackIsNotCached(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{NameValue: "datamuse", LookupErr: errUpstream}
	offline := &mock.Provider{
		NameValue: "offline",
		Responses: map[mock.Key][]rhymesource.Candidate{
			{Text: "tear", Relation: rhymesource.RelationPerfect}: {{Text: "year", Origin: rhymesource.OriginFallback}},
		},
	}
	c := newTestClient(t, primary, WithFallback(offline))
	ctx := context.Background()

	res := c.Lookup(ctx, "tear", rhymesource.RelationPerfect)
	if res.Status != StatusFallback || res.Provider != "offline" {
		t.Fatalf("lookup = %+v, want fallback from offline", res)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Origin != rhymesource.OriginFallback || res.Candidates[0].HasScore {
		t.Fatalf("candidates = %+v", res.Candidates)
	}

	c.Lookup(ctx, "tear", rhymesource.RelationPerfect)
	if n := primary.CallCount("tear", rhymesource.RelationPerfect); n != 2 {
		t.Errorf("primary calls = %d, want 2 (fallback answers must not be cached)", n)
	}
}

func TestLookup_UnavailableWithoutFallback(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &mock.Provider{LookupErr: errUpstream})

	res := c.Lookup(context.Background(), "tear", rhymesource.RelationNear)
	if res.Status != StatusUnavailable {
		t.Fatalf("status = %v, want unavailable", res.Status)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("candidates = %+v, want none", res.Candidates)
	}
}

func TestLookup_OpenBreakerGoesStraightToFallback(t *testing.T) {
	t.Parallel()

	primary := &mock.Provider{NameValue: "datamuse", LookupErr: errUpstream}
	offline := &mock.Provider{NameValue: "offline"}
	c := newTestClient(t, primary,
		WithFallback(offline),
		WithCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}),
	)
	ctx := context.Background()

	for _, w := range []string{"one", "two", "three", "four"} {
		if res := c.Lookup(ctx, w, rhymesource.RelationPerfect); res.Status != StatusFallback {
			t.Fatalf("lookup %q status = %v, want fallback", w, res.Status)
		}
	}
	if n := len(primary.Calls()); n != 2 {
		t.Errorf("primary calls = %d, want 2 (breaker should open)", n)
	}
	if st := c.Status(); st[0].Name != "datamuse" || st[0].State != resilience.StateOpen {
		t.Errorf("Status() = %+v", st)
	}
}

func TestLookup_EmptyText(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	c := newTestClient(t, p)
	if res := c.Lookup(context.Background(), "   ", rhymesource.RelationPerfect); res.Status != StatusOK || len(res.Candidates) != 0 {
		t.Fatalf("lookup = %+v", res)
	}
	if len(p.Calls()) != 0 {
		t.Error("provider should not be called for empty text")
	}
}

func TestLookup_ConcurrentCallsCollapse(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	p := &mock.Provider{
		LookupFunc: func(context.Context, string, rhymesource.Relation) ([]rhymesource.Candidate, error) {
			calls.Add(1)
			<-release
			return []rhymesource.Candidate{{Text: "year"}}, nil
		},
	}
	c := newTestClient(t, p)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Lookup(context.Background(), "tear", rhymesource.RelationPerfect)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
	for i, r := range results {
		if r.Status != StatusOK || len(r.Candidates) != 1 {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestLookup_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	done := make(chan struct{})
	p := &mock.Provider{
		LookupFunc: func(ctx context.Context, _ string, _ rhymesource.Relation) ([]rhymesource.Candidate, error) {
			defer close(done)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return []rhymesource.Candidate{{Text: "year"}}, nil
		},
	}
	c := newTestClient(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Result, 1)
	go func() { got <- c.Lookup(ctx, "tear", rhymesource.RelationPerfect) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case res := <-got:
		if res.Status != StatusUnavailable {
			t.Fatalf("cancelled lookup status = %v, want unavailable", res.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled lookup did not return")
	}

	close(release)
	<-done

	// The detached fetch completes and populates the cache.
	deadline := time.Now().Add(time.Second)
	for {
		res := c.Lookup(context.Background(), "tear", rhymesource.RelationPerfect)
		if res.Status == StatusOK && len(res.Candidates) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("lookup after release = %+v", res)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu     sync.Mutex
	rows   map[cacheKey][]rhymesource.Candidate
	getErr error
	puts   int

	// hang makes Get and Put block until their context ends.
	hang bool
}

func (s *fakeStore) Get(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, bool, error) {
	if s.hang {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	c, ok := s.rows[cacheKey{text: text, rel: rel}]
	return c, ok, nil
}

func (s *fakeStore) Put(ctx context.Context, text string, rel rhymesource.Relation, cands []rhymesource.Candidate) error {
	if s.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = make(map[cacheKey][]rhymesource.Candidate)
	}
	s.rows[cacheKey{text: text, rel: rel}] = cands
	s.puts++
	return nil
}

func TestLookup_Store(t *testing.T) {
	t.Parallel()

	t.Run("hit skips provider", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{rows: map[cacheKey][]rhymesource.Candidate{
			{text: "spaghetti", rel: rhymesource.RelationPerfect}: {{Text: "confetti"}},
		}}
		p := &mock.Provider{}
		c := newTestClient(t, p, WithStore(store))

		res := c.Lookup(context.Background(), "spaghetti", rhymesource.RelationPerfect)
		if res.Status != StatusOK || len(res.Candidates) != 1 || res.Candidates[0].Text != "confetti" {
			t.Fatalf("lookup = %+v", res)
		}
		if len(p.Calls()) != 0 {
			t.Error("provider called despite a store hit")
		}
	})

	t.Run("primary success is written", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{}
		c := newTestClient(t, &mock.Provider{Responses: spaghettiResponses()}, WithStore(store))

		c.Lookup(context.Background(), "spaghetti", rhymesource.RelationPerfect)
		if store.puts != 1 || len(store.rows[cacheKey{text: "spaghetti", rel: rhymesource.RelationPerfect}]) != 2 {
			t.Fatalf("store = %+v", store.rows)
		}
	})

	t.Run("read error falls through to provider", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{getErr: errors.New("connection refused")}
		p := &mock.Provider{Responses: spaghettiResponses()}
		c := newTestClient(t, p, WithStore(store))

		res := c.Lookup(context.Background(), "spaghetti", rhymesource.RelationPerfect)
		if res.Status != StatusOK || len(res.Candidates) != 2 {
			t.Fatalf("lookup = %+v", res)
		}
	})

	t.Run("hung store is bounded by the store timeout", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{hang: true}
		p := &mock.Provider{Responses: spaghettiResponses()}
		c := newTestClient(t, p, WithStore(store), WithStoreTimeout(30*time.Millisecond))

		got := make(chan Result, 1)
		go func() { got <- c.Lookup(context.Background(), "spaghetti", rhymesource.RelationPerfect) }()
		select {
		case res := <-got:
			if res.Status != StatusOK || len(res.Candidates) != 2 {
				t.Fatalf("lookup = %+v", res)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("lookup blocked on a hung store")
		}
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Cookie":           "cookie",
		"  rookie   YEAR ": "rookie year",
		"":                 "",
		"\t\n":             "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup_SourceTimeoutsOpenBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	primary := datamuse.New(
		datamuse.WithBaseURL(srv.URL),
		datamuse.WithTimeout(200*time.Millisecond),
		datamuse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	c := newTestClient(t, primary, WithCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	}))

	for _, word := range []string{"tear", "time"} {
		if res := c.Lookup(context.Background(), word, rhymesource.RelationPerfect); res.Status != StatusUnavailable {
			t.Fatalf("Lookup(%q) status = %v, want unavailable", word, res.Status)
		}
	}
	if st := c.Status(); st[0].State != resilience.StateOpen {
		t.Fatalf("breaker after timeouts = %v, want open", st[0].State)
	}

	start := time.Now()
	if res := c.Lookup(context.Background(), "rhyme", rhymesource.RelationPerfect); res.Status != StatusUnavailable {
		t.Errorf("status with open breaker = %v, want unavailable", res.Status)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("lookup with open breaker took %v, want no source call", d)
	}
}
