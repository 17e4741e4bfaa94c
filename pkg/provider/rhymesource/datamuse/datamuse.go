// Package datamuse provides a rhyme source backed by the Datamuse API.
//
// Datamuse (https://www.datamuse.com/api/) answers word-finding queries over
// HTTP. This package maps [rhymesource.Relation] values onto its query
// parameters:
//
//	perfect        rel_rhy=<text>
//	near           rel_nry=<text>
//	sound_alike    sl=<text>
//	phrase_ending  sp=* <text>
//
// Each call is bounded by a per-request timeout (default 2s). Network errors
// and 5xx responses are retried once, immediately; anything else is returned
// as an error for the caller to degrade on.
//
// Example usage:
//
//	p := datamuse.New(datamuse.WithMaxResults(25))
//	cands, err := p.Lookup(ctx, "spaghetti", rhymesource.RelationPerfect)
package datamuse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

const (
	// DefaultBaseURL is the public Datamuse endpoint.
	DefaultBaseURL = "https://api.datamuse.com"

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 2 * time.Second

	// DefaultMaxResults is the number of words requested per query.
	DefaultMaxResults = 50

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// Ensure Provider implements the rhymesource.Provider interface at compile time.
var _ rhymesource.Provider = (*Provider)(nil)

// Provider implements rhymesource.Provider using the Datamuse /words endpoint.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
	log        *slog.Logger
}

// config holds optional configuration collected from functional options.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxResults int
	httpClient *http.Client
	logger     *slog.Logger
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL (useful for tests and proxies).
// A trailing slash is stripped.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithTimeout sets the per-attempt HTTP timeout. Default: 2s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxResults sets the "max" query parameter. Default: 50.
func WithMaxResults(n int) Option {
	return func(c *config) {
		c.maxResults = n
	}
}

// WithHTTPClient replaces the HTTP client. Its Timeout is overwritten by the
// configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New constructs a Datamuse Provider.
func New(opts ...Option) *Provider {
	cfg := config{
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		maxResults: DefaultMaxResults,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.baseURL == "" {
		cfg.baseURL = DefaultBaseURL
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultTimeout
	}
	if cfg.maxResults <= 0 {
		cfg.maxResults = DefaultMaxResults
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	cfg.httpClient.Timeout = cfg.timeout
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Provider{
		baseURL:    strings.TrimRight(cfg.baseURL, "/"),
		maxResults: cfg.maxResults,
		httpClient: cfg.httpClient,
		log:        cfg.logger.With("provider", "datamuse"),
	}
}

// Name implements rhymesource.Provider.
func (p *Provider) Name() string { return "datamuse" }

// apiWord is one element of the /words response array.
type apiWord struct {
	Word         string `json:"word"`
	Score        *int   `json:"score"`
	NumSyllables int    `json:"numSyllables"`
}

// Lookup implements rhymesource.Provider.
func (p *Provider) Lookup(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, error) {
	q := url.Values{}
	switch rel {
	case rhymesource.RelationPerfect:
		q.Set("rel_rhy", text)
	case rhymesource.RelationNear:
		q.Set("rel_nry", text)
	case rhymesource.RelationSoundAlike:
		q.Set("sl", text)
	case rhymesource.RelationPhraseEnding:
		q.Set("sp", "* "+text)
	default:
		return nil, fmt.Errorf("datamuse: %w: %v", rhymesource.ErrUnsupportedRelation, rel)
	}
	q.Set("max", strconv.Itoa(p.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/words?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("datamuse: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.doWithRetry(ctx, req, text, rel)
	if err != nil {
		return nil, fmt.Errorf("datamuse: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("datamuse: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("datamuse: read body: %w", err)
	}

	var words []apiWord
	if err := json.Unmarshal(body, &words); err != nil {
		return nil, fmt.Errorf("datamuse: decode json: %w", err)
	}

	out := make([]rhymesource.Candidate, 0, len(words))
	for _, w := range words {
		t := strings.TrimSpace(w.Word)
		if t == "" {
			continue
		}
		c := rhymesource.Candidate{
			Text:     t,
			Relation: rel,
			Origin:   rhymesource.OriginSource,
		}
		if w.Score != nil {
			c.Score = *w.Score
			c.HasScore = true
		}
		out = append(out, c)
	}

	p.log.DebugContext(ctx, "datamuse response",
		slog.String("text", text),
		slog.String("relation", rel.String()),
		slog.Int("candidates", len(out)),
	)
	return out, nil
}

// doWithRetry executes req and retries once, immediately, on a network
// error or 5xx status.
func (p *Provider) doWithRetry(ctx context.Context, req *http.Request, text string, rel rhymesource.Relation) (*http.Response, error) {
	resp, err := p.httpClient.Do(req)

	shouldRetry := err != nil || (resp != nil && resp.StatusCode >= 500)
	if !shouldRetry {
		return resp, err
	}

	// Don't retry if the caller has given up.
	if ctx.Err() != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, ctx.Err()
	}

	reason := "network error"
	if err == nil {
		reason = fmt.Sprintf("status %d", resp.StatusCode)
	}
	p.log.WarnContext(ctx, "datamuse retry",
		slog.String("text", text),
		slog.String("relation", rel.String()),
		slog.String("reason", reason),
	)

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return p.httpClient.Do(req)
}
