// Package source answers "what does the rhyme source say about this text?"
// for the analyzer. It puts a response cache, request collapsing, a circuit
// breaker and an offline fallback in front of the configured
// [rhymesource.Provider], and turns every failure into an explicit
// [Result.Status] instead of an error.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/resilience"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultCacheSize    = 4096
	DefaultCacheTTL     = time.Hour
	DefaultStoreTimeout = 2 * time.Second
)

// Status describes how a lookup was answered.
type Status int

const (
	// StatusOK means the primary source answered (possibly from cache).
	StatusOK Status = iota

	// StatusFallback means the primary failed and the offline generator
	// answered instead.
	StatusFallback

	// StatusUnavailable means nobody could answer. Candidates are empty.
	StatusUnavailable
)

// String returns the status name used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFallback:
		return "fallback"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of one [Client.Lookup].
type Result struct {
	Candidates []rhymesource.Candidate
	Status     Status

	// Provider names the provider that answered. Empty when unavailable or
	// served from a cache.
	Provider string
}

// Store is a persistent second-tier response cache.
type Store interface {
	Get(ctx context.Context, text string, rel rhymesource.Relation) ([]rhymesource.Candidate, bool, error)
	Put(ctx context.Context, text string, rel rhymesource.Relation, cands []rhymesource.Candidate) error
}

// Option configures a [Client].
type Option func(*Client)

// WithFallback registers an offline provider that answers while the primary
// is failing.
func WithFallback(p rhymesource.Provider) Option {
	return func(c *Client) { c.fallbacks = append(c.fallbacks, p) }
}

// WithCache sets the in-memory cache size and entry TTL.
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithStore adds a persistent cache consulted after the in-memory one.
func WithStore(s Store) Option {
	return func(c *Client) { c.store = s }
}

// WithStoreTimeout bounds every persistent cache read and write.
// Default: [DefaultStoreTimeout].
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Client) { c.storeTimeout = d }
}

// WithCircuitBreaker overrides the breaker settings used for every provider.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breaker = cfg }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

type cacheKey struct {
	text string
	rel  rhymesource.Relation
}

func (k cacheKey) String() string { return k.rel.String() + "\x00" + k.text }

// Client is the rhyme source client used by the analyzer. It never returns an
// error: failures are reported through [Result.Status]. Safe for concurrent
// use.
type Client struct {
	fallbacks    []rhymesource.Provider
	cacheSize    int
	cacheTTL     time.Duration
	breaker      resilience.CircuitBreakerConfig
	store        Store
	storeTimeout time.Duration
	metrics      *observe.Metrics
	log          *slog.Logger

	group  *resilience.FallbackGroup[rhymesource.Provider]
	cache  *expirable.LRU[cacheKey, []rhymesource.Candidate]
	flight singleflight.Group
}

// New creates a Client in front of primary.
func New(primary rhymesource.Provider, opts ...Option) *Client {
	c := &Client{
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "source")
	if c.cacheSize <= 0 {
		c.cacheSize = DefaultCacheSize
	}
	if c.storeTimeout <= 0 {
		c.storeTimeout = DefaultStoreTimeout
	}

	cb := c.breaker
	cb.Logger = c.log
	cb.Ignore = isAbandoned
	c.group = resilience.NewFallbackGroup(primary, primary.Name(), resilience.FallbackConfig{
		CircuitBreaker: cb,
		Logger:         c.log,
	})
	for _, fb := range c.fallbacks {
		c.group.AddFallback(fb.Name(), fb)
	}
	c.cache = expirable.NewLRU[cacheKey, []rhymesource.Candidate](c.cacheSize, nil, c.cacheTTL)
	return c
}

// PrimaryName returns the name of the primary provider.
func (c *Client) PrimaryName() string { return c.group.PrimaryName() }

// Status reports the breaker state of every provider, primary first.
func (c *Client) Status() []resilience.EntryStatus { return c.group.Status() }

// Lookup returns the candidates related to text by rel. text is normalised
// (trimmed, lower-cased, inner whitespace collapsed) before it is used as the
// cache key and sent to a provider.
//
// Identical concurrent lookups share one provider call. The shared call is
// detached from ctx, so a caller that gives up does not abort it for the
// others; that caller simply receives [StatusUnavailable].
func (c *Client) Lookup(ctx context.Context, text string, rel rhymesource.Relation) Result {
	key := cacheKey{text: Normalize(text), rel: rel}
	if key.text == "" {
		return Result{Status: StatusOK}
	}

	if cands, ok := c.cache.Get(key); ok {
		c.metrics.RecordSourceRequest(ctx, rel.String(), "cached")
		return Result{Candidates: slices.Clone(cands), Status: StatusOK}
	}

	ch := c.flight.DoChan(key.String(), func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), key), nil
	})
	select {
	case <-ctx.Done():
		return Result{Status: StatusUnavailable}
	case res := <-ch:
		r := res.Val.(Result)
		if res.Shared {
			r.Candidates = slices.Clone(r.Candidates)
		}
		return r
	}
}

func (c *Client) fetch(ctx context.Context, key cacheKey) Result {
	ctx, span := observe.StartLookupSpan(ctx, key.text, key.rel.String())
	defer span.End()

	if cands, ok := c.fromStore(ctx, key); ok {
		c.cache.Add(key, cands)
		c.metrics.RecordSourceRequest(ctx, key.rel.String(), "cached")
		span.SetAttributes(observe.AttrSourceStatus.String("stored"))
		return Result{Candidates: slices.Clone(cands), Status: StatusOK}
	}

	cands, served, err := resilience.ExecuteWithResult(ctx, c.group,
		func(ctx context.Context, p rhymesource.Provider) ([]rhymesource.Candidate, error) {
			start := time.Now()
			defer func() {
				c.metrics.RecordSourceDuration(ctx, p.Name(), key.rel.String(), time.Since(start))
			}()
			cands, err := p.Lookup(ctx, key.text, key.rel)
			if err != nil && ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errAbandoned, err)
			}
			return cands, err
		})

	var res Result
	switch {
	case err != nil:
		observe.Logger(ctx, "source").Warn("rhyme source unavailable",
			"text", key.text,
			"relation", key.rel.String(),
			"error", err,
		)
		res = Result{Status: StatusUnavailable}
	case served == c.group.PrimaryName():
		c.cache.Add(key, slices.Clone(cands))
		c.toStore(ctx, key, cands)
		res = Result{Candidates: cands, Status: StatusOK, Provider: served}
	default:
		res = Result{Candidates: cands, Status: StatusFallback, Provider: served}
	}

	c.metrics.RecordSourceRequest(ctx, key.rel.String(), res.Status.String())
	span.SetAttributes(
		observe.AttrSourceStatus.String(res.Status.String()),
		observe.AttrCandidates.Int(len(res.Candidates)),
	)
	return res
}

func (c *Client) fromStore(ctx context.Context, key cacheKey) ([]rhymesource.Candidate, bool) {
	if c.store == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	cands, ok, err := c.store.Get(ctx, key.text, key.rel)
	if err != nil {
		c.log.WarnContext(ctx, "persistent cache read failed", "text", key.text, "relation", key.rel.String(), "error", err)
		return nil, false
	}
	return cands, ok
}

func (c *Client) toStore(ctx context.Context, key cacheKey, cands []rhymesource.Candidate) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	if err := c.store.Put(ctx, key.text, key.rel, cands); err != nil {
		c.log.WarnContext(ctx, "persistent cache write failed", "text", key.text, "relation", key.rel.String(), "error", err)
	}
}

// Normalize lower-cases s, trims it and collapses inner whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// errAbandoned marks a lookup that failed because its own context ended.
// Provider timeouts are not abandoned lookups and count against the breaker.
var errAbandoned = errors.New("lookup abandoned")

func isAbandoned(err error) bool { return errors.Is(err, errAbandoned) }
