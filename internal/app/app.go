// Package app wires the rhyme engine subsystems into a running service.
//
// The App struct owns the full lifecycle: New loads the lexicon, builds the
// rhyme source client and the analyzer and assembles the HTTP surfaces, Run
// serves until its context ends, and Shutdown tears everything down in
// reverse order.
//
// For testing, inject doubles via functional options (WithProvider,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/rhymeslikedimes/internal/config"
	"github.com/MrWong99/rhymeslikedimes/internal/health"
	"github.com/MrWong99/rhymeslikedimes/internal/lexicon"
	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
	"github.com/MrWong99/rhymeslikedimes/internal/server"
	"github.com/MrWong99/rhymeslikedimes/internal/source"
	"github.com/MrWong99/rhymeslikedimes/internal/source/pgcache"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/offline"
)

// PruneInterval is how often expired rows are removed from the persistent
// response cache.
const PruneInterval = time.Hour

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes. It implements [server.Analyzer] by
// delegating to the current analyzer, which is swapped on config reloads.
type App struct {
	cfg *config.Config

	log            *slog.Logger
	level          *slog.LevelVar
	registry       *config.Registry
	primary        rhymesource.Provider
	metrics        *observe.Metrics
	metricsHandler http.Handler
	version        string
	configPath     string

	// Subsystems, initialised in New and torn down in Shutdown.
	lex      *lexicon.Lexicon
	client   *source.Client
	store    *pgcache.Cache
	server   *server.Server
	analyzer atomic.Pointer[rhyme.Analyzer]
	defaults atomic.Pointer[rhyme.Options]

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry replaces the built-in source registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithProvider injects the primary rhyme source instead of creating one
// from the registry.
func WithProvider(p rhymesource.Provider) Option {
	return func(a *App) { a.primary = p }
}

// WithMetrics sets the instruments shared by all subsystems.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets config reloads change the level of the logger's
// handler. The variable is set from the config in New.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithVersion sets the version reported by the index route and MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithConfigPath enables hot reload: Run watches path and applies changes
// with [App.ApplyConfig].
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. cfg must already be
// validated. On error, everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
	}
	a.level.Set(cfg.Server.LogLevel.Slog())
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinSources(a.registry)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Lexicon ───────────────────────────────────────────────────────
	lex, err := lexicon.Load(lexicon.Config{
		DictionaryPath: cfg.Lexicon.DictionaryPath,
		OverridesPath:  cfg.Lexicon.OverridesPath,
		MemoSize:       cfg.Lexicon.MemoSize,
	}, a.log.With("component", "lexicon"))
	if err != nil {
		return nil, fmt.Errorf("app: init lexicon: %w", err)
	}
	a.lex = lex

	// ── 2. Rhyme source ──────────────────────────────────────────────────
	if err := a.initSource(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return nil, fmt.Errorf("app: init source: %w", err)
	}

	// ── 3. Analyzer ──────────────────────────────────────────────────────
	a.analyzer.Store(a.newAnalyzer(cfg))
	defaults := cfg.Analysis.Options()
	a.defaults.Store(&defaults)

	// ── 4. Surfaces ──────────────────────────────────────────────────────
	a.server = server.New(server.Config{
		Analyzer:       a,
		Defaults:       a.Defaults,
		Health:         health.New(a.checkers()...),
		Metrics:        a.metricsHandler,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WSMessageRate:  cfg.Server.WSMessageRate,
		WSMessageBurst: cfg.Server.WSMessageBurst,
		Version:        a.version,
		Instrument:     a.metrics,
		Logger:         a.log,
	})

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSource builds the primary provider, the optional offline fallback and
// the persistent cache, then the client in front of them.
func (a *App) initSource(ctx context.Context) error {
	sc := a.cfg.Source
	log := a.log.With("component", "source")

	if a.primary == nil {
		p, err := a.registry.CreateSource(sc.Name, sc, config.SourceDeps{Vocabulary: a.lex, Logger: log})
		if err != nil {
			return err
		}
		a.primary = p
	}

	opts := []source.Option{
		source.WithCache(sc.CacheSize, sc.CacheTTL),
		source.WithCircuitBreaker(sc.CircuitBreaker.Resilience()),
		source.WithMetrics(a.metrics),
		source.WithLogger(log),
	}
	if sc.Fallback == config.FallbackOffline && a.primary.Name() != "offline" {
		opts = append(opts, source.WithFallback(offline.New(a.lex, offline.WithMaxResults(sc.MaxResults))))
	}

	if sc.PostgresDSN != "" {
		store, err := pgcache.Open(ctx, sc.PostgresDSN, sc.PersistentTTL)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		opts = append(opts, source.WithStore(store), source.WithStoreTimeout(sc.Timeout))
		log.Info("persistent response cache enabled", "ttl", sc.PersistentTTL)
	}

	a.client = source.New(a.primary, opts...)
	log.Info("rhyme source ready", "primary", a.client.PrimaryName(), "fallback", sc.Fallback)
	if a.cfg.Lexicon.DictionaryPath == "" && a.primary.Name() != "offline" {
		log.Warn("remote rhyme source with the embedded starter dictionary drops most candidates, set lexicon.dictionary_path to a full cmudict file",
			"primary", a.primary.Name(),
			"dictionary_words", a.lex.Len(),
		)
	}
	return nil
}

// newAnalyzer builds an analyzer from the analysis and classifier sections.
func (a *App) newAnalyzer(cfg *config.Config) *rhyme.Analyzer {
	ac := cfg.AnalyzerConfig()
	ac.Metrics = a.metrics
	ac.Logger = a.log
	return rhyme.New(a.lex, a.client, ac)
}

// checkers returns the readiness probes for the wired subsystems.
func (a *App) checkers() []health.Checker {
	checkers := []health.Checker{
		health.LexiconChecker(a.lex.Len),
		health.SourceChecker(a.client.Status),
	}
	if a.store != nil {
		checkers = append(checkers, health.Checker{Name: "postgres", Check: a.store.Ping})
	}
	return checkers
}

// ─── Analyzer ────────────────────────────────────────────────────────────────

// Analyze runs the current analyzer.
func (a *App) Analyze(ctx context.Context, line string, opts rhyme.Options) (*rhyme.AnalysisResult, error) {
	return a.analyzer.Load().Analyze(ctx, line, opts)
}

// Suggest runs the current analyzer's suggestion lookup.
func (a *App) Suggest(ctx context.Context, word string, filter rhyme.Filter, maxResults int) (*rhyme.FragmentResult, error) {
	return a.analyzer.Load().Suggest(ctx, word, filter, maxResults)
}

// Defaults returns the per-request options currently configured.
func (a *App) Defaults() rhyme.Options {
	return *a.defaults.Load()
}

// Handler returns the HTTP handler serving every surface.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and next
// and returns the diff. Sections that need a restart are only logged.
func (a *App) ApplyConfig(old, next *config.Config) config.ConfigDiff {
	d := config.Diff(old, next)
	if d.Empty() {
		return d
	}

	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Slog())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AnalyzerChanged {
		a.analyzer.Store(a.newAnalyzer(next))
		a.log.Info("analyzer rebuilt",
			"thresholds", next.Classifier.Thresholds(),
			"concurrency", next.Analysis.Concurrency,
		)
	}
	if d.OptionsChanged {
		opts := next.Analysis.Options()
		a.defaults.Store(&opts)
		a.log.Info("request defaults changed",
			"max_phrase_length", opts.MaxPhraseLength,
			"max_results_per_category", opts.MaxResultsPerCategory,
		)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
	return d
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts the HTTP server
// down gracefully within the configured timeout. It also runs the config
// watcher and the persistent cache pruner when enabled.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
		// WebSocket sessions outlive Shutdown's connection tracking; tying
		// request contexts to gctx ends them when serving stops.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	tlsCfg := a.cfg.Server.TLS
	g.Go(func() error {
		a.log.Info("listening", "addr", ln.Addr().String(), "tls", tlsCfg.Enabled())
		var err error
		if tlsCfg.Enabled() {
			err = srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(old, next *config.Config) {
			a.ApplyConfig(old, next)
		}, config.WithWatcherLogger(a.log.With("component", "config")))
		if err != nil {
			a.log.Warn("config hot reload disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error {
				w.Run(gctx)
				return nil
			})
		}
	}

	if a.store != nil {
		g.Go(func() error {
			a.pruneLoop(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// pruneLoop removes expired persistent cache rows until ctx ends.
func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(PruneInterval)
	defer ticker.Stop()
	for {
		n, err := a.store.Prune(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			a.log.Warn("prune response cache", "err", err)
		case n > 0:
			a.log.Debug("pruned response cache", "rows", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem in reverse creation order. It is safe
// to call more than once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for _, closeFn := range slices.Backward(a.closers) {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return
			}
			if err := closeFn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
