// Package server exposes the rhyme analyzer over HTTP: a JSON API, a
// WebSocket endpoint for as-you-type analysis, an MCP tool endpoint, health
// probes and Prometheus metrics.
//
// Every surface is a thin adapter over [Analyzer]; none of them adds rhyme
// semantics of its own.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"golang.org/x/time/rate"

	"github.com/MrWong99/rhymeslikedimes/internal/health"
	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
)

// Analyzer is the rhyme engine behind every surface. *rhyme.Analyzer
// satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, line string, opts rhyme.Options) (*rhyme.AnalysisResult, error)
	Suggest(ctx context.Context, word string, filter rhyme.Filter, maxResults int) (*rhyme.FragmentResult, error)
}

// Config wires a [Server].
type Config struct {
	Analyzer Analyzer

	// Defaults returns the options applied when a request leaves them
	// unset. Nil selects [rhyme.DefaultOptions].
	Defaults func() rhyme.Options

	// Health serves /healthz and /readyz. Nil registers probes without
	// checkers.
	Health *health.Handler

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// AllowedOrigins are host patterns (path.Match syntax) accepted for
	// cross-origin requests and WebSocket upgrades.
	AllowedOrigins []string

	// WSMessageRate and WSMessageBurst limit messages per WebSocket
	// session. Zero disables limiting.
	WSMessageRate  float64
	WSMessageBurst int

	Version    string
	Instrument *observe.Metrics
	Logger     *slog.Logger
}

// Server routes requests to the analyzer. It is safe for concurrent use.
type Server struct {
	analyzer  Analyzer
	defaults  func() rhyme.Options
	health    *health.Handler
	metrics   http.Handler
	origins   []string
	wsLimit   rate.Limit
	wsBurst   int
	version   string
	instr     *observe.Metrics
	log       *slog.Logger
	mcpServer http.Handler
}

// New returns a Server for cfg.
func New(cfg Config) *Server {
	if cfg.Defaults == nil {
		cfg.Defaults = rhyme.DefaultOptions
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Instrument == nil {
		cfg.Instrument = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		analyzer: cfg.Analyzer,
		defaults: cfg.Defaults,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
		origins:  cfg.AllowedOrigins,
		wsLimit:  rate.Inf,
		version:  cfg.Version,
		instr:    cfg.Instrument,
		log:      cfg.Logger.With("component", "server"),
	}
	if cfg.WSMessageRate > 0 && cfg.WSMessageBurst > 0 {
		s.wsLimit = rate.Limit(cfg.WSMessageRate)
		s.wsBurst = cfg.WSMessageBurst
	}
	s.mcpServer = s.newMCPHandler()
	return s
}

// Handler returns the root handler with all routes and middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/suggestions/{word}", s.handleSuggestions)
	mux.HandleFunc("POST /api/suggestions/{word}", s.handleSuggestions)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("/mcp", s.mcpServer)
	s.health.Register(mux)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return observe.Middleware(s.instr)(s.cors(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "rhymeslikedimes",
		"version": s.version,
	})
}

// cors answers preflight requests and sets CORS headers for allowed
// origins. Same-origin and origin-less requests pass through untouched.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !s.originAllowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Traceparent")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed matches the host of origin against the configured patterns
// the same way the WebSocket handshake does.
func (s *Server) originAllowed(origin string) bool {
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.ToLower(host)
	for _, pattern := range s.origins {
		if ok, _ := path.Match(strings.ToLower(pattern), host); ok {
			return true
		}
	}
	return false
}
