// Package health provides HTTP liveness and readiness handlers.
//
// /healthz always answers 200 while the process serves HTTP. /readyz runs
// every registered [Checker] and answers 200 when none failed. A checker may
// report a degraded dependency by returning an error wrapping [ErrDegraded];
// the service stays ready and the body status becomes "degraded".
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/rhymeslikedimes/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a check result that should not fail readiness.
var ErrDegraded = errors.New("degraded")

// Checker is a named readiness probe.
type Checker struct {
	// Name is the key of this check in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers in order on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker with a [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	failed, degraded := false, false

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		switch {
		case err == nil:
			checks[c.Name] = "ok"
		case errors.Is(err, ErrDegraded):
			checks[c.Name] = err.Error()
			degraded = true
		default:
			checks[c.Name] = "fail: " + err.Error()
			failed = true
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	switch {
	case failed:
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	case degraded:
		res.Status = "degraded"
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// LexiconChecker fails while the lexicon reports no words.
func LexiconChecker(size func() int) Checker {
	return Checker{
		Name: "lexicon",
		Check: func(context.Context) error {
			if size() == 0 {
				return errors.New("no pronunciations loaded")
			}
			return nil
		},
	}
}

// SourceChecker reports the circuit state of every rhyme source entry. Open
// circuits are degraded, not failed: lookups still answer from a fallback or
// with empty candidates.
func SourceChecker(status func() []resilience.EntryStatus) Checker {
	return Checker{
		Name: "rhyme_source",
		Check: func(context.Context) error {
			var open []string
			for _, e := range status() {
				if e.State != resilience.StateClosed {
					open = append(open, e.Name+"="+e.State.String())
				}
			}
			if len(open) > 0 {
				return fmt.Errorf("%w: %s", ErrDegraded, strings.Join(open, ", "))
			}
			return nil
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
