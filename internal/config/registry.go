package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/offline"
)

// ErrSourceNotRegistered is returned by [Registry.CreateSource] when no
// factory has been registered under the requested name.
var ErrSourceNotRegistered = errors.New("config: source not registered")

// SourceDeps carries the runtime values a source factory may need beyond
// its configuration.
type SourceDeps struct {
	// Vocabulary backs generators that work from the local lexicon.
	Vocabulary offline.Vocabulary

	Logger *slog.Logger
}

// SourceFactory constructs a rhyme source provider.
type SourceFactory func(SourceConfig, SourceDeps) (rhymesource.Provider, error)

// Registry maps rhyme source names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SourceFactory)}
}

// RegisterSource registers a source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSource instantiates the source registered under name.
func (r *Registry) CreateSource(name string, cfg SourceConfig, deps SourceDeps) (rhymesource.Provider, error) {
	r.mu.RLock()
	factory, ok := r.sources[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrSourceNotRegistered, name)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	p, err := factory(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("config: create source %q: %w", name, err)
	}
	return p, nil
}

// Sources returns the registered names in sorted order.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
