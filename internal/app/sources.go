package app

import (
	"errors"

	"github.com/MrWong99/rhymeslikedimes/internal/config"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/datamuse"
	"github.com/MrWong99/rhymeslikedimes/pkg/provider/rhymesource/offline"
)

// RegisterBuiltinSources wires the rhyme sources that ship with the service
// into reg: "datamuse" (the public HTTP API) and "offline" (generated from
// the loaded lexicon).
func RegisterBuiltinSources(reg *config.Registry) {
	reg.RegisterSource("datamuse", func(cfg config.SourceConfig, deps config.SourceDeps) (rhymesource.Provider, error) {
		opts := []datamuse.Option{
			datamuse.WithTimeout(cfg.Timeout),
			datamuse.WithMaxResults(cfg.MaxResults),
			datamuse.WithLogger(deps.Logger),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, datamuse.WithBaseURL(cfg.BaseURL))
		}
		return datamuse.New(opts...), nil
	})

	reg.RegisterSource("offline", func(cfg config.SourceConfig, deps config.SourceDeps) (rhymesource.Provider, error) {
		if deps.Vocabulary == nil {
			return nil, errors.New("offline source needs a vocabulary")
		}
		return offline.New(deps.Vocabulary, offline.WithMaxResults(cfg.MaxResults)), nil
	})
}
