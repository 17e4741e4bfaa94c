package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/rhymeslikedimes/internal/config"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "rhymeslikedimes",
		Short: "Rhyme finder for lyric lines",
		Long: `rhymeslikedimes splits a lyric line into every word and short phrase,
looks up rhyme candidates for each and classifies them as perfect, near or
slant rhymes, including multi-word phrase rhymes.`,
		Version:      Version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to the YAML configuration file (built-in defaults and RHYMES_* variables when empty)")

	cmd.AddCommand(newServeCmd(opts), newAnalyzeCmd(opts))
	return cmd
}

// loadConfig loads and validates the configuration named by --config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/rhymes.example.yaml to get started", o.configPath)
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a text logger whose level follows level.
func newLogger(level *slog.LevelVar, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
