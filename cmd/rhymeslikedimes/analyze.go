package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/rhymeslikedimes/internal/app"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		maxPhraseLength int
		maxResults      int
		compact         bool
	)
	cmd := &cobra.Command{
		Use:     "analyze <line>",
		Short:   "Analyze one lyric line and print the result as JSON",
		Example: `  rhymeslikedimes analyze "cookie tear"` + "\n" + `  rhymeslikedimes analyze --max-results 3 ate spaghetti`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			level := new(slog.LevelVar)
			level.Set(cfg.Server.LogLevel.Slog())

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg,
				app.WithLogger(newLogger(level, cmd.ErrOrStderr())),
				app.WithLevelVar(level),
				app.WithVersion(Version),
			)
			if err != nil {
				return err
			}
			defer a.Shutdown(context.WithoutCancel(ctx))

			opts := a.Defaults()
			if cmd.Flags().Changed("max-phrase-length") {
				opts.MaxPhraseLength = maxPhraseLength
			}
			if cmd.Flags().Changed("max-results") {
				opts.MaxResultsPerCategory = maxResults
			}

			res, err := a.Analyze(ctx, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(res)
		},
	}
	cmd.Flags().IntVar(&maxPhraseLength, "max-phrase-length", 0, "longest fragment in words (config default when unset)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "cap for every rhyme category list (config default when unset)")
	cmd.Flags().BoolVar(&compact, "compact", false, "print JSON on a single line")
	return cmd
}
