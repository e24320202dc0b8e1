package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bindery/internal/engine"
)

// newFetchCmd creates the 'fetch' subcommand: the full pipeline from story
// URL to assembled book directory.
func newFetchCmd() *cobra.Command {
	var (
		outputDir       string
		refresh         bool
		continueOnError bool
		offset          int
		limit           int
	)

	cmd := &cobra.Command{
		Use:   "fetch <story-url>",
		Short: "Fetch a story and assemble it into a book directory",
		Long: `Fetches the story's catalog and every chapter, pacing requests per
source and retrying transient failures. Progress persists after every
chapter, so an interrupted fetch resumes where it stopped. Chapters that
fail permanently abort the job unless --continue-on-error records them
as explicit gaps instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, registry, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			store, closeStore, err := buildStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open progress store: %w", err)
			}
			defer closeStore()

			assembler, err := buildAssembler(cfg, logger)
			if err != nil {
				return fmt.Errorf("open output dir: %w", err)
			}

			eng := buildEngine(cfg, registry, store, assembler, logger)
			res, err := eng.Run(cmd.Context(), args[0], engine.RunOptions{
				ContinueOnError: continueOnError || cfg.ContinueOnError,
				Refresh:         refresh,
				Offset:          offset,
				Limit:           limit,
			})
			if err != nil {
				logger.Error("fetch failed",
					zap.String("identifier", args[0]),
					zap.String("state", string(res.State)),
					zap.Error(err),
				)
				return err
			}

			switch res.State {
			case engine.StatePaused:
				fmt.Printf("Paused after chapter %d of %q; run again to resume.\n",
					res.LastCompleted, args[0])
			case engine.StateCompleted:
				fmt.Printf("Assembled %d chapters into %s\n", len(res.Completed), res.OutputPath)
				if len(res.Gaps) > 0 {
					fmt.Printf("Warning: %d chapter(s) are gaps; see gaps.json\n", len(res.Gaps))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides output.dir)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-fetch chapters already downloaded")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "record failed chapters as gaps instead of aborting")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip the first N chapters")
	cmd.Flags().IntVar(&limit, "limit", 0, "fetch at most N chapters (0 = all)")

	return cmd
}
