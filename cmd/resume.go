package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// newResumeListCmd creates the 'resume' subcommand: show every known job
// and how far it got, so interrupted fetches are easy to pick back up.
func newResumeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "List in-progress and finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, _, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, closeStore, err := buildStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open progress store: %w", err)
			}
			defer closeStore()

			records, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			if len(records) == 0 {
				fmt.Println("No jobs recorded.")
				return nil
			}

			sort.Slice(records, func(i, j int) bool {
				return records[i].UpdatedAt.After(records[j].UpdatedAt)
			})
			for _, rec := range records {
				total := len(rec.Catalog.Chapters)
				line := fmt.Sprintf("%s  %s  %d/%d chapters",
					rec.JobKey, rec.Identifier, len(rec.Completed), total)
				if len(rec.Gaps) > 0 {
					line += fmt.Sprintf("  (%d gaps)", len(rec.Gaps))
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
