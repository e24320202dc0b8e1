package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newInfoCmd creates the 'info' subcommand: fetch and print the catalog
// without downloading any chapters.
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <story-url>",
		Short: "Show a story's metadata and chapter count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, registry, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			adapter, err := registry.Resolve(args[0])
			if err != nil {
				return err
			}
			catalog, err := adapter.FetchCatalog(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("fetch catalog: %w", err)
			}

			fmt.Printf("Title:    %s\n", catalog.Title)
			fmt.Printf("Author:   %s\n", catalog.Author)
			fmt.Printf("Source:   %s\n", adapter.Name())
			fmt.Printf("Chapters: %d\n", len(catalog.Chapters))
			if catalog.Description != "" {
				fmt.Printf("\n%s\n", catalog.Description)
			}
			return nil
		},
	}
}
