package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newSourcesCmd creates the 'sources' subcommand: list the registered
// source adapters and the URL patterns they claim.
func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List supported sources",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_, logger, registry, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			for _, adapter := range registry.Adapters() {
				fmt.Printf("%-12s %s\n", adapter.Name(), strings.Join(adapter.Patterns(), ", "))
			}
			return nil
		},
	}
}
