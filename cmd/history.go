package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mediavid-client/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently recorded downloads",
		Long:  "Lists the download audit trail. Requires db.dsn to point at a Postgres database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !a.HistoryPersistent() {
				return store.ErrNotConfigured
			}
			rows, err := a.GetHistory().ListRecent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			return printHistory(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show; 0 shows all")
	return cmd
}
