package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/media"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <url>",
		Short: "Show metadata and available formats for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			info, err := a.GetClient().FetchMetadata(cmd.Context(), args[0])
			if err != nil {
				notifyError(cmd, a, err)
				return fmt.Errorf("fetch metadata: %w", err)
			}
			return printInfo(cmd.OutOrStdout(), info)
		},
	}
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the quality options the backend supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			catalog, err := a.GetClient().ListFormats(cmd.Context())
			if err != nil {
				notifyError(cmd, a, err)
				return fmt.Errorf("list formats: %w", err)
			}
			return printFormats(cmd.OutOrStdout(), catalog)
		},
	}
}

// notifyError surfaces a failed backend call once, with the server's message
// when it sent one.
func notifyError(cmd *cobra.Command, a App, err error) {
	a.GetNotifier().Notify(cmd.Context(), media.Notification{
		Level:   media.LevelError,
		Message: jobapi.ErrorMessage(err),
		TS:      time.Now().UTC(),
	})
}
