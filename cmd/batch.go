package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/batch"
	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/transfer"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage the server-side batch queue",
	}
	cmd.AddCommand(
		newBatchAddCmd(),
		newBatchListCmd(),
		newBatchStartCmd(),
		newItemActionCmd("cancel", "Cancel a pending, paused or downloading item", (*batch.Synchronizer).Cancel),
		newItemActionCmd("pause", "Pause a pending item", (*batch.Synchronizer).Pause),
		newItemActionCmd("resume", "Resume a paused item", (*batch.Synchronizer).Resume),
		newBatchSaveCmd(),
		newClearCompletedCmd(),
		newClearAllCmd(),
		newWatchCmd(),
	)
	return cmd
}

// newSynchronizer fills base with the app's polling settings and
// collaborators.
func newSynchronizer(a App, base batch.Config) (*batch.Synchronizer, error) {
	cfg := a.GetConfig().Batch
	base.Interval = cfg.Interval
	base.MaxBackoff = cfg.MaxBackoff
	base.Notifier = a.GetNotifier()
	base.Emitter = a.GetHub()
	base.Logger = a.GetLogger()
	return batch.New(a.GetClient(), base)
}

func oneShot(cmd *cobra.Command, base batch.Config) (*batch.Synchronizer, error) {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	return newSynchronizer(a, base)
}

func newBatchAddCmd() *cobra.Command {
	var (
		file      string
		quality   string
		audioOnly bool
	)
	cmd := &cobra.Command{
		Use:   "add [url...]",
		Short: "Add URLs to the queue",
		Long: `Adds one item per URL. URLs come from the arguments and, with --file,
from a file with one URL per line ("-" reads standard input).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "\n")
			if file != "" {
				extra, err := readURLFile(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				text += "\n" + extra
			}
			s, err := oneShot(cmd, batch.Config{})
			if err != nil {
				return err
			}
			items, err := media.BuildBatchRequests(media.SplitURLs(text), media.Options{Quality: quality, AudioOnly: audioOnly})
			if err != nil {
				// Let the synchronizer report the validation failure.
				items = nil
			}
			res, err := s.Add(cmd.Context(), items)
			if err != nil {
				return err
			}
			for _, id := range res.ItemIDs {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `read URLs from a file, "-" for stdin`)
	cmd.Flags().StringVar(&quality, "quality", media.DefaultQuality, "quality label for every item")
	cmd.Flags().BoolVar(&audioOnly, "audio-only", false, "extract audio as mp3")
	return cmd
}

func readURLFile(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read url file: %w", err)
	}
	return string(b), nil
}

func newBatchListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the current queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := oneShot(cmd, batch.Config{})
			if err != nil {
				return err
			}
			snap, err := s.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return printQueue(cmd.OutOrStdout(), snap)
		},
	}
}

func newBatchStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start processing pending items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := oneShot(cmd, batch.Config{})
			if err != nil {
				return err
			}
			return s.StartBatch(cmd.Context())
		},
	}
}

func newItemActionCmd(name, short string, action func(*batch.Synchronizer, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := oneShot(cmd, batch.Config{})
			if err != nil {
				return err
			}
			return describeItemError(args[0], action(s, cmd.Context(), args[0]))
		},
	}
}

// describeItemError names the item when the server rejected a request for it.
func describeItemError(id string, err error) error {
	switch jobapi.StatusCode(err) {
	case http.StatusNotFound:
		return fmt.Errorf("item %s not found on the server: %w", id, err)
	case http.StatusBadRequest:
		return fmt.Errorf("item %s was rejected in its current state: %w", id, err)
	}
	return err
}

func newBatchSaveCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "save <item-id>",
		Short: "Save the file of a completed item into the blob store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatchSave(cmd, args[0], dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory inside the blob store (default transfer.prefix)")
	return cmd
}

func runBatchSave(cmd *cobra.Command, id, dir string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client := a.GetClient()
	if dir == "" {
		dir = a.GetConfig().Transfer.Prefix
	}

	start := time.Now()
	dl, err := client.OpenItemDownload(ctx, id)
	if err != nil {
		notifyError(cmd, a, err)
		return describeItemError(id, err)
	}
	res, err := transfer.SaveDownload(ctx, a.GetBlobStore(), path.Join(dir, id), dl)
	if err != nil {
		activity.Emit(a.GetHub(), activity.Event{
			Kind: activity.KindTransferFailed, ItemID: id, URL: client.DownloadItemURL(id),
			Bytes: res.Bytes, Dur: time.Since(start), Note: err.Error(),
		})
		notifyError(cmd, a, err)
		return fmt.Errorf("save item %s: %w", id, err)
	}
	activity.Emit(a.GetHub(), activity.Event{
		Kind: activity.KindTransferDone, ItemID: id, URL: client.DownloadItemURL(id),
		Location: res.Location, Checksum: res.SHA256, Bytes: res.Bytes, Dur: time.Since(start),
	})
	a.GetNotifier().Notify(ctx, media.Notification{
		Level:   media.LevelSuccess,
		Message: fmt.Sprintf("saved %s (%s)", res.Filename, media.FormatFileSize(res.Bytes)),
		ItemID:  id,
		TS:      time.Now().UTC(),
	})
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Location)
	return err
}

func newClearCompletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed items from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := oneShot(cmd, batch.Config{})
			if err != nil {
				return err
			}
			return s.ClearCompleted(cmd.Context())
		},
	}
}

func newClearAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear-all",
		Short: "Remove every item from the queue after confirmation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := oneShot(cmd, batch.Config{
				Confirmer: promptConfirmer{in: cmd.InOrStdin(), out: cmd.OutOrStdout(), assumeYes: yes},
			})
			if err != nil {
				return err
			}
			err = s.ClearAll(cmd.Context())
			if errors.Is(err, batch.ErrNotConfirmed) {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "aborted, queue left unchanged")
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
