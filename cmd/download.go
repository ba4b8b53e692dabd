package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/progress"
	"github.com/JakeFAU/mediavid-client/internal/transfer"
)

type downloadFlags struct {
	quality    string
	audioOnly  bool
	dir        string
	noProgress bool
}

func newDownloadCmd() *cobra.Command {
	var f downloadFlags
	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a single video with live progress",
		Long: `Requests a direct download from the backend and stores the file in the
configured blob store. Progress is streamed over the backend's push channel
while the server prepares the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.quality, "quality", media.DefaultQuality, "quality label, e.g. 1080p or best")
	cmd.Flags().BoolVar(&f.audioOnly, "audio-only", false, "extract audio as mp3")
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory inside the blob store (default transfer.prefix)")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "do not open the progress channel")
	return cmd
}

func runDownload(cmd *cobra.Command, rawURL string, f downloadFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := a.GetConfig()
	logger := a.GetLogger().Named("download")

	token, err := a.GetIDs().NewSessionToken()
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}
	req, err := media.BuildDownloadRequest(rawURL, media.Options{Quality: f.quality, AudioOnly: f.audioOnly}, token)
	if err != nil {
		notifyError(cmd, a, err)
		return err
	}

	var ch *progress.Channel
	if !f.noProgress {
		ch = openProgress(ctx, a, token, &lockedWriter{w: cmd.ErrOrStderr()}, logger)
		if ch != nil {
			defer func() { _ = ch.Close() }()
		}
	}

	start := time.Now()
	dl, err := a.GetClient().RequestDownload(ctx, req)
	if err != nil {
		notifyError(cmd, a, err)
		return fmt.Errorf("request download: %w", err)
	}

	dir := f.dir
	if dir == "" {
		dir = cfg.Transfer.Prefix
	}
	res, err := transfer.SaveDownload(ctx, a.GetBlobStore(), dir, dl)
	if err != nil {
		activity.Emit(a.GetHub(), activity.Event{
			Kind: activity.KindTransferFailed, ItemID: token, URL: req.URL,
			Bytes: res.Bytes, Dur: time.Since(start), Note: err.Error(),
		})
		notifyError(cmd, a, err)
		return fmt.Errorf("save download: %w", err)
	}
	activity.Emit(a.GetHub(), activity.Event{
		Kind: activity.KindTransferDone, ItemID: token, URL: req.URL,
		Location: res.Location, Checksum: res.SHA256, Bytes: res.Bytes, Dur: time.Since(start),
	})
	a.GetNotifier().Notify(ctx, media.Notification{
		Level:   media.LevelSuccess,
		Message: fmt.Sprintf("saved %s (%s)", res.Filename, media.FormatFileSize(res.Bytes)),
		TS:      time.Now().UTC(),
	})
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), res.Location); err != nil {
		return err
	}

	if ch != nil {
		// Let the channel deliver its terminal stage before tearing it down.
		select {
		case <-ch.Done():
		case <-ctx.Done():
		case <-time.After(cfg.Progress.ErrorDelay + time.Second):
		}
		last := ch.Last()
		logger.Debug("progress channel finished",
			zap.String("session", ch.Token()),
			zap.String("stage", string(last.Stage)),
			zap.Float64("progress", last.Progress),
			zap.Bool("visible", ch.Visible()),
		)
	}
	return nil
}

// openProgress dials the push channel for token. A dial failure is logged and
// the download proceeds without progress.
func openProgress(ctx context.Context, a App, token string, w io.Writer, logger *zap.Logger) *progress.Channel {
	cfg := a.GetConfig().Progress
	notifier := a.GetNotifier()
	ch, err := progress.New(token, progress.Config{
		URL:           a.GetClient().ProgressChannelURL(token),
		CompleteDelay: cfg.CompleteDelay,
		ErrorDelay:    cfg.ErrorDelay,
		PingInterval:  cfg.PingInterval,
		Logger:        logger,
		Emitter:       a.GetHub(),
	}, progress.Callbacks{
		OnEvent: func(evt progress.Event) {
			_, _ = fmt.Fprintf(w, "%-12s %5.1f%%  %s\n", evt.Stage, evt.Progress, evt.Message)
		},
		OnError: func(msg string) {
			notifier.Notify(context.WithoutCancel(ctx), media.Notification{
				Level:   media.LevelError,
				Message: msg,
				TS:      time.Now().UTC(),
			})
		},
	})
	if err != nil {
		logger.Warn("progress channel disabled", zap.Error(err))
		return nil
	}
	if err := ch.Open(ctx); err != nil {
		logger.Warn("progress channel unavailable", zap.Error(err))
		return nil
	}
	return ch
}

// lockedWriter serializes writes from channel goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
