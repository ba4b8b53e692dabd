package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/mediavid-client/internal/batch"
	"github.com/JakeFAU/mediavid-client/internal/keepalive"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/policy/ratelimit"
	"github.com/JakeFAU/mediavid-client/internal/statusapi"
	"github.com/JakeFAU/mediavid-client/internal/transfer"
)

type watchFlags struct {
	noAutoDownload bool
	addr           string
	quiet          bool
}

func newWatchCmd() *cobra.Command {
	var f watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the queue and save completed items automatically",
		Long: `Polls the batch queue until interrupted. Each item that completes on the
server is downloaded once into the blob store. A local status server exposes
health, metrics, the queue and recent notifications.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, f)
		},
	}
	cmd.Flags().BoolVar(&f.noAutoDownload, "no-auto-download", false, "only display the queue")
	cmd.Flags().StringVar(&f.addr, "addr", "", `status server address (default server.addr, "off" disables)`)
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "do not print the queue table")
	return cmd
}

func runWatch(cmd *cobra.Command, f watchFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := a.GetConfig()
	logger := a.GetLogger().Named("watch")
	client := a.GetClient()

	limiter := ratelimit.New(ratelimit.Config{PerSecond: cfg.Transfer.RatePerSecond, Burst: cfg.Transfer.Burst})
	pool, err := transfer.NewPool(transfer.Config{
		Workers:   cfg.Transfer.Workers,
		QueueSize: cfg.Transfer.QueueSize,
		Prefix:    cfg.Transfer.Prefix,
		Fetcher:   client,
		Store:     a.GetBlobStore(),
		Limiter:   limiter,
		Notifier:  a.GetNotifier(),
		Emitter:   a.GetHub(),
		Logger:    a.GetLogger(),
	})
	if err != nil {
		return fmt.Errorf("init transfer pool: %w", err)
	}

	base := batch.Config{}
	if !f.noAutoDownload {
		base.Trigger = pool
	}
	if !f.quiet {
		base.OnSnapshot = snapshotPrinter(&lockedWriter{w: cmd.OutOrStdout()})
	}
	s, err := newSynchronizer(a, base)
	if err != nil {
		return err
	}

	var pinger *keepalive.Pinger
	if cfg.KeepAlive.Enabled {
		if pinger, err = keepalive.New(client, cfg.KeepAlive.Interval, a.GetLogger()); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		pool.Run(ctx)
		return nil
	})

	addr := f.addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr != "" && addr != "off" {
		srv := statusapi.New(statusapi.Config{
			Queue:         s,
			Notifications: a.GetRecorder(),
			Transfers:     pool,
			Backend:       client,
			Logger:        a.GetLogger(),
		})
		g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	}

	if pinger != nil {
		g.Go(func() error {
			pinger.Run(ctx)
			return nil
		})
	}

	if err := s.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		s.Stop()
		return nil
	})
	logger.Info("watching batch queue",
		zap.Duration("interval", cfg.Batch.Interval),
		zap.Bool("auto_download", !f.noAutoDownload),
		zap.Bool("throttled", !limiter.Unlimited()),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// snapshotPrinter prints the queue table whenever item ids, statuses or
// progress change.
func snapshotPrinter(w io.Writer) func(media.QueueSnapshot) {
	var last string
	return func(snap media.QueueSnapshot) {
		key := snapshotKey(snap)
		if key == last {
			return
		}
		last = key
		_ = printQueue(w, snap)
		_, _ = fmt.Fprintln(w)
	}
}

func snapshotKey(snap media.QueueSnapshot) string {
	var b strings.Builder
	for _, item := range snap.Items {
		fmt.Fprintf(&b, "%s:%s:%d;", item.ID, item.Status, item.Progress)
	}
	return b.String()
}
