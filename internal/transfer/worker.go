package transfer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/metrics"
	"github.com/JakeFAU/mediavid-client/internal/policy/ratelimit"
)

// Fetcher opens a backend download URL.
type Fetcher interface {
	OpenDownload(ctx context.Context, rawURL string) (*media.Download, error)
}

// Worker consumes jobs and writes each download to the blob store.
type Worker struct {
	queue    *Queue
	fetcher  Fetcher
	store    media.BlobStore
	limiter  *ratelimit.Limiter
	prefix   string
	notifier media.Notifier
	emitter  activity.Emitter
	clock    media.Clock
	logger   *zap.Logger
}

// Run blocks, consuming jobs until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued transfer", zap.String("item_id", job.Item.ID))
		if _, err := w.Process(ctx, job); err != nil {
			w.logger.Warn("transfer failed", zap.String("item_id", job.Item.ID), zap.Error(err))
		}
	}
}

// Process downloads one job and reports the outcome.
func (w *Worker) Process(ctx context.Context, job Job) (Result, error) {
	metrics.IncTransfers()
	defer metrics.DecTransfers()

	start := w.clock.Now()
	res, err := w.transfer(ctx, job)
	dur := sinceStart(w.clock, start)
	if err != nil {
		msg := jobapi.ErrorMessage(err)
		activity.Emit(w.emitter, activity.Event{
			Kind:   activity.KindTransferFailed,
			ItemID: job.Item.ID,
			URL:    job.URL,
			Bytes:  res.Bytes,
			Dur:    dur,
			Note:   msg,
		})
		if w.notifier != nil {
			w.notifier.Notify(ctx, media.Notification{
				Level:   media.LevelError,
				Message: fmt.Sprintf("download of %s failed: %s", job.Item.ID, msg),
				ItemID:  job.Item.ID,
				TS:      w.clock.Now(),
			})
		}
		return res, err
	}
	w.logger.Info("transfer stored",
		zap.String("item_id", job.Item.ID),
		zap.String("location", res.Location),
		zap.Int64("bytes", res.Bytes),
	)
	activity.Emit(w.emitter, activity.Event{
		Kind:     activity.KindTransferDone,
		ItemID:   job.Item.ID,
		URL:      job.URL,
		Location: res.Location,
		Checksum: res.SHA256,
		Bytes:    res.Bytes,
		Dur:      dur,
	})
	return res, nil
}

func (w *Worker) transfer(ctx context.Context, job Job) (Result, error) {
	waited, err := w.limiter.Wait(ctx)
	if err != nil {
		return Result{}, err
	}
	if waited > time.Millisecond {
		w.logger.Debug("transfer throttled", zap.String("item_id", job.Item.ID), zap.Duration("waited", waited))
	}
	dl, err := w.fetcher.OpenDownload(ctx, job.URL)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", job.URL, err)
	}
	return SaveDownload(ctx, w.store, path.Join(w.prefix, job.Item.ID), dl)
}

func sinceStart(clock media.Clock, start time.Time) time.Duration {
	d := clock.Now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
