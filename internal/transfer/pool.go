package transfer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/clock/system"
	"github.com/JakeFAU/mediavid-client/internal/media"
	"github.com/JakeFAU/mediavid-client/internal/policy/ratelimit"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
)

// Config wires a Pool.
type Config struct {
	Workers   int
	QueueSize int
	// Prefix is prepended to every object key.
	Prefix  string
	Fetcher Fetcher
	Store   media.BlobStore
	// Limiter throttles transfer starts across workers; nil means unlimited.
	Limiter  *ratelimit.Limiter
	Notifier media.Notifier
	Emitter  activity.Emitter
	Clock    media.Clock
	Logger   *zap.Logger
}

// Pool fans queued transfers out to workers. Its Trigger method plugs into
// the batch synchronizer.
type Pool struct {
	queue   *Queue
	workers []*Worker
	logger  *zap.Logger
	pending sync.WaitGroup
}

// NewPool builds the queue and workers. Nothing runs until Run.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.Named("transfer")
	q := NewQueue(cfg.QueueSize)
	workers := make([]*Worker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		workers = append(workers, &Worker{
			queue:    q,
			fetcher:  cfg.Fetcher,
			store:    cfg.Store,
			limiter:  cfg.Limiter,
			prefix:   cfg.Prefix,
			notifier: cfg.Notifier,
			emitter:  cfg.Emitter,
			clock:    cfg.Clock,
			logger:   logger.With(zap.Int("worker", i)),
		})
	}
	return &Pool{queue: q, workers: workers, logger: logger}, nil
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	p.queue.Close()
	wg.Wait()
	p.pending.Wait()
}

// Trigger queues a transfer without blocking the caller. When the queue is
// full the enqueue continues on its own goroutine until ctx ends.
func (p *Pool) Trigger(ctx context.Context, item media.BatchItem, url string) {
	job := Job{Item: item, URL: url}
	if p.queue.TryEnqueue(job) {
		return
	}
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		if err := p.queue.Enqueue(ctx, job); err != nil {
			p.logger.Warn("transfer not queued", zap.String("item_id", item.ID), zap.Error(err))
		}
	}()
}

// Pending reports queued jobs not yet picked up.
func (p *Pool) Pending() int { return p.queue.Len() }
