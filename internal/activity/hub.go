package activity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 1024).
//   - MaxBatchEvents: flush once this many events queue (default 256).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 250ms).
//   - SinkTimeout: per-sink timeout while flushing (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub batches Events and fans them out to registered sinks. It is safe for
// concurrent use and never blocks callers.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	lastLog atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine for the supplied sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: cfg.Logger.Named("activity"),
	}
	go h.run()
	return h
}

// Emit enqueues an Event for batching, stamping TS when unset. It never
// blocks; when the buffer is full the event is dropped and a rate-limited
// warning is logged.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid activity event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.logDrops(time.Now())
	}
}

// Close drains buffered events, flushes and closes sinks, and waits for the
// batching goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("activity hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) logDrops(now time.Time) {
	last := h.lastLog.Load()
	if now.UnixNano()-last < dropLogInterval.Nanoseconds() {
		return
	}
	if !h.lastLog.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	h.logger.Warn("activity events dropped due to backpressure", zap.Int64("dropped", h.dropped.Swap(0)))
}

func (h *Hub) run() {
	defer close(h.doneCh)
	b := &batcher{
		max:   h.cfg.MaxBatchEvents,
		wait:  h.cfg.MaxBatchWait,
		timer: time.NewTimer(time.Hour),
		flush: h.flush,
	}
	b.stopTimer()
	for {
		select {
		case evt := <-h.events:
			b.add(evt)
		case <-b.timer.C:
			b.armed = false
			b.flushPending()
		case <-h.stopCh:
			b.stopTimer()
			h.drain(b)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) drain(b *batcher) {
	for {
		select {
		case evt := <-h.events:
			b.pending = append(b.pending, evt)
			if len(b.pending) >= b.max {
				b.flushPending()
			}
		default:
			b.flushPending()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("activity sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("activity sink close failed", zap.Error(err))
		}
	}
}

// batcher accumulates events between size and time based flushes. It is only
// touched by the hub goroutine.
type batcher struct {
	pending []Event
	max     int
	wait    time.Duration
	timer   *time.Timer
	armed   bool
	flush   func([]Event)
}

func (b *batcher) add(evt Event) {
	b.pending = append(b.pending, evt)
	if len(b.pending) >= b.max {
		b.stopTimer()
		b.flushPending()
		return
	}
	b.resetTimer()
}

func (b *batcher) flushPending() {
	if len(b.pending) == 0 {
		return
	}
	batch := append([]Event(nil), b.pending...)
	b.pending = b.pending[:0]
	b.flush(batch)
}

// resetTimer arms the timer for the first event of a batch so MaxBatchWait
// bounds the age of the oldest pending event.
func (b *batcher) resetTimer() {
	if b.armed {
		return
	}
	b.timer.Reset(b.wait)
	b.armed = true
}

func (b *batcher) stopTimer() {
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
	b.armed = false
}
