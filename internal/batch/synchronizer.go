package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/clock/system"
	"github.com/JakeFAU/mediavid-client/internal/jobapi"
	"github.com/JakeFAU/mediavid-client/internal/media"
)

const (
	// DefaultInterval is the pause between applying one poll and issuing the next.
	DefaultInterval = 2 * time.Second
	// DefaultMaxBackoff caps the wait after consecutive poll failures.
	DefaultMaxBackoff = 30 * time.Second

	// ClearAllPrompt is shown to the Confirmer before wiping the queue.
	ClearAllPrompt = "Clear the whole queue? Downloads in progress will be cancelled."
)

// Default notification texts, used when the backend returns no message.
const (
	msgAutoDownload   = "download started automatically"
	msgAdded          = "items added to the queue"
	msgStarted        = "batch started"
	msgCancelled      = "item cancelled"
	msgPaused         = "item paused"
	msgResumed        = "item resumed"
	msgClearCompleted = "completed items removed"
	msgClearAll       = "queue cleared"
)

var (
	// ErrNotConfirmed is returned when ClearAll is declined.
	ErrNotConfirmed = errors.New("clear all not confirmed")
	// ErrStopped is returned when a poll result arrives after Stop.
	ErrStopped = errors.New("synchronizer stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("synchronizer already started")
)

// API is the slice of the job API client the synchronizer drives.
type API interface {
	GetQueue(ctx context.Context) (media.QueueSnapshot, error)
	EnqueueBatch(ctx context.Context, items []media.BatchRequest) (media.EnqueueResult, error)
	StartBatch(ctx context.Context) (media.MessageResponse, error)
	CancelItem(ctx context.Context, id string) (media.MessageResponse, error)
	PauseItem(ctx context.Context, id string) (media.MessageResponse, error)
	ResumeItem(ctx context.Context, id string) (media.MessageResponse, error)
	ClearCompleted(ctx context.Context) (media.MessageResponse, error)
	ClearAll(ctx context.Context) (media.MessageResponse, error)
	DownloadItemURL(id string) string
}

// Trigger starts the local download of a completed item. It must not block.
type Trigger interface {
	Trigger(ctx context.Context, item media.BatchItem, url string)
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, item media.BatchItem, url string)

// Trigger calls f.
func (f TriggerFunc) Trigger(ctx context.Context, item media.BatchItem, url string) {
	f(ctx, item, url)
}

// Config wires optional collaborators. Without a Trigger completed items are
// never auto-downloaded.
type Config struct {
	Interval   time.Duration
	MaxBackoff time.Duration
	Trigger    Trigger
	Notifier   media.Notifier
	Confirmer  media.Confirmer
	Emitter    activity.Emitter
	// OnSnapshot receives a copy of every applied snapshot.
	OnSnapshot func(media.QueueSnapshot)
	Clock      media.Clock
	Logger     *zap.Logger
}

// Synchronizer mirrors the backend queue. It is safe for concurrent use.
type Synchronizer struct {
	api    API
	cfg    Config
	logger *zap.Logger

	// pollMu serializes every fetch and apply pass.
	pollMu sync.Mutex

	stateMu    sync.RWMutex
	snapshot   media.QueueSnapshot
	downloaded map[string]struct{}

	stopped atomic.Bool

	runMu    sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New builds a Synchronizer around api.
func New(api API, cfg Config) (*Synchronizer, error) {
	if api == nil {
		return nil, errors.New("batch api is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Synchronizer{
		api:        api,
		cfg:        cfg,
		logger:     cfg.Logger.Named("batch"),
		downloaded: make(map[string]struct{}),
	}, nil
}

// Start launches the polling loop. The first poll runs immediately.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopped.Load() {
		return ErrStopped
	}
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(loopCtx, s.loopDone)
	return nil
}

// Stop cancels polling and waits for the loop and for any apply already in
// progress. Results that arrive afterwards are discarded. Stop is idempotent
// and must not be called from OnSnapshot or a Trigger.
func (s *Synchronizer) Stop() {
	s.stopped.Store(true)
	s.runMu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.runMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	s.pollMu.Lock()
	//nolint:staticcheck // empty critical section waits out a running apply
	s.pollMu.Unlock()
}

// Snapshot returns a copy of the last applied snapshot.
func (s *Synchronizer) Snapshot() media.QueueSnapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.snapshot.Clone()
}

// Downloaded reports whether id was already handed to the Trigger.
func (s *Synchronizer) Downloaded(id string) bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	_, ok := s.downloaded[id]
	return ok
}

// Delay returns the wait before the next poll after failures consecutive
// failed polls.
func (s *Synchronizer) Delay(failures int) time.Duration {
	interval, limit := s.cfg.Interval, s.cfg.MaxBackoff
	if failures <= 0 || limit <= interval {
		return interval
	}
	d := interval
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return d
}

func (s *Synchronizer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if _, err := s.Refresh(ctx); err != nil {
			if errors.Is(err, ErrStopped) || ctx.Err() != nil {
				return
			}
			failures++
			s.logger.Warn("queue poll failed", zap.Error(err), zap.Int("consecutive_failures", failures))
		} else {
			failures = 0
		}
		timer.Reset(s.Delay(failures))
	}
}

// Refresh fetches the queue once and applies it. Polls and mutation
// re-fetches share one lock, so results are applied in issue order.
func (s *Synchronizer) Refresh(ctx context.Context) (media.QueueSnapshot, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	if s.stopped.Load() {
		return media.QueueSnapshot{}, ErrStopped
	}

	start := s.cfg.Clock.Now()
	snap, err := s.api.GetQueue(ctx)
	dur := s.cfg.Clock.Now().Sub(start)
	if s.stopped.Load() {
		return media.QueueSnapshot{}, ErrStopped
	}
	if err != nil {
		activity.Emit(s.cfg.Emitter, activity.Event{Kind: activity.KindPollFailed, Dur: nonNegative(dur), Note: jobapi.ErrorMessage(err)})
		return media.QueueSnapshot{}, fmt.Errorf("refresh queue: %w", err)
	}
	s.apply(ctx, snap)
	activity.Emit(s.cfg.Emitter, activity.Event{Kind: activity.KindPollOK, Dur: nonNegative(dur)})
	return snap.Clone(), nil
}

// apply must run under pollMu.
func (s *Synchronizer) apply(ctx context.Context, snap media.QueueSnapshot) {
	var fresh []media.BatchItem
	s.stateMu.Lock()
	s.snapshot = snap.Clone()
	if s.cfg.Trigger != nil {
		for _, item := range snap.Items {
			if item.Status != media.StatusCompleted || item.Downloaded {
				continue
			}
			if _, seen := s.downloaded[item.ID]; seen {
				continue
			}
			s.downloaded[item.ID] = struct{}{}
			fresh = append(fresh, item)
		}
	}
	s.stateMu.Unlock()

	if s.cfg.OnSnapshot != nil {
		s.cfg.OnSnapshot(snap.Clone())
	}
	for _, item := range fresh {
		url := s.api.DownloadItemURL(item.ID)
		s.logger.Info("auto download triggered", zap.String("item_id", item.ID), zap.String("url", url))
		s.cfg.Trigger.Trigger(ctx, item, url)
		s.notify(ctx, media.LevelSuccess, msgAutoDownload, item.ID)
		activity.Emit(s.cfg.Emitter, activity.Event{
			Kind:   activity.KindAutoDownload,
			ItemID: item.ID,
			Status: string(item.Status),
			URL:    url,
		})
	}
}

// Add validates and enqueues items.
func (s *Synchronizer) Add(ctx context.Context, items []media.BatchRequest) (media.EnqueueResult, error) {
	if err := media.ValidateBatch(items); err != nil {
		s.notify(ctx, media.LevelError, err.Error(), "")
		return media.EnqueueResult{}, fmt.Errorf("add: %w", err)
	}
	var res media.EnqueueResult
	err := s.mutate(ctx, "add", "", media.LevelSuccess, msgAdded, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.api.EnqueueBatch(ctx, items)
		return res.Message, err
	})
	return res, err
}

// StartBatch tells the backend to process pending items.
func (s *Synchronizer) StartBatch(ctx context.Context) error {
	return s.mutate(ctx, "start", "", media.LevelSuccess, msgStarted, messageOf(s.api.StartBatch))
}

// Cancel cancels one item.
func (s *Synchronizer) Cancel(ctx context.Context, id string) error {
	return s.mutate(ctx, "cancel", id, media.LevelInfo, msgCancelled, itemCall(s.api.CancelItem, id))
}

// Pause pauses one pending item.
func (s *Synchronizer) Pause(ctx context.Context, id string) error {
	return s.mutate(ctx, "pause", id, media.LevelSuccess, msgPaused, itemCall(s.api.PauseItem, id))
}

// Resume puts a paused item back to pending.
func (s *Synchronizer) Resume(ctx context.Context, id string) error {
	return s.mutate(ctx, "resume", id, media.LevelSuccess, msgResumed, itemCall(s.api.ResumeItem, id))
}

// ClearCompleted removes finished items.
func (s *Synchronizer) ClearCompleted(ctx context.Context) error {
	return s.mutate(ctx, "clear_completed", "", media.LevelSuccess, msgClearCompleted, messageOf(s.api.ClearCompleted))
}

// ClearAll wipes the queue after confirmation. Declining, or a confirmer
// failure, sends nothing and returns ErrNotConfirmed.
func (s *Synchronizer) ClearAll(ctx context.Context) error {
	if !s.confirm(ctx, ClearAllPrompt) {
		return ErrNotConfirmed
	}
	return s.mutateThen(ctx, "clear_all", "", media.LevelSuccess, msgClearAll, messageOf(s.api.ClearAll), s.reset)
}

func (s *Synchronizer) confirm(ctx context.Context, prompt string) bool {
	if s.cfg.Confirmer == nil {
		return false
	}
	ok, err := s.cfg.Confirmer.Confirm(ctx, prompt)
	if err != nil {
		s.logger.Warn("confirmation failed", zap.Error(err))
		return false
	}
	return ok
}

func (s *Synchronizer) reset() {
	s.stateMu.Lock()
	s.snapshot = media.QueueSnapshot{}
	s.stateMu.Unlock()
}

func (s *Synchronizer) mutate(ctx context.Context, op, itemID string, level media.Level, fallback string, call func(context.Context) (string, error)) error {
	return s.mutateThen(ctx, op, itemID, level, fallback, call, nil)
}

func (s *Synchronizer) mutateThen(
	ctx context.Context,
	op, itemID string,
	level media.Level,
	fallback string,
	call func(context.Context) (string, error),
	onSuccess func(),
) error {
	msg, err := call(ctx)
	evt := activity.Event{Kind: activity.KindMutation, Status: op, ItemID: itemID}
	if err != nil {
		evt.Note = jobapi.ErrorMessage(err)
		activity.Emit(s.cfg.Emitter, evt)
		s.notify(ctx, media.LevelError, jobapi.ErrorMessage(err), itemID)
		return fmt.Errorf("%s: %w", op, err)
	}
	activity.Emit(s.cfg.Emitter, evt)
	if msg == "" {
		msg = fallback
	}
	s.notify(ctx, level, msg, itemID)
	if onSuccess != nil {
		onSuccess()
	}
	if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrStopped) {
		s.logger.Warn("queue refresh after mutation failed", zap.String("op", op), zap.Error(err))
	}
	return nil
}

func (s *Synchronizer) notify(ctx context.Context, level media.Level, msg, itemID string) {
	if s.cfg.Notifier == nil {
		return
	}
	s.cfg.Notifier.Notify(ctx, media.Notification{
		Level:   level,
		Message: msg,
		ItemID:  itemID,
		TS:      s.cfg.Clock.Now(),
	})
}

func messageOf(fn func(context.Context) (media.MessageResponse, error)) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		res, err := fn(ctx)
		return res.Message, err
	}
}

func itemCall(fn func(context.Context, string) (media.MessageResponse, error), id string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		res, err := fn(ctx, id)
		return res.Message, err
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
