// Package pubsub forwards notifications to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/media"
)

const defaultPublishTimeout = 10 * time.Second

// Forwarder publishes each notification as a JSON message with a level
// attribute. Publish results are awaited off the caller's goroutine.
type Forwarder struct {
	topic   *pubsub.Topic
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// New wraps topic.
func New(topic *pubsub.Topic, logger *zap.Logger) (*Forwarder, error) {
	if topic == nil {
		return nil, errors.New("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{topic: topic, timeout: defaultPublishTimeout, logger: logger.Named("notify.pubsub")}, nil
}

// Notify implements media.Notifier.
func (f *Forwarder) Notify(ctx context.Context, n media.Notification) {
	if err := f.publish(ctx, n); err != nil {
		f.logger.Warn("notification not forwarded", zap.Error(err))
	}
}

func (f *Forwarder) publish(ctx context.Context, n media.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{"level": string(n.Level)}
	if n.ItemID != "" {
		attrs["item_id"] = n.ItemID
	}
	result := f.topic.Publish(context.WithoutCancel(ctx), &pubsub.Message{Data: data, Attributes: attrs})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		getCtx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if _, err := result.Get(getCtx); err != nil {
			f.logger.Warn("publish notification failed", zap.Error(err))
		}
	}()
	return nil
}

// Close waits for outstanding publishes and flushes the topic.
func (f *Forwarder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		f.topic.Stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pubsub forwarder close: %w", ctx.Err())
	}
}
