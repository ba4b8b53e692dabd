// Package notify delivers user-visible notifications raised by the batch
// synchronizer, transfer workers and CLI commands.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/media"
)

// Console prints "[level] message" lines.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole writes notifications to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Notify implements media.Notifier.
func (c *Console) Notify(_ context.Context, n media.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "[%s] %s\n", n.Level, n.Message)
}

// Log writes notifications to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog wraps logger. A nil logger discards everything.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("notify")}
}

// Notify implements media.Notifier.
func (l *Log) Notify(_ context.Context, n media.Notification) {
	fields := []zap.Field{zap.String("level", string(n.Level))}
	if n.ItemID != "" {
		fields = append(fields, zap.String("item_id", n.ItemID))
	}
	switch n.Level {
	case media.LevelError:
		l.logger.Error(n.Message, fields...)
	case media.LevelWarning:
		l.logger.Warn(n.Message, fields...)
	default:
		l.logger.Info(n.Message, fields...)
	}
}

// Multi fans a notification out to every non-nil notifier in order.
type Multi []media.Notifier

// Notify implements media.Notifier.
func (m Multi) Notify(ctx context.Context, n media.Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}

// DefaultRecorderSize bounds a Recorder created with size <= 0.
const DefaultRecorderSize = 100

// Recorder keeps the most recent notifications in a ring.
type Recorder struct {
	mu    sync.RWMutex
	buf   []media.Notification
	next  int
	full  bool
	limit int
}

// NewRecorder keeps up to size notifications.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{buf: make([]media.Notification, size), limit: size}
}

// Notify implements media.Notifier.
func (r *Recorder) Notify(_ context.Context, n media.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = n
	r.next = (r.next + 1) % r.limit
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the kept notifications, oldest first.
func (r *Recorder) Recent() []media.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.full {
		return append([]media.Notification(nil), r.buf[:r.next]...)
	}
	out := make([]media.Notification, 0, r.limit)
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
