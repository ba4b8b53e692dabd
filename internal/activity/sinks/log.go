package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
)

// LogSink emits structured logs for activity streams.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event. Failures are logged at warn level, the rest at
// debug so steady polling stays quiet.
func (s *LogSink) Consume(_ context.Context, batch []activity.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("kind", string(evt.Kind)),
			zap.Time("ts", evt.TS),
		}
		if evt.ItemID != "" {
			fields = append(fields, zap.String("item_id", evt.ItemID))
		}
		if evt.Session != "" {
			fields = append(fields, zap.String("session", evt.Session))
		}
		if evt.Status != "" {
			fields = append(fields, zap.String("status", evt.Status))
		}
		if evt.Stage != "" {
			fields = append(fields, zap.String("stage", evt.Stage), zap.Float64("progress", evt.Progress))
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Location != "" {
			fields = append(fields, zap.String("location", evt.Location))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Kind {
		case activity.KindPollFailed, activity.KindTransferFailed:
			s.logger.Warn("activity event", fields...)
		case activity.KindAutoDownload, activity.KindTransferDone:
			s.logger.Info("activity event", fields...)
		default:
			s.logger.Debug("activity event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
