package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/mediavid-client/internal/activity"
	"github.com/JakeFAU/mediavid-client/internal/store"
)

// StoreSink appends download milestones to a store.HistoryRepository.
type StoreSink struct {
	repo   store.HistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.HistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes one history row per auto-download or transfer event and
// returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []activity.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		rec, ok := historyRecord(evt)
		if !ok {
			continue
		}
		if err := s.repo.RecordDownload(ctx, rec); err != nil {
			return fmt.Errorf("record download history: %w", err)
		}
	}
	return nil
}

func historyRecord(evt activity.Event) (store.HistoryRecord, bool) {
	rec := store.HistoryRecord{
		ItemID:      evt.ItemID,
		DownloadURL: evt.URL,
		Location:    evt.Location,
		Bytes:       evt.Bytes,
		Checksum:    evt.Checksum,
		Note:        evt.Note,
		RecordedAt:  evt.TS,
	}
	switch evt.Kind {
	case activity.KindAutoDownload:
		rec.Outcome = store.OutcomeTriggered
	case activity.KindTransferDone:
		rec.Outcome = store.OutcomeStored
	case activity.KindTransferFailed:
		rec.Outcome = store.OutcomeFailed
	default:
		return store.HistoryRecord{}, false
	}
	return rec, true
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
