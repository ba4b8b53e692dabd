package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/mediavid-client/internal/store"
)

// HistoryStore keeps download history in memory for development/testing.
type HistoryStore struct {
	mu      sync.RWMutex
	records []store.HistoryRecord
	nextID  int64
}

// NewHistoryStore constructs a HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// RecordDownload appends a row and assigns its ID.
func (s *HistoryStore) RecordDownload(_ context.Context, rec store.HistoryRecord) error {
	if rec.ItemID == "" {
		return errors.New("item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return nil
}

// ListRecent returns up to limit rows, newest first. A limit <= 0 returns all.
func (s *HistoryStore) ListRecent(_ context.Context, limit int) ([]store.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]store.HistoryRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
