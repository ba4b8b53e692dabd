// Package store defines interfaces for persistence dependencies (e.g. the
// download history). Implementations live in other packages; this package
// must not import database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured signals that no history backend was wired.
var ErrNotConfigured = errors.New("download history is not configured")

// Outcome mirrors the download_history.outcome column.
type Outcome string

// Recorded outcomes.
const (
	OutcomeTriggered Outcome = "triggered"
	OutcomeStored    Outcome = "stored"
	OutcomeFailed    Outcome = "failed"
)

// HistoryRecord is one audit row for an automatic download or a transfer.
type HistoryRecord struct {
	// ID is assigned by the repository.
	ID int64
	// ItemID is the batch item identifier.
	ItemID string
	// DownloadURL is the backend URL the file was fetched from.
	DownloadURL string
	// Location is the storage URI once the file is written.
	Location string
	// Outcome is triggered, stored or failed.
	Outcome Outcome
	// Bytes written to storage.
	Bytes int64
	// Checksum is the hex SHA-256 of the stored file.
	Checksum string
	// Note optionally stores an error message.
	Note string
	// RecordedAt is when the event happened.
	RecordedAt time.Time
}

// HistoryRepository persists the download audit trail. It is write-mostly and
// never consulted when deciding whether to trigger a download.
type HistoryRepository interface {
	// RecordDownload appends one row.
	RecordDownload(ctx context.Context, rec HistoryRecord) error
	// ListRecent returns the newest rows first.
	ListRecent(ctx context.Context, limit int) ([]HistoryRecord, error)
}
