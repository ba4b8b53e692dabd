// Package activity collects client-side events from the batch synchronizer,
// the transfer workers and progress channels and fans them out to sinks.
package activity

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindPollOK         Kind = "poll_ok"
	KindPollFailed     Kind = "poll_failed"
	KindAutoDownload   Kind = "auto_download"
	KindMutation       Kind = "mutation"
	KindTransferDone   Kind = "transfer_done"
	KindTransferFailed Kind = "transfer_failed"
	KindProgressStage  Kind = "progress_stage"
	KindChannelOpened  Kind = "channel_opened"
	KindChannelClosed  Kind = "channel_closed"
)

// Event captures a single client-side milestone.
type Event struct {
	// Kind denotes which milestone occurred.
	Kind Kind
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// ItemID scopes batch and transfer events to a queue item.
	ItemID string
	// Session scopes progress events to a channel session token.
	Session string
	// Status carries the item status or the mutation name.
	Status string
	// Stage carries the progress stage for channel events.
	Stage string
	// Progress is the last reported percentage.
	Progress float64
	// Bytes carries the size written by a transfer.
	Bytes int64
	// Dur captures poll or transfer latency.
	Dur time.Duration
	// URL is the source or download URL when relevant.
	URL string
	// Location is the storage URI of a finished transfer.
	Location string
	// Checksum is the hex SHA-256 of a finished transfer.
	Checksum string
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindPollOK, KindPollFailed, KindMutation:
	case KindAutoDownload, KindTransferDone, KindTransferFailed:
		if e.ItemID == "" {
			return fmt.Errorf("%s requires item id", e.Kind)
		}
	case KindProgressStage, KindChannelOpened, KindChannelClosed:
		if e.Session == "" {
			return fmt.Errorf("%s requires session", e.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
