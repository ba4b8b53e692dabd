// Package media defines the domain types shared by the backend client, the
// batch synchronizer and the transfer pipeline.
package media

import (
	"encoding/json"
	"io"
)

// Output formats accepted by the backend.
const (
	FormatMP4 = "mp4"
	FormatMP3 = "mp3"
)

// VideoFormat describes one downloadable rendition reported by the backend.
type VideoFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Quality    string  `json:"quality,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
}

// VideoInfo is the metadata returned for a single source URL.
type VideoInfo struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Thumbnail   string        `json:"thumbnail,omitempty"`
	Duration    float64       `json:"duration,omitempty"`
	Uploader    string        `json:"uploader,omitempty"`
	UploaderURL string        `json:"uploader_url,omitempty"`
	ViewCount   int64         `json:"view_count,omitempty"`
	Platform    string        `json:"platform,omitempty"`
	Formats     []VideoFormat `json:"formats,omitempty"`
}

// DownloadRequest asks the backend for a direct download. ClientID carries the
// session token the backend uses to push progress events.
type DownloadRequest struct {
	URL          string  `json:"url"`
	FormatID     string  `json:"format_id,omitempty"`
	Quality      *string `json:"quality"`
	OutputFormat string  `json:"output_format"`
	AudioOnly    bool    `json:"audio_only"`
	ClientID     string  `json:"client_id,omitempty"`
}

// QualityOption is one selectable quality label.
type QualityOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormatCatalog lists the quality labels the backend supports. Extra keeps the
// complete payload so fields added by the backend are not lost.
type FormatCatalog struct {
	QualityOptions []QualityOption            `json:"quality_options"`
	Extra          map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the raw payload.
func (c *FormatCatalog) UnmarshalJSON(data []byte) error {
	type plain FormatCatalog
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	delete(extra, "quality_options")
	*c = FormatCatalog(p)
	if len(extra) > 0 {
		c.Extra = extra
	}
	return nil
}

// BatchRequest is one entry submitted to the batch queue.
type BatchRequest struct {
	URL          string  `json:"url"`
	Quality      *string `json:"quality"`
	OutputFormat string  `json:"output_format"`
	AudioOnly    bool    `json:"audio_only"`
}

// BatchItem mirrors one server-owned queue entry.
type BatchItem struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Quality      *string    `json:"quality"`
	OutputFormat string     `json:"output_format"`
	AudioOnly    bool       `json:"audio_only"`
	Status       ItemStatus `json:"status"`
	Progress     int        `json:"progress"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
	Downloaded   bool       `json:"downloaded"`
	Filepath     string     `json:"filepath,omitempty"`
	CreatedAt    Timestamp  `json:"created_at"`
	StartedAt    Timestamp  `json:"started_at"`
	CompletedAt  Timestamp  `json:"completed_at"`
}

// QualityLabel returns the quality or a placeholder for best-available items.
func (i BatchItem) QualityLabel() string {
	if i.Quality == nil || *i.Quality == "" {
		return "best"
	}
	return *i.Quality
}

// QueueStatus holds the aggregate counts computed by the server.
type QueueStatus struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Paused      int `json:"paused"`
	Cancelled   int `json:"cancelled"`
}

// QueueSnapshot is the full queue view returned by one poll.
type QueueSnapshot struct {
	Items  []BatchItem  `json:"items"`
	Status *QueueStatus `json:"status"`
}

// Clone returns a deep copy of the item slice and status.
func (s QueueSnapshot) Clone() QueueSnapshot {
	out := QueueSnapshot{Items: append([]BatchItem(nil), s.Items...)}
	if s.Status != nil {
		status := *s.Status
		out.Status = &status
	}
	return out
}

// Item looks up an entry by id.
func (s QueueSnapshot) Item(id string) (BatchItem, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return BatchItem{}, false
}

// MessageResponse is the generic acknowledgement returned by mutations.
type MessageResponse struct {
	Message string `json:"message"`
}

// EnqueueResult is returned when items are added to the batch queue.
type EnqueueResult struct {
	Message     string       `json:"message"`
	ItemIDs     []string     `json:"item_ids"`
	QueueStatus *QueueStatus `json:"queue_status,omitempty"`
}

// Download is an open binary stream returned by the backend. Callers must
// close Body.
type Download struct {
	Body          io.ReadCloser
	Filename      string
	ContentType   string
	Disposition   string
	ContentLength int64
}

// Close releases the underlying stream.
func (d *Download) Close() error {
	if d == nil || d.Body == nil {
		return nil
	}
	return d.Body.Close()
}
