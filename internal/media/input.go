package media

import (
	"errors"
	"strings"
)

// DefaultQuality is the quality label used when none is chosen.
const DefaultQuality = "720p"

var (
	// ErrEmptyURL reports a blank source URL.
	ErrEmptyURL = errors.New("url is required")
	// ErrNoItems reports an empty batch submission.
	ErrNoItems = errors.New("at least one url is required")
)

// Options controls how submitted URLs are turned into requests.
type Options struct {
	Quality   string
	AudioOnly bool
}

// SplitURLs splits pasted text into one URL per non-blank line.
func SplitURLs(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// BuildBatchRequests converts raw URLs into batch entries. Blank URLs are
// dropped; ErrNoItems is returned when nothing remains.
func BuildBatchRequests(urls []string, opts Options) ([]BatchRequest, error) {
	items := make([]BatchRequest, 0, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		quality, format := opts.resolve()
		items = append(items, BatchRequest{
			URL:          u,
			Quality:      quality,
			OutputFormat: format,
			AudioOnly:    opts.AudioOnly,
		})
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

// BuildDownloadRequest builds a direct download request for url.
func BuildDownloadRequest(url string, opts Options, clientID string) (DownloadRequest, error) {
	u := strings.TrimSpace(url)
	if u == "" {
		return DownloadRequest{}, ErrEmptyURL
	}
	quality, format := opts.resolve()
	return DownloadRequest{
		URL:          u,
		Quality:      quality,
		OutputFormat: format,
		AudioOnly:    opts.AudioOnly,
		ClientID:     clientID,
	}, nil
}

// ValidateBatch rejects empty submissions and blank URLs.
func ValidateBatch(items []BatchRequest) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if strings.TrimSpace(item.URL) == "" {
			return ErrEmptyURL
		}
	}
	return nil
}

func (o Options) resolve() (*string, string) {
	if o.AudioOnly {
		return nil, FormatMP3
	}
	q := strings.TrimSpace(o.Quality)
	if q == "" {
		q = DefaultQuality
	}
	return &q, FormatMP4
}
