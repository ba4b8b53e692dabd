package media

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FormatDuration renders seconds as M:SS or H:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "00:00"
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// FormatViews abbreviates view counts with K and M suffixes.
func FormatViews(views int64) string {
	switch {
	case views <= 0:
		return "0"
	case views >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(views)/1_000_000)
	case views >= 1_000:
		return fmt.Sprintf("%.1fK", float64(views)/1_000)
	default:
		return strconv.FormatInt(views, 10)
	}
}

// FormatFileSize renders a byte count using binary units.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "unknown"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", size, units[unit])
}

// ExtractDomain returns the host of rawURL without a leading "www.", or an
// empty string when the URL does not parse.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
