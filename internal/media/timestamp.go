package media

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp decodes ISO-8601 values with or without a zone offset. Values
// without an offset are interpreted as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts null, RFC 3339 and naive ISO-8601 strings.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, perr := time.ParseInLocation(layout, raw, time.UTC); perr == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unsupported timestamp %q", raw)
}

// MarshalJSON encodes the time as RFC 3339 or null when zero.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}
