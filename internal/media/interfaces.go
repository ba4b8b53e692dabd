package media

import (
	"context"
	"io"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator creates progress session tokens.
type IDGenerator interface {
	NewSessionToken() (string, error)
}

// BlobStore persists fetched media and returns a URI for the stored object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Level classifies user-visible notifications.
type Level string

// Notification levels.
const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notification is a one-shot user-visible message.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	ItemID  string    `json:"item_id,omitempty"`
	TS      time.Time `json:"ts"`
}

// Notifier surfaces notifications to the user. Implementations must not block
// for long; they are called from the polling loop.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}
