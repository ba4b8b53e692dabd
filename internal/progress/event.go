package progress

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stage is the download phase reported by the backend.
type Stage string

// Known stages.
const (
	StageStarting    Stage = "starting"
	StageDownloading Stage = "downloading"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageStarting, StageDownloading, StageComplete, StageError:
		return true
	default:
		return false
	}
}

// Terminal reports whether s ends the session.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Event is one push message. The last one received defines the current state.
type Event struct {
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

var errMissingStage = errors.New("progress event missing stage")

// ParseEvent decodes a push payload. Progress is clamped to 0..100.
func ParseEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode progress event: %w", err)
	}
	if evt.Stage == "" {
		return Event{}, errMissingStage
	}
	if !evt.Stage.Valid() {
		return Event{}, fmt.Errorf("unknown progress stage %q", evt.Stage)
	}
	switch {
	case evt.Progress < 0:
		evt.Progress = 0
	case evt.Progress > 100:
		evt.Progress = 100
	}
	return evt, nil
}
