package media

// ItemStatus is the lifecycle state of a batch item. The server owns every
// transition; the client only reads statuses to decide which actions to offer.
type ItemStatus string

// Supported batch item statuses.
const (
	StatusPending     ItemStatus = "pending"
	StatusDownloading ItemStatus = "downloading"
	StatusCompleted   ItemStatus = "completed"
	StatusFailed      ItemStatus = "failed"
	StatusCancelled   ItemStatus = "cancelled"
	StatusPaused      ItemStatus = "paused"
)

var transitions = map[ItemStatus][]ItemStatus{
	StatusPending:     {StatusDownloading, StatusPaused, StatusCancelled},
	StatusPaused:      {StatusPending, StatusCancelled},
	StatusDownloading: {StatusCompleted, StatusFailed, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed, StatusCancelled, StatusPaused:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the server may move an item from s to next.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CanPause reports whether a pause request makes sense for the item.
func (s ItemStatus) CanPause() bool { return s.CanTransition(StatusPaused) }

// CanResume reports whether a resume request makes sense for the item.
func (s ItemStatus) CanResume() bool { return s == StatusPaused }

// CanCancel reports whether a cancel request makes sense for the item.
func (s ItemStatus) CanCancel() bool { return s.CanTransition(StatusCancelled) }
