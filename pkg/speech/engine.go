package speech

import (
	"context"
	"errors"
)

// ErrNotReady is returned by engines that have not finished initializing.
var ErrNotReady = errors.New("speech: engine not ready")

// EventKind is the type of an engine progress event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventDone
	EventError
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDone:
		return "done"
	default:
		return "error"
	}
}

// Event reports progress of one utterance.
type Event struct {
	Kind        EventKind
	UtteranceID string
	Err         error
}

// Engine is a text-to-speech backend.
type Engine interface {
	// Ready reports whether the engine finished initializing.
	Ready() bool

	// Speak flushes any current utterance and starts speaking text.
	// It must not block until playback finishes.
	Speak(ctx context.Context, text, utteranceID string) error

	// Stop interrupts the current utterance.
	Stop() error

	// Events delivers start/done/error progress for utterances.
	Events() <-chan Event
}
