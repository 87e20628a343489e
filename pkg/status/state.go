// Package status holds the pipeline state machine: the single source of
// truth that the presentation layer reads.
//
// A State is one of Idle, Running{status, audio} or Error{message,
// recoverable}. Transitions are computed by the pure Next function; Machine
// adds locking and change notification on top.
package status

import "fmt"

// Kind identifies which variant a State holds.
type Kind int

const (
	KindIdle Kind = iota
	KindRunning
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRunning:
		return "running"
	case KindError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*k = KindIdle
	case "running":
		*k = KindRunning
	case "error":
		*k = KindError
	default:
		return fmt.Errorf("status: unknown kind %q", b)
	}
	return nil
}

// Status strings set by the pipeline.
const (
	StatusStarting  = "Starting…"
	StatusAnalyzing = "Analyzing…"
)

// State is a tagged union. Only the fields of the active Kind are meaningful.
type State struct {
	Kind Kind `json:"kind"`

	// Running
	Status       string `json:"status,omitempty"`
	AudioEnabled bool   `json:"audio_enabled,omitempty"`

	// Error
	Message     string `json:"message,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}

// Idle returns the initial state.
func Idle() State {
	return State{Kind: KindIdle}
}

// Running returns a running state.
func Running(status string, audioEnabled bool) State {
	return State{Kind: KindRunning, Status: status, AudioEnabled: audioEnabled}
}

// Failed returns an error state.
func Failed(message string, recoverable bool) State {
	return State{Kind: KindError, Message: message, Recoverable: recoverable}
}

// IsIdle reports whether s is Idle.
func (s State) IsIdle() bool { return s.Kind == KindIdle }

// IsRunning reports whether s is Running.
func (s State) IsRunning() bool { return s.Kind == KindRunning }

// IsError reports whether s is Error.
func (s State) IsError() bool { return s.Kind == KindError }

// String formats the state for logs.
func (s State) String() string {
	switch s.Kind {
	case KindRunning:
		return fmt.Sprintf("Running(%q, audio=%t)", s.Status, s.AudioEnabled)
	case KindError:
		return fmt.Sprintf("Error(%q, recoverable=%t)", s.Message, s.Recoverable)
	default:
		return "Idle"
	}
}
