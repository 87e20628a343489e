package speech

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockEngine implements Engine for testing.
type MockEngine struct {
	// SpeakFunc is called when Speak is invoked. If nil, Speak succeeds.
	SpeakFunc func(ctx context.Context, text, utteranceID string) error

	ready  atomic.Bool
	events chan Event

	mu     sync.Mutex
	spoken []MockUtterance
	stops  int
}

// MockUtterance records a Speak invocation.
type MockUtterance struct {
	Text        string
	UtteranceID string
}

// NewMockEngine creates a mock engine.
func NewMockEngine(ready bool) *MockEngine {
	m := &MockEngine{events: make(chan Event, 16)}
	m.ready.Store(ready)
	return m
}

// SetReady flips the readiness signal.
func (m *MockEngine) SetReady(ready bool) {
	m.ready.Store(ready)
}

// Ready implements Engine.
func (m *MockEngine) Ready() bool {
	return m.ready.Load()
}

// Speak records the utterance and calls SpeakFunc.
func (m *MockEngine) Speak(ctx context.Context, text, utteranceID string) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, MockUtterance{Text: text, UtteranceID: utteranceID})
	fn := m.SpeakFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, utteranceID)
	}
	return nil
}

// Stop records the interrupt.
func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

// Events implements Engine.
func (m *MockEngine) Events() <-chan Event {
	return m.events
}

// Emit sends a progress event as the engine would.
func (m *MockEngine) Emit(ev Event) {
	m.events <- ev
}

// Spoken returns all recorded utterances.
func (m *MockEngine) Spoken() []MockUtterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockUtterance, len(m.spoken))
	copy(out, m.spoken)
	return out
}

// StopCount returns how many times Stop was called.
func (m *MockEngine) StopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Verify MockEngine implements Engine at compile time.
var _ Engine = (*MockEngine)(nil)
