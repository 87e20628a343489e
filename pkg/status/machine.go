package status

import (
	"log/slog"
	"sync"
	"time"
)

// Change describes one applied transition.
type Change struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine owns the current State. It is safe for concurrent use.
type Machine struct {
	mu    sync.RWMutex
	state State
	audio bool

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int

	logger *slog.Logger
}

// NewMachine creates a machine in Idle with audio enabled.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		state:  Idle(),
		audio:  true,
		subs:   make(map[int]chan Change),
		logger: logger.With("component", "status.machine"),
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AudioEnabled returns the audio preference. It is remembered across
// states and applied on the next entry into Running.
func (m *Machine) AudioEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audio
}

// Dispatch applies ev and returns the resulting state.
func (m *Machine) Dispatch(ev Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if a, ok := ev.(EventAudio); ok {
		m.audio = a.Enabled
	}
	to := Next(from, ev)
	if to.IsRunning() && !from.IsRunning() {
		to.AudioEnabled = m.audio
	}
	m.state = to

	// Published under the lock so subscribers see changes in order.
	if from != to {
		m.logger.Debug("state changed", "from", from.String(), "to", to.String())
		m.publish(Change{From: from, To: to, Timestamp: time.Now()})
	}
	return to
}

// Subscribe returns a channel receiving every change and a cancel function.
// Changes are dropped for subscribers whose buffer is full.
func (m *Machine) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Machine) publish(c Change) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
