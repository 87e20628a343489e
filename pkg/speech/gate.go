package speech

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultDedupeWindow suppresses an identical utterance for this long.
	DefaultDedupeWindow = 7 * time.Second

	// DefaultMaxUtterance is how long one utterance may play before it is
	// force-stopped.
	DefaultMaxUtterance = 5 * time.Second
)

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMaxUtterance sets the utterance hard cap. Zero disables it.
func WithMaxUtterance(d time.Duration) GateOption {
	return func(g *Gate) {
		g.maxUtterance = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = l
	}
}

// Gate speaks utterances through an Engine, suppressing repeats.
//
// SpeakIfAllowed may be called from any goroutine. Engine progress events
// and utterance deadlines are consumed by Run, which must be running for
// the hard cap to apply.
type Gate struct {
	engine       Engine
	maxUtterance time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu           sync.Mutex
	lastSpoken   string
	lastSpokenAt time.Time
	current      string

	speaking  atomic.Bool
	deadlines chan string

	spoken     atomic.Uint64
	suppressed atomic.Uint64
}

// NewGate creates a gate in front of engine.
func NewGate(engine Engine, opts ...GateOption) *Gate {
	g := &Gate{
		engine:       engine,
		maxUtterance: DefaultMaxUtterance,
		now:          time.Now,
		logger:       slog.Default(),
		deadlines:    make(chan string, 8),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "speech.gate")
	return g
}

// SpeakIfAllowed speaks text unless audio is off, the engine is not ready,
// the text is blank, or the same text was spoken less than window ago.
// A window of zero or less means DefaultDedupeWindow. It reports whether
// the engine was asked to speak.
func (g *Gate) SpeakIfAllowed(text string, audioEnabled bool, window time.Duration) bool {
	if !audioEnabled || !g.engine.Ready() {
		return false
	}
	norm := Normalize(text)
	if norm == "" {
		return false
	}
	if window <= 0 {
		window = DefaultDedupeWindow
	}

	g.mu.Lock()
	now := g.now()
	if norm == g.lastSpoken && now.Sub(g.lastSpokenAt) < window {
		g.mu.Unlock()
		g.suppressed.Add(1)
		g.logger.Debug("utterance suppressed", "text", norm)
		return false
	}
	id := uuid.NewString()
	g.lastSpoken = norm
	g.lastSpokenAt = now
	g.current = id
	g.mu.Unlock()

	g.spoken.Add(1)
	if err := g.engine.Speak(context.Background(), norm, id); err != nil {
		g.logger.Warn("speak failed", "utterance_id", id, "error", err)
	}

	if g.maxUtterance > 0 {
		time.AfterFunc(g.maxUtterance, func() {
			select {
			case g.deadlines <- id:
			default:
			}
		})
	}
	return true
}

// Run consumes engine events and utterance deadlines until ctx is done.
func (g *Gate) Run(ctx context.Context) {
	events := g.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			g.handleEvent(ev)

		case id := <-g.deadlines:
			g.handleDeadline(id)
		}
	}
}

func (g *Gate) handleEvent(ev Event) {
	if !g.isCurrent(ev.UtteranceID) {
		return
	}
	switch ev.Kind {
	case EventStarted:
		g.speaking.Store(true)
	case EventDone:
		g.speaking.Store(false)
	case EventError:
		g.speaking.Store(false)
		g.logger.Warn("utterance failed", "utterance_id", ev.UtteranceID, "error", ev.Err)
	}
}

func (g *Gate) handleDeadline(id string) {
	if !g.isCurrent(id) || !g.speaking.Load() {
		return
	}
	g.logger.Warn("utterance exceeded max duration, stopping",
		"utterance_id", id,
		"max", g.maxUtterance,
	)
	if err := g.engine.Stop(); err != nil {
		g.logger.Warn("stop failed", "error", err)
	}
	g.speaking.Store(false)
}

func (g *Gate) isCurrent(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return id == g.current
}

// Speaking reports whether the current utterance is playing.
func (g *Gate) Speaking() bool {
	return g.speaking.Load()
}

// Counts returns how many utterances were spoken and suppressed.
func (g *Gate) Counts() (spoken, suppressed uint64) {
	return g.spoken.Load(), g.suppressed.Load()
}
