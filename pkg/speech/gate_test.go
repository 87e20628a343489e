package speech

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(engine Engine, opts ...GateOption) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts = append([]GateOption{WithClock(clock.Now), WithMaxUtterance(0)}, opts...)
	return NewGate(engine, opts...), clock
}

func TestGateDedupeWindow(t *testing.T) {
	engine := NewMockEngine(true)
	g, clock := newTestGate(engine)
	window := 7 * time.Second

	if !g.SpeakIfAllowed("chair ahead", true, window) {
		t.Fatal("first utterance should be spoken")
	}

	clock.Advance(3 * time.Second)
	if g.SpeakIfAllowed("chair ahead", true, window) {
		t.Error("repeat inside the window should be suppressed")
	}

	clock.Advance(5 * time.Second)
	if !g.SpeakIfAllowed("chair ahead", true, window) {
		t.Error("repeat after the window should be spoken")
	}

	if n := len(engine.Spoken()); n != 2 {
		t.Errorf("expected 2 utterances, got %d", n)
	}
	spoken, suppressed := g.Counts()
	if spoken != 2 || suppressed != 1 {
		t.Errorf("unexpected counts: spoken=%d suppressed=%d", spoken, suppressed)
	}
}

func TestGateNormalizesBeforeComparing(t *testing.T) {
	engine := NewMockEngine(true)
	g, _ := newTestGate(engine)

	g.SpeakIfAllowed("chair ahead", true, 0)
	if g.SpeakIfAllowed("  chair   ahead ", true, 0) {
		t.Error("whitespace variant should be treated as the same utterance")
	}

	spoken := engine.Spoken()
	if len(spoken) != 1 || spoken[0].Text != "chair ahead" {
		t.Errorf("unexpected utterances: %+v", spoken)
	}
}

func TestGateDifferentTextSpeaksImmediately(t *testing.T) {
	engine := NewMockEngine(true)
	g, _ := newTestGate(engine)

	g.SpeakIfAllowed("chair ahead", true, 0)
	if !g.SpeakIfAllowed("door ahead", true, 0) {
		t.Error("different utterance should interrupt and speak")
	}
	if !g.SpeakIfAllowed("chair ahead", true, 0) {
		t.Error("only the last spoken utterance is deduplicated")
	}
}

func TestGateSkips(t *testing.T) {
	tests := []struct {
		name  string
		ready bool
		audio bool
		text  string
	}{
		{"audio disabled", true, false, "chair ahead"},
		{"engine not ready", false, true, "chair ahead"},
		{"blank text", true, true, "  \t "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewMockEngine(tt.ready)
			g, _ := newTestGate(engine)
			if g.SpeakIfAllowed(tt.text, tt.audio, 0) {
				t.Error("expected no speech")
			}
			if len(engine.Spoken()) != 0 {
				t.Error("engine should not be called")
			}
		})
	}
}

func TestGateRecordsEvenWhenSpeakFails(t *testing.T) {
	engine := NewMockEngine(true)
	engine.SpeakFunc = func(ctx context.Context, text, id string) error {
		return ErrNotReady
	}
	g, _ := newTestGate(engine)

	if !g.SpeakIfAllowed("chair ahead", true, 0) {
		t.Fatal("expected speak attempt")
	}
	if g.SpeakIfAllowed("chair ahead", true, 0) {
		t.Error("failed utterance should still be recorded for dedupe")
	}
}

func TestGateTracksSpeaking(t *testing.T) {
	engine := NewMockEngine(true)
	g, _ := newTestGate(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	g.SpeakIfAllowed("chair ahead", true, 0)
	id := engine.Spoken()[0].UtteranceID

	engine.Emit(Event{Kind: EventStarted, UtteranceID: "stale"})
	engine.Emit(Event{Kind: EventStarted, UtteranceID: id})
	waitFor(t, g.Speaking)

	engine.Emit(Event{Kind: EventDone, UtteranceID: id})
	waitFor(t, func() bool { return !g.Speaking() })
}

func TestGateMaxUtteranceStopsEngine(t *testing.T) {
	engine := NewMockEngine(true)
	g := NewGate(engine, WithMaxUtterance(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	g.SpeakIfAllowed("long sign text", true, 0)
	id := engine.Spoken()[0].UtteranceID
	engine.Emit(Event{Kind: EventStarted, UtteranceID: id})

	waitFor(t, func() bool { return engine.StopCount() == 1 })
	if g.Speaking() {
		t.Error("gate should not report speaking after the cap")
	}
}

func TestGateMaxUtteranceIgnoresFinished(t *testing.T) {
	engine := NewMockEngine(true)
	g := NewGate(engine, WithMaxUtterance(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	g.SpeakIfAllowed("short", true, 0)
	id := engine.Spoken()[0].UtteranceID
	engine.Emit(Event{Kind: EventStarted, UtteranceID: id})
	engine.Emit(Event{Kind: EventDone, UtteranceID: id})

	time.Sleep(100 * time.Millisecond)
	if engine.StopCount() != 0 {
		t.Error("finished utterance must not be force-stopped")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
