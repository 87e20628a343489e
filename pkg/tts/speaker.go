package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-wayfinder/pkg/speech"
)

// Speaker is a speech.Engine backed by a Provider and a Player.
//
// Each Speak cancels the utterance in progress, then synthesizes and plays
// the new one on its own goroutine. Playback is serialized so two
// utterances never overlap.
type Speaker struct {
	provider Provider
	player   Player
	logger   *slog.Logger

	ready  atomic.Bool
	events chan speech.Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	current string

	playMu sync.Mutex
	wg     sync.WaitGroup
}

// NewSpeaker creates a speaker. It is not ready until Init succeeds.
func NewSpeaker(provider Provider, player Player, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		provider: provider,
		player:   player,
		logger:   logger.With("component", "tts.speaker"),
		events:   make(chan speech.Event, 32),
	}
}

// Init health-checks the provider and flips the readiness signal.
func (s *Speaker) Init(ctx context.Context) error {
	if err := s.provider.Health(ctx); err != nil {
		s.logger.Warn("tts provider unhealthy", "error", err)
		return err
	}
	s.ready.Store(true)
	s.logger.Info("tts ready")
	return nil
}

// Ready implements speech.Engine.
func (s *Speaker) Ready() bool {
	return s.ready.Load()
}

// Events implements speech.Engine.
func (s *Speaker) Events() <-chan speech.Event {
	return s.events
}

// Speak implements speech.Engine. It returns immediately.
func (s *Speaker) Speak(ctx context.Context, text, utteranceID string) error {
	if !s.Ready() {
		return speech.ErrNotReady
	}

	uctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.current = utteranceID
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(uctx, cancel, text, utteranceID)
	return nil
}

// Stop implements speech.Engine.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// Close stops speech, waits for playback goroutines and closes the provider.
func (s *Speaker) Close() error {
	s.ready.Store(false)
	s.Stop()
	s.wg.Wait()
	return s.provider.Close()
}

func (s *Speaker) run(ctx context.Context, cancel context.CancelFunc, text, id string) {
	defer s.wg.Done()
	defer s.release(cancel, id)

	audio, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		s.finish(ctx, id, err)
		return
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()
	if ctx.Err() != nil {
		s.finish(ctx, id, nil)
		return
	}

	s.emit(speech.Event{Kind: speech.EventStarted, UtteranceID: id})
	s.finish(ctx, id, s.player.Play(ctx, audio))
}

// finish reports the end of an utterance. Interruptions are not errors.
func (s *Speaker) finish(ctx context.Context, id string, err error) {
	if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("utterance failed", "utterance_id", id, "error", err)
		s.emit(speech.Event{Kind: speech.EventError, UtteranceID: id, Err: err})
		return
	}
	s.emit(speech.Event{Kind: speech.EventDone, UtteranceID: id})
}

func (s *Speaker) release(cancel context.CancelFunc, id string) {
	cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == id {
		s.cancel = nil
	}
}

func (s *Speaker) emit(ev speech.Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("event dropped", "kind", ev.Kind.String(), "utterance_id", ev.UtteranceID)
	}
}

// Verify Speaker implements speech.Engine at compile time.
var _ speech.Engine = (*Speaker)(nil)
