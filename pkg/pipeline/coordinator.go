// Package pipeline connects admitted camera frames to vision analysis,
// speech and the status machine.
//
// The Coordinator runs at most one analysis at a time. Frames that arrive
// while a call is outstanding are dropped, not queued, so throughput is
// bounded by analysis latency rather than by the camera's frame rate.
//
//	gate := framegate.New(2)
//	coord, _ := pipeline.New(pipeline.DefaultConfig(), pipeline.Deps{...})
//	coord.Start()
//	src.Run(ctx, pipeline.Feed(ctx, gate, coord))
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/framegate"
	"github.com/teslashibe/go-wayfinder/pkg/netcheck"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
	"github.com/teslashibe/go-wayfinder/pkg/status"
	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

// ErrNoAnalyzer is returned by New when Deps.Analyzer is nil.
var ErrNoAnalyzer = errors.New("pipeline: analyzer required")

// MessageOffline is the error status shown when the device has no network.
const MessageOffline = "No internet connection"

// Speaker receives utterances derived from analysis results.
// *speech.Gate implements it. SpeakIfAllowed is called with the
// coordinator's lock held and must not block or call back into it.
type Speaker interface {
	SpeakIfAllowed(text string, audioEnabled bool, window time.Duration) bool
}

// Config tunes the coordinator.
type Config struct {
	// DedupeWindow suppresses repeating the same utterance. Zero means the
	// speech gate's default.
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`

	// AnalysisTimeout bounds one analysis call. Zero leaves it to the
	// vision transport's own timeouts.
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout"`
}

// DefaultConfig returns the standard coordinator settings.
func DefaultConfig() Config {
	return Config{
		DedupeWindow: speech.DefaultDedupeWindow,
	}
}

// Deps are the collaborators of a Coordinator. Analyzer is required.
type Deps struct {
	Analyzer vision.Analyzer
	Network  netcheck.Checker
	Speaker  Speaker
	Status   *status.Machine

	// Gate, when set, is reset on every Start so the first frame after a
	// restart is admitted immediately.
	Gate *framegate.Gate

	Metrics *MetricsCollector
	Logger  *slog.Logger
}

// Coordinator owns the single-flight analysis slot.
type Coordinator struct {
	cfg      Config
	analyzer vision.Analyzer
	network  netcheck.Checker
	speaker  Speaker
	status   *status.Machine
	gate     *framegate.Gate
	metrics  *MetricsCollector
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	latched bool // configuration error; frames dropped until Start
	token   string
	cancel  context.CancelFunc

	wg sync.WaitGroup
}

// New creates a coordinator in the stopped state.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Analyzer == nil {
		return nil, ErrNoAnalyzer
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		cfg:      cfg,
		analyzer: deps.Analyzer,
		network:  deps.Network,
		speaker:  deps.Speaker,
		status:   deps.Status,
		gate:     deps.Gate,
		metrics:  deps.Metrics,
		logger:   logger.With("component", "pipeline.coordinator"),
	}
	if c.network == nil {
		c.network = netcheck.Static(true)
	}
	if c.speaker == nil {
		c.speaker = silent{}
	}
	if c.status == nil {
		c.status = status.NewMachine(logger)
	}
	if c.metrics == nil {
		c.metrics = NewMetricsCollector()
	}
	return c, nil
}

// Start arms the coordinator and moves the machine to Running. It cancels
// any call left over from a previous cycle. Analysis begins with the next
// admitted frame.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.started = true
	c.latched = false
	if c.gate != nil {
		c.gate.Reset()
	}
	c.status.Dispatch(status.EventStart{})
	c.logger.Info("pipeline started")
}

// Stop cancels the in-flight call, if any, and moves the machine to Idle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelLocked() {
		c.logger.Debug("in-flight analysis cancelled")
	}
	c.started = false
	c.latched = false
	c.status.Dispatch(status.EventStop{})
	c.logger.Info("pipeline stopped")
}

// cancelLocked cancels and clears the in-flight token. c.mu must be held.
func (c *Coordinator) cancelLocked() bool {
	if c.token == "" {
		return false
	}
	c.cancel()
	c.token = ""
	c.cancel = nil
	return true
}

// OnFrame offers a frame for analysis. It never blocks on the network and
// reports whether the frame started an analysis.
func (c *Coordinator) OnFrame(f camera.Frame) bool {
	c.metrics.FrameOffered()

	c.mu.Lock()
	if !c.started || c.latched {
		c.mu.Unlock()
		c.metrics.DroppedStopped()
		return false
	}

	if !c.network.HasInternet() {
		c.status.Dispatch(status.EventFailed{Message: MessageOffline, Recoverable: true})
		c.mu.Unlock()
		c.metrics.DroppedOffline()
		c.logger.Debug("frame dropped, offline")
		return false
	}

	if c.token != "" {
		c.mu.Unlock()
		c.metrics.DroppedBusy()
		c.logger.Debug("frame dropped, analysis in flight")
		return false
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.cfg.AnalysisTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.cfg.AnalysisTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	token := uuid.NewString()
	c.token = token
	c.cancel = cancel
	c.status.Dispatch(status.EventAnalyzing{})
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.AnalysisStarted()
	go c.analyze(ctx, token, f)
	return true
}

func (c *Coordinator) analyze(ctx context.Context, token string, f camera.Frame) {
	defer c.wg.Done()

	mime := f.MIME
	if mime == "" {
		mime = vision.MIMEJPEG
	}
	started := time.Now()
	res, err := c.analyzer.Analyze(ctx, f.Data, mime)
	elapsed := time.Since(started)
	if err == nil && res == nil {
		err = &vision.ShapeError{Provider: "pipeline", Err: errors.New("nil result")}
	}

	c.mu.Lock()
	if c.token != token {
		// Superseded by Stop or Start; the token was cleared there.
		c.mu.Unlock()
		c.metrics.AnalysisCancelled()
		c.logger.Debug("discarding superseded analysis", "token", token, "error", err)
		return
	}
	c.token = ""
	c.cancel()
	c.cancel = nil

	if err != nil {
		kind := vision.Classify(err)
		switch kind {
		case vision.KindCanceled:
			c.mu.Unlock()
			c.metrics.AnalysisCancelled()
			return
		case vision.KindConfig:
			c.latched = true
			c.status.Dispatch(status.EventFailed{Message: err.Error(), Recoverable: false})
			c.mu.Unlock()
			c.metrics.AnalysisFailed(elapsed)
			c.logger.Error("analysis not configured", "error", err)
			return
		default:
			c.status.Dispatch(status.EventFailed{Message: err.Error(), Recoverable: true})
			c.mu.Unlock()
			c.metrics.AnalysisFailed(elapsed)
			c.logger.Warn("analysis failed", "kind", kind.String(), "error", err, "latency", elapsed)
			return
		}
	}

	c.status.Dispatch(status.EventAnalyzed{Status: Summarize(*res)})

	// Spoken under the lock: once Stop returns, nothing from the stopped
	// run reaches the speaker.
	spoke := false
	if text, ok := speech.Derive(*res); ok {
		spoke = c.speaker.SpeakIfAllowed(text, c.status.AudioEnabled(), c.cfg.DedupeWindow)
	}
	c.mu.Unlock()

	c.metrics.AnalysisSucceeded(elapsed)
	if spoke {
		c.metrics.UtteranceSpoken()
	}
	c.logger.Debug("analysis complete",
		"objects", len(res.Objects),
		"text", len(res.Text),
		"spoke", spoke,
		"latency", elapsed,
	)
}

// SetAudioEnabled toggles speech. The choice is remembered while stopped.
func (c *Coordinator) SetAudioEnabled(enabled bool) {
	c.status.Dispatch(status.EventAudio{Enabled: enabled})
}

// AudioEnabled returns the current audio preference.
func (c *Coordinator) AudioEnabled() bool {
	return c.status.AudioEnabled()
}

// State returns the current pipeline state.
func (c *Coordinator) State() status.State {
	return c.status.State()
}

// Status returns the machine the coordinator drives.
func (c *Coordinator) Status() *status.Machine {
	return c.status
}

// Running reports whether Start has been called without a later Stop.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Busy reports whether an analysis call is outstanding.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Wait blocks until every analysis goroutine has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Metrics returns a snapshot of the pipeline counters.
func (c *Coordinator) Metrics() Metrics {
	return c.metrics.Snapshot()
}

// MetricsCollector returns the collector the coordinator records into.
func (c *Coordinator) MetricsCollector() *MetricsCollector {
	return c.metrics
}

type silent struct{}

func (silent) SpeakIfAllowed(string, bool, time.Duration) bool { return false }
