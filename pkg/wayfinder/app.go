// Package wayfinder assembles the frame pipeline into a runnable
// application: camera, frame gate, coordinator, vision, speech and the
// local dashboard.
package wayfinder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/framegate"
	"github.com/teslashibe/go-wayfinder/pkg/netcheck"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/speech"
	"github.com/teslashibe/go-wayfinder/pkg/status"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
	"github.com/teslashibe/go-wayfinder/pkg/vision"
	"github.com/teslashibe/go-wayfinder/pkg/web"
)

// retryDelay is the pause between vision retries.
const retryDelay = 500 * time.Millisecond

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger

	// Pipeline
	status      *status.Machine
	frameGate   *framegate.Gate
	coordinator *pipeline.Coordinator
	analyzer    vision.Analyzer
	network     *netcheck.Dialer

	// Speech; nil when no TTS provider is configured
	speechGate *speech.Gate
	speaker    *tts.Speaker

	// Capture
	source        camera.Source
	cameraManager *camera.Manager

	// Web dashboard
	webServer *web.Server

	wg sync.WaitGroup
}

// New builds every component from cfg. Nothing touches the network or the
// camera until Init and Run.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		config: cfg,
		logger: logger.With("component", "wayfinder.app"),
	}

	analyzer, err := newAnalyzer(cfg.Vision, logger)
	if err != nil {
		return nil, fmt.Errorf("vision: %w", err)
	}
	a.analyzer = analyzer

	a.speaker = newSpeaker(cfg.TTS, logger)
	if a.speaker != nil {
		a.speechGate = speech.NewGate(a.speaker,
			speech.WithMaxUtterance(cfg.Speech.MaxUtterance),
			speech.WithLogger(logger),
		)
	}

	a.source, err = camera.New(cfg.Camera, logger)
	if err != nil {
		return nil, err
	}
	a.cameraManager = camera.NewManager(cfg.Camera)
	if ap, ok := a.source.(interface{ Apply(camera.Config) error }); ok {
		a.cameraManager.OnConfigChange = ap.Apply
	}

	a.status = status.NewMachine(logger)
	a.frameGate = framegate.New(cfg.MaxFPS)
	a.network = netcheck.NewDialer(cfg.Network.ProbeAddress, cfg.Network.Timeout, cfg.Network.TTL, logger)

	metrics := pipeline.NewMetricsCollector()
	metrics.OnUpdate(func(m pipeline.Metrics) {
		a.logger.Debug("analysis latency", "summary", m.FormatLatency())
	})

	deps := pipeline.Deps{
		Analyzer: analyzer,
		Network:  a.network,
		Status:   a.status,
		Gate:     a.frameGate,
		Metrics:  metrics,
		Logger:   logger,
	}
	if a.speechGate != nil {
		deps.Speaker = a.speechGate
	}
	a.coordinator, err = pipeline.New(cfg.Pipeline, deps)
	if err != nil {
		return nil, err
	}

	if cfg.Dashboard.Enabled {
		opts := web.Options{
			Port:       cfg.Dashboard.Port,
			Controller: a.coordinator,
			Status:     a.status,
			Camera:     a.cameraManager,
			FrameStats: a.frameGate.Stats,
			Logger:     logger,
		}
		if a.speechGate != nil {
			opts.SpeechStats = a.speechGate.Counts
		}
		a.webServer = web.NewServer(opts)
	}

	return a, nil
}

// newAnalyzer builds the configured vision providers, chained in order when
// there is more than one. Keys are read from the environment per request.
func newAnalyzer(cfg config.VisionConfig, logger *slog.Logger) (vision.Analyzer, error) {
	common := []vision.Option{
		vision.WithTimeouts(cfg.ConnectTimeout, cfg.ReadWriteTimeout),
		vision.WithRetry(cfg.MaxRetries, retryDelay),
		vision.WithLogger(logger),
	}

	var analyzers []vision.Analyzer
	for _, name := range cfg.Providers {
		switch name {
		case config.ProviderGemini:
			analyzers = append(analyzers, vision.NewGemini(slices.Concat(common, []vision.Option{
				vision.WithKeySource(config.KeyFunc(config.GeminiKeyEnv...)),
				vision.WithModel(cfg.GeminiModel),
			})...))
		case config.ProviderOpenAI:
			analyzers = append(analyzers, vision.NewOpenAI(slices.Concat(common, []vision.Option{
				vision.WithKeySource(config.KeyFunc(config.OpenAIKeyEnv...)),
				vision.WithModel(cfg.OpenAIModel),
			})...))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	switch len(analyzers) {
	case 0:
		return nil, vision.ErrProviderUnavailable
	case 1:
		return analyzers[0], nil
	default:
		return vision.NewChainWithLogger(logger, analyzers...)
	}
}

// newSpeaker builds the TTS speaker. Providers without credentials are
// skipped; nil means speech is disabled.
func newSpeaker(cfg config.TTSConfig, logger *slog.Logger) *tts.Speaker {
	var providers []tts.Provider
	for _, name := range cfg.Providers {
		var (
			p   tts.Provider
			err error
		)
		switch name {
		case config.ProviderOpenAI:
			p, err = tts.NewOpenAI(
				tts.WithAPIKey(config.FirstEnv(config.OpenAIKeyEnv...)),
				tts.WithVoice(cfg.OpenAIVoice),
				tts.WithSpeed(cfg.Speed),
				tts.WithLogger(logger),
			)
		case config.ProviderElevenLabs:
			p, err = tts.NewElevenLabs(
				tts.WithAPIKey(config.FirstEnv(config.ElevenLabsKeyEnv...)),
				tts.WithVoice(cfg.ElevenLabsVoice),
				tts.WithLogger(logger),
			)
		default:
			err = fmt.Errorf("unknown provider %q", name)
		}
		if err != nil {
			logger.Warn("tts provider disabled", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}

	var provider tts.Provider
	switch len(providers) {
	case 0:
		if len(cfg.Providers) > 0 {
			logger.Warn("speech disabled, no usable tts provider")
		}
		return nil
	case 1:
		provider = providers[0]
	default:
		chain, err := tts.NewChainWithLogger(logger, providers...)
		if err != nil {
			logger.Warn("speech disabled", "error", err)
			return nil
		}
		provider = chain
	}

	player := tts.NewCommandPlayer(strings.Fields(cfg.PlayerCommand), logger)
	return tts.NewSpeaker(provider, player, logger)
}

// Init checks connectivity and the TTS provider. Neither failure is fatal:
// the pipeline reports offline frames and speech stays silent until ready.
func (a *App) Init(ctx context.Context) error {
	if !a.network.Probe(ctx) {
		a.logger.Warn("no internet connection at startup")
	}
	if a.speaker != nil {
		if err := a.speaker.Init(ctx); err != nil {
			a.logger.Warn("speech unavailable", "error", err)
		}
	}
	a.logger.Info("initialized",
		"camera", a.source.Name(),
		"max_fps", a.config.MaxFPS,
		"min_interval", a.frameGate.MinInterval(),
		"speech", a.speaker != nil,
	)
	return nil
}

// Run starts the background tasks and the camera.
// Blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.speechGate != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.speechGate.Run(ctx)
		}()
	}

	if a.webServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.webServer.Run(ctx); err != nil {
				a.logger.Error("web server", "error", err)
			}
		}()
	}

	if a.config.AutoStart {
		a.coordinator.Start()
	}

	err := a.source.Run(ctx, pipeline.Feed(ctx, a.frameGate, a.coordinator))
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("camera %s: %w", a.source.Name(), err)
	}
	a.logger.Info("camera finished", "source", a.source.Name())

	// A finite source ends before shutdown; keep serving until cancelled.
	<-ctx.Done()
	return nil
}

// Shutdown stops the pipeline and waits for in-flight work.
func (a *App) Shutdown() {
	a.coordinator.Stop()
	a.coordinator.Wait()
	if a.speaker != nil {
		if err := a.speaker.Close(); err != nil {
			a.logger.Warn("close speaker", "error", err)
		}
	}
	a.wg.Wait()
	a.logger.Info("shutdown complete", "metrics", a.coordinator.Metrics().FormatLatency())
}

// Coordinator returns the pipeline coordinator.
func (a *App) Coordinator() *pipeline.Coordinator {
	return a.coordinator
}

// Status returns the state machine.
func (a *App) Status() *status.Machine {
	return a.status
}
