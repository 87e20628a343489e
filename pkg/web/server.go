// Package web provides a local dashboard for the wayfinder pipeline.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/framegate"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/status"
)

// Controller is the part of the pipeline the dashboard drives.
// *pipeline.Coordinator implements it.
type Controller interface {
	Start()
	Stop()
	SetAudioEnabled(enabled bool)
	AudioEnabled() bool
	State() status.State
	Running() bool
	Busy() bool
	Metrics() pipeline.Metrics
}

// Options configure a Server. Controller and Status are required.
type Options struct {
	Port       string
	Controller Controller
	Status     *status.Machine

	// Camera, when set, exposes runtime capture settings.
	Camera *camera.Manager

	// FrameStats and SpeechStats feed /api/metrics when set.
	FrameStats  func() framegate.Stats
	SpeechStats func() (spoken, suppressed uint64)

	Logger *slog.Logger
}

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	opts Options

	// Hub for websocket broadcast of state changes
	statusHub *hub.Hub

	logger *slog.Logger
}

// NewServer creates a new web dashboard server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:      opts,
		statusHub: hub.New("status", logger),
		logger:    logger.With("component", "web.server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Wayfinder Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/metrics", s.handleMetrics)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Post("/audio", s.handleAudio)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app (tests use app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the status hub, relays state changes to it and serves HTTP
// until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)

	if s.opts.Status != nil {
		changes, cancel := s.opts.Status.Subscribe(16)
		defer cancel()
		go hub.Relay(ctx, s.statusHub, changes)
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("web dashboard listening", "url", "http://localhost:"+s.opts.Port)
		errc <- s.app.Listen(":" + s.opts.Port)
	}()

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errc:
		return err
	}
}

// StatusHub returns the hub state changes are broadcast on.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}
