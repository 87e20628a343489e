package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfinder/pkg/framegate"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/status"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	State        status.State `json:"state"`
	Running      bool         `json:"running"`
	Busy         bool         `json:"busy"`
	AudioEnabled bool         `json:"audio_enabled"`
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	Pipeline pipeline.Metrics `json:"pipeline"`
	Frames   *framegate.Stats `json:"frames,omitempty"`
	Speech   *SpeechStats     `json:"speech,omitempty"`
	Latency  string           `json:"latency"`
	Viewers  int              `json:"viewers"`
}

// SpeechStats counts speech gate decisions.
type SpeechStats struct {
	Spoken     uint64 `json:"spoken"`
	Suppressed uint64 `json:"suppressed"`
}

// AudioRequest is the body of POST /api/audio.
type AudioRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) status() StatusResponse {
	ctl := s.opts.Controller
	return StatusResponse{
		State:        ctl.State(),
		Running:      ctl.Running(),
		Busy:         ctl.Busy(),
		AudioEnabled: ctl.AudioEnabled(),
	}
}

// handleStatus returns the pipeline state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleMetrics returns pipeline, frame gate and speech counters
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	m := s.opts.Controller.Metrics()
	resp := MetricsResponse{
		Pipeline: m,
		Latency:  m.FormatLatency(),
		Viewers:  s.statusHub.ClientCount(),
	}
	if s.opts.FrameStats != nil {
		st := s.opts.FrameStats()
		resp.Frames = &st
	}
	if s.opts.SpeechStats != nil {
		spoken, suppressed := s.opts.SpeechStats()
		resp.Speech = &SpeechStats{Spoken: spoken, Suppressed: suppressed}
	}
	return c.JSON(resp)
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	s.opts.Controller.Start()
	s.logger.Info("started from dashboard")
	return c.JSON(s.status())
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.opts.Controller.Stop()
	s.logger.Info("stopped from dashboard")
	return c.JSON(s.status())
}

func (s *Server) handleAudio(c *fiber.Ctx) error {
	var req AudioRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": `body must be {"enabled": true|false}`,
		})
	}
	s.opts.Controller.SetAudioEnabled(*req.Enabled)
	return c.JSON(s.status())
}

// handleGetCamera returns the capture settings
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings unavailable"})
	}
	return c.JSON(s.opts.Camera.GetConfig())
}

// handleUpdateCamera applies a partial update or preset
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "camera settings unavailable"})
	}
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}
	if err := s.opts.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.opts.Camera.GetConfig())
}

// handleStatusWS sends the current state as a change, then every change
func (s *Server) handleStatusWS(c *websocket.Conn) {
	st := s.opts.Controller.State()
	if err := c.WriteJSON(status.Change{From: st, To: st, Timestamp: time.Now()}); err != nil {
		return
	}
	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	client.Run() // Blocks until the connection closes
}
