package camera

import (
	"strings"
	"time"
)

// Source kinds.
const (
	SourceWebcam    = "webcam"
	SourceWebSocket = "websocket"
	SourceWebRTC    = "webrtc"
	SourceDirectory = "directory"
)

// Config holds capture settings.
type Config struct {
	// Source selects the capture backend: webcam, websocket, webrtc or directory.
	Source string `json:"source" mapstructure:"source"`

	// Device is the webcam index ("0") or a device path / stream URL for gocv.
	Device string `json:"device" mapstructure:"device"`

	// URL is the websocket frame feed or the WebRTC signalling server.
	URL string `json:"url" mapstructure:"url"`

	// Producer is the WebRTC producer name to attach to.
	Producer string `json:"producer" mapstructure:"producer"`

	// Dir holds *.jpg files replayed by the directory source.
	Dir  string `json:"dir" mapstructure:"dir"`
	Loop bool   `json:"loop" mapstructure:"loop"`

	Width     int `json:"width" mapstructure:"width"`         // Frame width in pixels
	Height    int `json:"height" mapstructure:"height"`       // Frame height in pixels
	Framerate int `json:"framerate" mapstructure:"framerate"` // Frames delivered per second
	Quality   int `json:"quality" mapstructure:"quality"`     // JPEG quality 1-100
}

// Limits for validation.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns a webcam config sized for cloud vision: large
// enough to read signs, small enough to upload quickly.
func DefaultConfig() Config {
	return Config{
		Source:    SourceWebcam,
		Device:    "0",
		Producer:  "wayfinder",
		Width:     1280,
		Height:    720,
		Framerate: 5,
		Quality:   80,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Source {
	case SourceWebcam:
		if strings.TrimSpace(c.Device) == "" {
			errors = append(errors, "device is required for the webcam source")
		}
	case SourceWebSocket, SourceWebRTC:
		if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
			errors = append(errors, "url must be a ws:// or wss:// address")
		}
	case SourceDirectory:
		if strings.TrimSpace(c.Dir) == "" {
			errors = append(errors, "dir is required for the directory source")
		}
	default:
		errors = append(errors, "source must be webcam, websocket, webrtc, or directory")
	}

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}

// Interval returns the spacing between delivered frames.
func (c *Config) Interval() time.Duration {
	if c.Framerate < 1 {
		return time.Second
	}
	return time.Second / time.Duration(c.Framerate)
}
