// Package camera delivers still frames from a capture source.
//
// A Source calls its Handler for every captured frame from its own
// goroutine. Handlers must return quickly; the pipeline's FrameGate is
// the first thing they hit.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG for DecodeConfig
	"log/slog"
	"sync"
	"time"
)

// MIMEJPEG is the MIME type of every frame produced by this package.
const MIMEJPEG = "image/jpeg"

// Frame is one encoded still image. Data is owned by the receiver; sources
// never reuse it.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	MIME       string
	CapturedAt time.Time
}

// Handler receives frames.
type Handler func(Frame)

// Source produces frames until its context is cancelled.
type Source interface {
	// Run captures frames and passes them to h. It returns nil when ctx is
	// cancelled or a finite source is exhausted.
	Run(ctx context.Context, h Handler) error

	// Name identifies the source in logs.
	Name() string
}

// Factory builds a Source from its configuration.
type Factory func(cfg Config, logger *slog.Logger) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a source available to New under name. Sources with native
// dependencies register themselves from their own package's init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New creates the source selected by cfg.Source.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Source {
	case SourceWebSocket:
		return NewWebSocket(cfg, logger), nil
	case SourceWebRTC:
		return NewWebRTC(cfg, logger), nil
	case SourceDirectory:
		return NewDirectory(cfg, logger), nil
	}

	registryMu.RLock()
	f, ok := registry[cfg.Source]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("camera: source %q not available in this build", cfg.Source)
	}
	return f(cfg, logger)
}

// jpegFrame builds a Frame from encoded JPEG bytes, reading the dimensions
// from the header.
func jpegFrame(data []byte, at time.Time) Frame {
	f := Frame{Data: data, MIME: MIMEJPEG, CapturedAt: at}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		f.Width = cfg.Width
		f.Height = cfg.Height
	}
	return f
}
