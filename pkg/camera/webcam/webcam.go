// Package webcam captures frames from a local device with OpenCV.
//
// Importing it registers the "webcam" camera source:
//
//	import _ "github.com/teslashibe/go-wayfinder/pkg/camera/webcam"
package webcam

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
)

func init() {
	camera.Register(camera.SourceWebcam, func(cfg camera.Config, logger *slog.Logger) (camera.Source, error) {
		return New(cfg, logger), nil
	})
}

// Webcam captures from a local device with OpenCV and encodes JPEG.
type Webcam struct {
	device  string
	width   atomic.Int64
	height  atomic.Int64
	quality atomic.Int64
	every   atomic.Int64 // nanoseconds between delivered frames

	mu  sync.Mutex
	vc *gocv.VideoCapture

	logger *slog.Logger
}

// New creates a webcam source. The device is opened by Run.
func New(cfg camera.Config, logger *slog.Logger) *Webcam {
	w := &Webcam{
		device: cfg.Device,
		logger: logger.With("component", "camera.webcam"),
	}
	w.store(cfg)
	return w
}

// Name implements Source.
func (w *Webcam) Name() string {
	return "webcam:" + w.device
}

// Apply updates resolution, rate and quality on the running device.
func (w *Webcam) Apply(cfg camera.Config) error {
	w.store(cfg)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.vc != nil {
		w.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		w.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	return nil
}

func (w *Webcam) store(cfg camera.Config) {
	w.width.Store(int64(cfg.Width))
	w.height.Store(int64(cfg.Height))
	w.quality.Store(int64(cfg.Quality))
	w.every.Store(int64(cfg.Interval()))
}

// Run implements Source.
func (w *Webcam) Run(ctx context.Context, h camera.Handler) error {
	vc, err := w.open()
	if err != nil {
		return err
	}
	defer func() {
		w.mu.Lock()
		w.vc = nil
		w.mu.Unlock()
		vc.Close()
	}()

	img := gocv.NewMat()
	defer img.Close()

	w.logger.Info("capturing",
		"device", w.device,
		"width", w.width.Load(),
		"height", w.height.Load(),
	)

	var last time.Time
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		w.mu.Lock()
		ok := vc.Read(&img)
		w.mu.Unlock()
		if !ok || img.Empty() {
			misses++
			if misses >= 50 {
				return fmt.Errorf("webcam: device %s stopped delivering frames", w.device)
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}
		misses = 0

		// Keep draining the device at its own rate; only encode what we deliver.
		now := time.Now()
		if now.Sub(last) < time.Duration(w.every.Load()) {
			continue
		}
		last = now

		data, err := encodeJPEG(img, int(w.quality.Load()))
		if err != nil {
			w.logger.Warn("encode failed", "error", err)
			continue
		}
		h(camera.Frame{
			Data:       data,
			Width:      img.Cols(),
			Height:     img.Rows(),
			MIME:       camera.MIMEJPEG,
			CapturedAt: now,
		})
	}
}

func (w *Webcam) open() (*gocv.VideoCapture, error) {
	var device interface{} = w.device
	if idx, err := strconv.Atoi(w.device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("webcam: open %s: %w", w.device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w.width.Load()))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(w.height.Load()))

	w.mu.Lock()
	w.vc = vc
	w.mu.Unlock()
	return vc, nil
}

// encodeJPEG returns a Go-owned copy of the encoded image.
func encodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	native := buf.GetBytes()
	out := make([]byte, len(native))
	copy(out, native)
	return out, nil
}

// Verify Webcam implements Source at compile time.
var _ camera.Source = (*Webcam)(nil)
