package pipeline

import (
	"context"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/camera"
	"github.com/teslashibe/go-wayfinder/pkg/framegate"
)

// Feed returns the camera handler for a coordinator. Every frame passes
// the rate gate first; admitted frames go to OnFrame. The handler returns
// immediately and does nothing once ctx is done.
func Feed(ctx context.Context, gate *framegate.Gate, c *Coordinator) camera.Handler {
	return func(f camera.Frame) {
		if ctx.Err() != nil {
			return
		}
		now := f.CapturedAt
		if now.IsZero() {
			now = time.Now()
		}
		if !gate.Admit(now) {
			return
		}
		c.OnFrame(f)
	}
}
