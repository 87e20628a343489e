// Package framegate rate-limits a high-frequency frame stream down to a
// bounded analysis rate.
//
// Admit is lock-free and never blocks, so it is safe to call directly from
// a camera capture callback.
package framegate

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultMaxFPS is the analysis rate used when none (or an invalid one) is configured.
const DefaultMaxFPS = 2.0

// never marks a gate that has not admitted anything yet.
const never int64 = math.MinInt64

// Gate admits at most one frame per minimum interval.
type Gate struct {
	epoch         time.Time
	minIntervalMs int64
	lastAdmitted  atomic.Int64

	admitted atomic.Uint64
	dropped  atomic.Uint64
}

// Stats holds admission counters.
type Stats struct {
	Admitted uint64 `json:"admitted"`
	Dropped  uint64 `json:"dropped"`
}

// New creates a gate for maxFPS analyses per second.
// Non-positive, infinite or NaN values fall back to DefaultMaxFPS.
func New(maxFPS float64) *Gate {
	if maxFPS <= 0 || math.IsNaN(maxFPS) || math.IsInf(maxFPS, 0) {
		maxFPS = DefaultMaxFPS
	}
	interval := int64(math.Round(1000 / maxFPS))
	if interval < 1 {
		interval = 1
	}

	g := &Gate{epoch: time.Now(), minIntervalMs: interval}
	g.lastAdmitted.Store(never)
	return g
}

// Admit reports whether a frame captured at now may be analyzed.
// A true result records now as the last admission.
//
// Times are measured against the gate's creation on the monotonic clock
// when now carries a monotonic reading. A timestamp earlier than the last
// admission means the wall clock stepped back; the frame is admitted and
// becomes the new reference.
func (g *Gate) Admit(now time.Time) bool {
	ms := now.Sub(g.epoch).Milliseconds()
	for {
		last := g.lastAdmitted.Load()
		if last != never && ms >= last && ms-last < g.minIntervalMs {
			g.dropped.Add(1)
			return false
		}
		if g.lastAdmitted.CompareAndSwap(last, ms) {
			g.admitted.Add(1)
			return true
		}
		// Lost the race to a concurrent admit; re-check against its timestamp.
	}
}

// Reset forgets the last admission so the next frame is admitted.
func (g *Gate) Reset() {
	g.lastAdmitted.Store(never)
}

// MinInterval returns the minimum spacing between admitted frames.
func (g *Gate) MinInterval() time.Duration {
	return time.Duration(g.minIntervalMs) * time.Millisecond
}

// Stats returns the admission counters.
func (g *Gate) Stats() Stats {
	return Stats{
		Admitted: g.admitted.Load(),
		Dropped:  g.dropped.Load(),
	}
}
