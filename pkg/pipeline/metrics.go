package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// latencyHistory is how many analysis latencies feed the average.
const latencyHistory = 100

// Metrics counts what happened to frames and analyses.
type Metrics struct {
	FramesOffered  uint64 `json:"frames_offered"`
	DroppedStopped uint64 `json:"dropped_stopped"`
	DroppedOffline uint64 `json:"dropped_offline"`
	DroppedBusy    uint64 `json:"dropped_busy"`

	AnalysesStarted   uint64 `json:"analyses_started"`
	AnalysesSucceeded uint64 `json:"analyses_succeeded"`
	AnalysesFailed    uint64 `json:"analyses_failed"`
	AnalysesCancelled uint64 `json:"analyses_cancelled"`

	UtterancesSpoken uint64 `json:"utterances_spoken"`

	LastLatency    time.Duration `json:"last_latency_ns"`
	AverageLatency time.Duration `json:"average_latency_ns"`
	LastAnalysisAt time.Time     `json:"last_analysis_at"`
}

// MetricsCollector records pipeline metrics. It is goroutine-safe.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []time.Duration

	onUpdate func(Metrics)
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]time.Duration, 0, latencyHistory),
	}
}

// OnUpdate sets a callback that fires after every completed analysis.
func (m *MetricsCollector) OnUpdate(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// FrameOffered counts a frame handed to the coordinator.
func (m *MetricsCollector) FrameOffered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.FramesOffered++
}

// DroppedStopped counts a frame dropped because the pipeline is not armed.
func (m *MetricsCollector) DroppedStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.DroppedStopped++
}

// DroppedOffline counts a frame dropped for lack of connectivity.
func (m *MetricsCollector) DroppedOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.DroppedOffline++
}

// DroppedBusy counts a frame dropped while an analysis was in flight.
func (m *MetricsCollector) DroppedBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.DroppedBusy++
}

// AnalysisStarted counts a vision call.
func (m *MetricsCollector) AnalysisStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AnalysesStarted++
}

// AnalysisSucceeded records a successful call and its latency.
func (m *MetricsCollector) AnalysisSucceeded(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AnalysesSucceeded++
	m.recordLatency(d)
	m.notify()
}

// AnalysisFailed records a failed call and its latency.
func (m *MetricsCollector) AnalysisFailed(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AnalysesFailed++
	m.recordLatency(d)
	m.notify()
}

// AnalysisCancelled counts a call superseded by Stop or Start.
func (m *MetricsCollector) AnalysisCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.AnalysesCancelled++
}

// UtteranceSpoken counts an utterance the speech gate accepted.
func (m *MetricsCollector) UtteranceSpoken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.UtterancesSpoken++
}

// Snapshot returns the current metrics.
func (m *MetricsCollector) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// recordLatency must be called with mutex held.
func (m *MetricsCollector) recordLatency(d time.Duration) {
	m.current.LastLatency = d
	m.current.LastAnalysisAt = time.Now()

	m.history = append(m.history, d)
	if len(m.history) > latencyHistory {
		m.history = m.history[1:]
	}
	var sum time.Duration
	for _, h := range m.history {
		sum += h
	}
	m.current.AverageLatency = sum / time.Duration(len(m.history))
}

// notify calls the update callback if set.
// Must be called with mutex held.
func (m *MetricsCollector) notify() {
	if m.onUpdate != nil {
		metrics := m.current
		go m.onUpdate(metrics)
	}
}

// FormatLatency returns a one-line summary of analysis latency.
func (m Metrics) FormatLatency() string {
	return fmt.Sprintf("%s last | %s avg | %d ok | %d failed",
		formatDuration(m.LastLatency),
		formatDuration(m.AverageLatency),
		m.AnalysesSucceeded,
		m.AnalysesFailed,
	)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
