package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

func TestSummarize(t *testing.T) {
	obj := func(name string, d float64) vision.DetectedObject {
		return vision.DetectedObject{Name: name, EstimatedDistanceM: d}
	}

	tests := []struct {
		name string
		in   vision.Result
		want string
	}{
		{
			name: "empty",
			in:   vision.Result{},
			want: "No nearby objects (≤5m). No text.",
		},
		{
			name: "only far objects",
			in:   vision.Result{Objects: []vision.DetectedObject{obj("bus", 5.01)}},
			want: "No nearby objects (≤5m). No text.",
		},
		{
			name: "boundary included",
			in:   vision.Result{Objects: []vision.DetectedObject{obj("door", 5.0)}},
			want: "Nearby: door (~5.0m) No text.",
		},
		{
			name: "nearest first, capped at three",
			in: vision.Result{Objects: []vision.DetectedObject{
				obj("table", 3.3),
				obj("chair", 1),
				obj("lamp", 4),
				obj("cup", 0.5),
			}},
			want: "Nearby: cup (~0.5m), chair (~1.0m), table (~3.3m) No text.",
		},
		{
			name: "ties keep input order",
			in: vision.Result{Objects: []vision.DetectedObject{
				obj("left", 2),
				obj("right", 2),
			}},
			want: "Nearby: left (~2.0m), right (~2.0m) No text.",
		},
		{
			name: "NaN skipped",
			in:   vision.Result{Objects: []vision.DetectedObject{obj("ghost", math.NaN())}},
			want: "No nearby objects (≤5m). No text.",
		},
		{
			name: "text present",
			in:   vision.Result{Text: []string{"EXIT"}},
			want: "No nearby objects (≤5m). Text detected.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summarize(tt.in); got != tt.want {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsCollector(t *testing.T) {
	m := NewMetricsCollector()

	updates := make(chan Metrics, 4)
	m.OnUpdate(func(mt Metrics) { updates <- mt })

	m.FrameOffered()
	m.AnalysisStarted()
	m.AnalysisSucceeded(100 * time.Millisecond)
	m.AnalysisStarted()
	m.AnalysisFailed(300 * time.Millisecond)
	m.DroppedBusy()

	got := m.Snapshot()
	if got.LastLatency != 300*time.Millisecond {
		t.Errorf("LastLatency = %v", got.LastLatency)
	}
	if got.AverageLatency != 200*time.Millisecond {
		t.Errorf("AverageLatency = %v", got.AverageLatency)
	}
	if got.AnalysesStarted != 2 || got.AnalysesSucceeded != 1 || got.AnalysesFailed != 1 || got.DroppedBusy != 1 {
		t.Errorf("counters = %+v", got)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-updates:
		case <-time.After(time.Second):
			t.Fatal("OnUpdate not called")
		}
	}

	if s := got.FormatLatency(); s != "300ms last | 200ms avg | 1 ok | 1 failed" {
		t.Errorf("FormatLatency() = %q", s)
	}
	if s := (Metrics{}).FormatLatency(); s != "---ms last | ---ms avg | 0 ok | 0 failed" {
		t.Errorf("FormatLatency() = %q", s)
	}
}

func TestMetricsCollector_HistoryBounded(t *testing.T) {
	m := NewMetricsCollector()
	for i := 0; i < latencyHistory; i++ {
		m.AnalysisSucceeded(time.Second)
	}
	for i := 0; i < latencyHistory; i++ {
		m.AnalysisSucceeded(time.Millisecond)
	}
	if got := m.Snapshot().AverageLatency; got != time.Millisecond {
		t.Errorf("AverageLatency = %v, want 1ms", got)
	}
}
