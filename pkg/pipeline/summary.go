package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/speech"
	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

// maxSummaryObjects caps how many nearby objects the status line lists.
const maxSummaryObjects = 3

// Summarize renders the status line shown after a successful analysis,
// e.g. "Nearby: chair (~2.0m), door (~3.5m) Text detected."
func Summarize(r vision.Result) string {
	var near []vision.DetectedObject
	for _, o := range r.Objects {
		if o.EstimatedDistanceM <= speech.MaxSpeakDistance {
			near = append(near, o)
		}
	}
	slices.SortStableFunc(near, func(a, b vision.DetectedObject) int {
		return cmp.Compare(a.EstimatedDistanceM, b.EstimatedDistanceM)
	})
	if len(near) > maxSummaryObjects {
		near = near[:maxSummaryObjects]
	}

	var objects string
	if len(near) == 0 {
		objects = "No nearby objects (≤5m)."
	} else {
		parts := make([]string, len(near))
		for i, o := range near {
			parts[i] = fmt.Sprintf("%s (~%.1fm)", o.Name, o.EstimatedDistanceM)
		}
		objects = "Nearby: " + strings.Join(parts, ", ")
	}

	text := "No text."
	if len(r.Text) > 0 {
		text = "Text detected."
	}
	return objects + " " + text
}
