// Package speech decides what to say about a vision result and when to
// say it.
//
// Derive is the pure policy: nearest object within MaxSpeakDistance plus
// any visible text. Gate owns the text-to-speech engine and suppresses
// repeats of the same utterance inside a dedupe window.
package speech

import (
	"math"
	"strings"

	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

// MaxSpeakDistance is the farthest object distance, in meters, that is ever
// spoken. The boundary is inclusive.
const MaxSpeakDistance = 5.0

// Derive returns the utterance for r, or false when there is nothing to say.
func Derive(r vision.Result) (string, bool) {
	var parts []string

	if obj, ok := nearest(r.Objects); ok {
		parts = append(parts, obj.Name+" ahead")
	}

	var lines []string
	for _, t := range r.Text {
		if t = strings.TrimSpace(t); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) > 0 {
		parts = append(parts, "Text reads: "+strings.Join(lines, ". "))
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ". "), true
}

// nearest returns the first object at the minimum distance, if that
// distance is within range.
func nearest(objects []vision.DetectedObject) (vision.DetectedObject, bool) {
	best := -1
	for i, o := range objects {
		if math.IsNaN(o.EstimatedDistanceM) {
			continue
		}
		if best < 0 || o.EstimatedDistanceM < objects[best].EstimatedDistanceM {
			best = i
		}
	}
	if best < 0 || objects[best].EstimatedDistanceM > MaxSpeakDistance {
		return vision.DetectedObject{}, false
	}
	return objects[best], true
}

// Normalize trims text and collapses whitespace runs to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
