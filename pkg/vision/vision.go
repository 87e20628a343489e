// Package vision turns still camera frames into structured scene descriptions
// using cloud vision models.
//
// Providers (Gemini, OpenAI) are instructed to answer with a strict JSON
// object listing the physical objects they see, each with an estimated
// distance in meters, plus any readable text:
//
//	{"objects":[{"name":"chair","estimated_distance_m":2.0}],"text":["EXIT"]}
//
// Example usage:
//
//	g := vision.NewGemini(vision.WithAPIKey(os.Getenv("GEMINI_API_KEY")))
//	res, err := g.Analyze(ctx, jpegBytes, vision.MIMEJPEG)
package vision

import "context"

// MIMEJPEG is the only image encoding the pipeline sends.
const MIMEJPEG = "image/jpeg"

// Analyzer analyzes a single encoded image.
// Implementations must honor ctx cancellation at I/O boundaries.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*Result, error)
}

// DetectedObject is a physical object the model found in the frame.
type DetectedObject struct {
	Name               string  `json:"name"`
	EstimatedDistanceM float64 `json:"estimated_distance_m"`
}

// Result is the parsed answer for one frame. It is not retained between frames.
type Result struct {
	Objects []DetectedObject `json:"objects"`
	Text    []string         `json:"text"`
}

// Prompt is the instruction sent alongside every frame.
const Prompt = "You are assisting a visually impaired user. Identify physical objects and visible text in the image. " +
	"Estimate approximate distance in meters for each object. " +
	`Respond ONLY with valid JSON in this exact format: {"objects":[{"name":"object name","estimated_distance_m":5.0}], "text":["text1","text2"]}. ` +
	"Do not include any other text or markdown formatting."
