package vision_test

import (
	"context"
	"fmt"
	"os"

	"github.com/teslashibe/go-wayfinder/pkg/vision"
)

func ExampleNewGemini() {
	g := vision.NewGemini(vision.WithAPIKey(os.Getenv("GEMINI_API_KEY")))

	jpegBytes, err := os.ReadFile("frame.jpg")
	if err != nil {
		return
	}
	res, err := g.Analyze(context.Background(), jpegBytes, vision.MIMEJPEG)
	if err != nil {
		fmt.Println("analyze:", err)
		return
	}
	for _, obj := range res.Objects {
		fmt.Printf("%s at %.1fm\n", obj.Name, obj.EstimatedDistanceM)
	}
}
