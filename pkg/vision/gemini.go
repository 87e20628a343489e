package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	providerGemini     = "gemini"
	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.5-flash"
)

// Gemini analyzes frames with Google's Gemini generateContent API.
type Gemini struct {
	config    *Config
	transport *transport
}

// NewGemini creates a Gemini analyzer.
// The API key is resolved on every call, so a missing key is reported by Analyze.
func NewGemini(opts ...Option) *Gemini {
	cfg := DefaultConfig()
	cfg.BaseURL = defaultGeminiURL
	cfg.Model = defaultGeminiModel
	cfg.Apply(opts...)

	return &Gemini{
		config:    cfg,
		transport: newTransport(providerGemini, cfg),
	}
}

// Analyze sends the image to Gemini and parses its JSON answer.
func (g *Gemini) Analyze(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	apiKey := g.config.apiKey()
	if apiKey == "" {
		return nil, WrapError(providerGemini, ErrNoAPIKey)
	}
	if len(image) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyImage)
	}
	if mimeType == "" {
		mimeType = MIMEJPEG
	}

	start := time.Now()

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": Prompt},
					{"inlineData": map[string]string{
						"mimeType": mimeType,
						"data":     base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.config.BaseURL, g.config.Model)
	body, err := g.transport.post(ctx, url, map[string]string{"x-goog-api-key": apiKey}, payload)
	if err != nil {
		return nil, err
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ShapeError{Provider: providerGemini, Raw: truncate(string(body), 300), Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.Error.Message != "" {
		return nil, &APIError{
			StatusCode: result.Error.Code,
			Message:    result.Error.Message,
			Body:       truncate(string(body), maxErrorBody),
			Provider:   providerGemini,
		}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, &ShapeError{Provider: providerGemini, Raw: truncate(string(body), 300), Err: errors.New("no assistant message in response")}
	}

	res, err := ParseResult(providerGemini, result.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	g.transport.logger.Debug("frame analyzed",
		"objects", len(res.Objects),
		"text", len(res.Text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// geminiResponse is the Gemini API response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Verify Gemini implements Analyzer at compile time.
var _ Analyzer = (*Gemini)(nil)
