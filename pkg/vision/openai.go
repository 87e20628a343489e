package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	providerOpenAI     = "openai"
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI analyzes frames with any OpenAI-compatible chat completions API.
type OpenAI struct {
	config    *Config
	transport *transport
}

// NewOpenAI creates an OpenAI analyzer.
func NewOpenAI(opts ...Option) *OpenAI {
	cfg := DefaultConfig()
	cfg.BaseURL = defaultOpenAIURL
	cfg.Model = defaultOpenAIModel
	cfg.Apply(opts...)

	return &OpenAI{
		config:    cfg,
		transport: newTransport(providerOpenAI, cfg),
	}
}

// Analyze sends the image as a data URL and parses the assistant's JSON answer.
func (o *OpenAI) Analyze(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	apiKey := o.config.apiKey()
	if apiKey == "" {
		return nil, WrapError(providerOpenAI, ErrNoAPIKey)
	}
	if len(image) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyImage)
	}
	if mimeType == "" {
		mimeType = MIMEJPEG
	}

	start := time.Now()

	payload := map[string]interface{}{
		"model": o.config.Model,
		"messages": []map[string]interface{}{{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": Prompt},
				{
					"type": "image_url",
					"image_url": map[string]string{
						"url": "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image),
					},
				},
			},
		}},
		"max_tokens": o.config.MaxTokens,
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	body, err := o.transport.post(ctx, o.config.BaseURL+"/chat/completions", headers, payload)
	if err != nil {
		return nil, err
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ShapeError{Provider: providerOpenAI, Raw: truncate(string(body), 300), Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return nil, &ShapeError{Provider: providerOpenAI, Raw: truncate(string(body), 300), Err: errors.New("no assistant message in response")}
	}

	res, err := ParseResult(providerOpenAI, result.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	o.transport.logger.Debug("frame analyzed",
		"objects", len(res.Objects),
		"text", len(res.Text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// chatCompletionResponse is the subset of the chat completions response we read.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Verify OpenAI implements Analyzer at compile time.
var _ Analyzer = (*OpenAI)(nil)
