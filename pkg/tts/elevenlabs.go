package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is the fastest English model.
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model.
	ModelFlashV2_5 = "eleven_flash_v2_5"
)

// ElevenLabs implements Provider for ElevenLabs TTS, requesting raw PCM.
type ElevenLabs struct {
	config *Config
	req    *requester
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelFlashV2_5
	cfg.BaseURL = elevenLabsBaseURL
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	e := &ElevenLabs{config: cfg}
	e.req = &requester{
		provider:   providerElevenLabs,
		client:     cfg.httpClient(),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With("component", "tts.elevenlabs"),
		parseError: parseElevenLabsError,
	}
	return e, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.config.BaseURL, url.PathEscape(e.config.VoiceID), url.QueryEscape(string(e.config.OutputFormat)))

	body, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": e.config.ModelID,
	})
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}

	audio, err := e.req.do(ctx, http.MethodPost, endpoint, map[string]string{
		"xi-api-key":   e.config.APIKey,
		"Content-Type": "application/json",
		"Accept":       "audio/pcm",
	}, body)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	e.req.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	format := PCMFormat(e.config.OutputFormat)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	_, err := e.req.once(ctx, http.MethodGet, e.config.BaseURL+"/user", map[string]string{
		"xi-api-key": e.config.APIKey,
	}, nil)
	return err
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.req.client.CloseIdleConnections()
	return nil
}

func parseElevenLabsError(status int, body []byte) error {
	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
		code = errResp.Detail.Status
	}

	return &APIError{
		StatusCode: status,
		Message:    message,
		Code:       code,
		Provider:   providerElevenLabs,
	}
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)
