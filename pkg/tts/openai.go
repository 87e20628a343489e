package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"   // Neutral voice
	VoiceEcho    = "echo"    // Male voice
	VoiceFable   = "fable"   // British accent
	VoiceOnyx    = "onyx"    // Deep male voice
	VoiceNova    = "nova"    // Female voice
	VoiceShimmer = "shimmer" // Soft female voice
)

// OpenAI model options
const (
	ModelTTS1   = "tts-1"    // Standard quality, faster
	ModelTTS1HD = "tts-1-hd" // Higher quality, slower
)

// OpenAI implements Provider for OpenAI TTS. It always requests raw
// 24kHz mono PCM16 so the audio can be played without decoding.
type OpenAI struct {
	config *Config
	req    *requester
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceNova
	cfg.BaseURL = openAIBaseURL
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.OutputFormat = EncodingPCM24

	o := &OpenAI{config: cfg}
	o.req = &requester{
		provider:   providerOpenAI,
		client:     cfg.httpClient(),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With("component", "tts.openai"),
		parseError: parseOpenAIError,
	}
	return o, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	payload := map[string]interface{}{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "pcm",
	}
	if o.config.Speed > 0 && o.config.Speed != 1.0 {
		payload["speed"] = o.config.Speed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	audio, err := o.req.do(ctx, http.MethodPost, o.config.BaseURL+"/audio/speech", o.headers(true), body)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	o.req.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	format := PCMFormat(EncodingPCM24)
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  PCMDuration(len(audio), format.SampleRate),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	_, err := o.req.once(ctx, http.MethodGet, o.config.BaseURL+"/models", o.headers(false), nil)
	return err
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.req.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

func (o *OpenAI) headers(withBody bool) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + o.config.APIKey}
	if withBody {
		h["Content-Type"] = "application/json"
	}
	return h
}

func parseOpenAIError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: status,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
