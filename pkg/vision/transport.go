package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of an error body is kept for diagnostics.
const maxErrorBody = 4096

// transport performs JSON POSTs for one provider.
type transport struct {
	provider string
	config   *Config
	http     *http.Client
	logger   *slog.Logger
}

func newTransport(provider string, cfg *Config) *transport {
	return &transport{
		provider: provider,
		config:   cfg,
		http:     cfg.httpClient(),
		logger:   cfg.Logger.With("component", "vision."+provider),
	}
}

// post sends payload as JSON and returns the body of a 2xx response.
func (t *transport) post(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(t.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.config.RetryDelay * time.Duration(attempt)):
			}
		}

		respBody, err := t.once(ctx, url, headers, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		t.logger.Warn("retrying request",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, lastErr
}

func (t *transport) once(ctx context.Context, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(t.provider, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, transportErr(ctx, t.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr(ctx, t.provider, fmt.Errorf("read response: %w", err))
	}

	t.logger.Debug("response received",
		"status", resp.StatusCode,
		"bytes", len(respBody),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, t.parseError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// parseError builds an APIError, preferring the provider's error message.
func (t *transport) parseError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	raw := truncate(string(body), maxErrorBody)
	message := raw
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &APIError{
		StatusCode: status,
		Message:    message,
		Body:       raw,
		Provider:   t.provider,
	}
}

func retryable(err error) bool {
	switch Classify(err) {
	case KindTransport:
		return true
	case KindAPI:
		var apiErr *APIError
		return errors.As(err, &apiErr) && apiErr.IsRetryable()
	default:
		return false
	}
}
