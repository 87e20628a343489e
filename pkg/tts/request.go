package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// requester performs HTTP calls for one provider with retry on 429/5xx
// and network errors.
type requester struct {
	provider   string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger

	// parseError turns a non-2xx response into an error.
	parseError func(status int, body []byte) error
}

// do sends the request and returns the body of a 2xx response.
func (r *requester) do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}

		respBody, err := r.once(ctx, method, url, headers, body)
		if err == nil {
			return respBody, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, err
		}
		r.logger.Warn("retrying request",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, lastErr
}

func (r *requester) once(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, WrapError(r.provider, fmt.Errorf("create request: %w", err))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, WrapError(r.provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(r.provider, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, r.parseError(resp.StatusCode, respBody)
	}
	return respBody, nil
}
