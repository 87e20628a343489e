// Package httpc provides HTTP clients with sensible defaults.
// Use this instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultConnectTimeout   = 20 * time.Second
	DefaultReadWriteTimeout = 30 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultIdleConnTimeout  = 90 * time.Second
)

// Timeouts bounds each phase of an HTTP exchange.
type Timeouts struct {
	// Connect bounds the TCP dial and the TLS handshake.
	Connect time.Duration

	// ReadWrite bounds sending the request and waiting for response headers.
	// The overall client timeout is Connect + 2*ReadWrite.
	ReadWrite time.Duration
}

// DefaultTimeouts returns connect 20s, read/write 30s.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:   DefaultConnectTimeout,
		ReadWrite: DefaultReadWriteTimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.ReadWrite <= 0 {
		t.ReadWrite = DefaultReadWriteTimeout
	}
	return t
}

// Total returns the backstop applied to the whole request.
func (t Timeouts) Total() time.Duration {
	t = t.withDefaults()
	return t.Connect + 2*t.ReadWrite
}

// NewClient creates a new HTTP client with the given phase timeouts.
// Requests should still carry a context so callers can cancel mid-flight.
func NewClient(t Timeouts) *http.Client {
	t = t.withDefaults()
	return &http.Client{
		Timeout: t.Total(),
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   t.Connect,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   t.Connect,
			ResponseHeaderTimeout: t.ReadWrite,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Client is a shared HTTP client with the default timeouts.
var Client = NewClient(DefaultTimeouts())
