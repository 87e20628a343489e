// Package netcheck answers "is there internet?" cheaply enough to ask on
// every frame.
package netcheck

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Checker reports connectivity. HasInternet must be fast and non-blocking
// enough for a per-frame call.
type Checker interface {
	HasInternet() bool
}

// Defaults for Dialer.
const (
	DefaultAddress = "8.8.8.8:53"
	DefaultTimeout = 1500 * time.Millisecond
	DefaultTTL     = 5 * time.Second
)

// Dialer probes a TCP address and caches the answer for a TTL.
// Probes run in the background; HasInternet returns the cached answer.
type Dialer struct {
	Address string
	Timeout time.Duration
	TTL     time.Duration

	dial   func(ctx context.Context, network, address string) (net.Conn, error)
	now    func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	online    bool
	checkedAt time.Time
	probing   bool
}

// NewDialer creates a Dialer with defaults for zero values.
// It starts optimistic so the first frames are not rejected before the
// first probe finishes.
func NewDialer(address string, timeout, ttl time.Duration, logger *slog.Logger) *Dialer {
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dialer{
		Address: address,
		Timeout: timeout,
		TTL:     ttl,
		now:     time.Now,
		online:  true,
		logger:  logger.With("component", "netcheck.dialer"),
	}
	var nd net.Dialer
	d.dial = nd.DialContext
	return d
}

// HasInternet returns the cached answer and refreshes it in the background
// once it is older than the TTL.
func (d *Dialer) HasInternet() bool {
	d.mu.Lock()
	online := d.online
	stale := d.now().Sub(d.checkedAt) >= d.TTL
	if stale && !d.probing {
		d.probing = true
		go d.probe()
	}
	d.mu.Unlock()
	return online
}

// Probe checks connectivity synchronously and updates the cache.
func (d *Dialer) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	conn, err := d.dial(ctx, "tcp", d.Address)
	online := err == nil
	if conn != nil {
		conn.Close()
	}

	d.mu.Lock()
	if online != d.online {
		d.logger.Info("connectivity changed", "online", online, "address", d.Address)
	}
	d.online = online
	d.checkedAt = d.now()
	d.mu.Unlock()
	return online
}

func (d *Dialer) probe() {
	d.Probe(context.Background())
	d.mu.Lock()
	d.probing = false
	d.mu.Unlock()
}

// Static is a Checker with a fixed answer.
type Static bool

// HasInternet implements Checker.
func (s Static) HasInternet() bool {
	return bool(s)
}

// Verify implementations at compile time.
var (
	_ Checker = (*Dialer)(nil)
	_ Checker = Static(true)
)
