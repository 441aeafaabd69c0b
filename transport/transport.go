// Package transport sends channel requests over HTTP.
//
// A Transport wraps one *http.Client whose keep-alive pool is shared by every
// request to every service, so repeated sends to the same channel reuse
// connections instead of dialing each time.
//
//	client.Send ──┐
//	client.Probe ─┼──→ Transport.Do ──→ pooled http.Client ──→ 127.0.0.1:<port>
//	cache probes ─┘
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Default pool sizing. Services are on loopback so a handful of idle
// connections per host is plenty.
const (
	DefaultMaxIdleConns        = 32
	DefaultMaxIdleConnsPerHost = 4
	DefaultIdleConnTimeout     = 90 * time.Second
	maxBodySize                = 1 << 20
)

// Error is returned for every failed exchange: dial and I/O failures as well
// as any non-200 answer.
type Error struct {
	Op         string // "dial", "read", "status"
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s %s: unexpected status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the exchange failed because a deadline passed.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Temporary reports whether repeating the exchange may succeed: timeouts,
// refused connections and 5xx answers. Caller cancellation is never temporary.
func (e *Error) Temporary() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	if e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode != 0 {
		return false
	}
	if e.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(e.Err, &oe) && oe.Op == "dial"
}

// Transport performs HTTP exchanges with channel services.
type Transport struct {
	client *http.Client
}

type Option func(*http.Transport)

// WithMaxIdleConnsPerHost overrides the per-service idle pool size.
func WithMaxIdleConnsPerHost(n int) Option {
	return func(t *http.Transport) {
		t.MaxIdleConnsPerHost = n
	}
}

// WithIdleConnTimeout overrides how long idle connections are kept.
func WithIdleConnTimeout(d time.Duration) Option {
	return func(t *http.Transport) {
		t.IdleConnTimeout = d
	}
}

// New creates a Transport with its own connection pool.
func New(opts ...Option) *Transport {
	rt := &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return &Transport{client: &http.Client{Transport: rt}}
}

var shared = New()

// Shared returns the process-wide Transport used when callers don't supply one.
func Shared() *Transport {
	return shared
}

// Do sends one request and returns the response body. Any answer other than
// 200 is reported as *Error carrying the status code and the body is dropped.
func (t *Transport) Do(ctx context.Context, method, target string, body []byte, contentType string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, &Error{Op: "request", URL: target, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, &Error{Op: "dial", URL: target, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, &Error{Op: "read", URL: target, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, &Error{Op: "status", URL: target, StatusCode: resp.StatusCode}
	}
	return resp.StatusCode, data, nil
}

// CloseIdle drops pooled connections.
func (t *Transport) CloseIdle() {
	t.client.CloseIdleConnections()
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
