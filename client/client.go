// Package client talks to one channel service.
//
// A Client is bound to a single Address. It submits requests with POST and
// checks the service status with GET; both go through a pooled
// transport.Transport. Submissions are fire-and-forget: "ok" means queued,
// not processed.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"channels/address"
	"channels/codec"
	"channels/logger"
	"channels/message"
	"channels/protocol"
	"channels/transport"
)

type Client struct {
	addr      address.Address
	url       string
	transport *transport.Transport
	codec     codec.Codec
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
	log       *zap.Logger
}

type Option func(*Client)

// WithTimeout bounds every exchange. Zero leaves only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTransport shares a connection pool between clients.
func WithTransport(t *transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

func WithCodec(cdc codec.Codec) Option {
	return func(c *Client) {
		c.codec = cdc
	}
}

// WithRetry retries temporary transport failures up to n more times,
// sleeping base, 2*base, 4*base... between attempts. Rejected replies are
// answers, not failures, and are never retried.
func WithRetry(n int, base time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.baseDelay = base
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// New creates a client for the service at addr.
func New(addr address.Address, opts ...Option) *Client {
	c := &Client{
		addr:      addr,
		url:       "http://" + addr.HostPort() + protocol.RequestPath,
		transport: transport.Shared(),
		codec:     codec.Default,
		log:       logger.Logger("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the service this client sends to.
func (c *Client) Address() address.Address {
	return c.addr
}

// Send submits req. A reply with status "rejected" is returned without error;
// transport failures and non-200 answers come back as *transport.Error.
func (c *Client) Send(ctx context.Context, req message.Request) (message.Reply, error) {
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	body, err := c.codec.Encode(req)
	if err != nil {
		return message.Reply{}, fmt.Errorf("client: encode request: %w", err)
	}
	return c.exchange(ctx, http.MethodPost, body)
}

// Probe asks the service whether it can accept more requests. The reply
// status is "ok" or "full" and Service carries the service's address token.
func (c *Client) Probe(ctx context.Context) (message.Reply, error) {
	return c.exchange(ctx, http.MethodGet, nil)
}

func (c *Client) exchange(ctx context.Context, method string, body []byte) (message.Reply, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	data, err := c.do(ctx, method, body)
	if err != nil {
		return message.Reply{}, err
	}

	var reply message.Reply
	if err := c.codec.Decode(data, &reply); err != nil {
		return message.Reply{}, fmt.Errorf("client: decode reply from %s: %w", c.addr.Display(), err)
	}
	return reply, nil
}

func (c *Client) do(ctx context.Context, method string, body []byte) ([]byte, error) {
	_, data, err := c.transport.Do(ctx, method, c.url, body, c.codec.ContentType())
	for i := 0; i < c.retries && err != nil; i++ {
		te, ok := err.(*transport.Error)
		if !ok || !te.Temporary() {
			return nil, err
		}

		delay := c.baseDelay * time.Duration(1<<i)
		c.log.Debug("retrying request",
			zap.String("service", c.addr.Display()),
			zap.String("method", method),
			zap.Int("attempt", i+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
		_, data, err = c.transport.Do(ctx, method, c.url, body, c.codec.ContentType())
	}
	return data, err
}
