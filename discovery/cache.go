package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"channels/address"
	"channels/client"
	"channels/loadbalance"
)

// ErrNotFound is returned by Cache.Client when no service with the wanted
// name answered within the scan window.
var ErrNotFound = errors.New("discovery: service not found")

// Cache remembers the client of the last service found under one name, so
// repeated sends skip the scan until the caller asks for a fresh one.
type Cache struct {
	finder     Finder
	query      Query
	balancer   loadbalance.Balancer
	clientOpts []client.Option

	mu      sync.Mutex
	current *client.Client
}

type CacheOption func(*Cache)

// WithBalancer chooses among several instances of the name. Default is
// loadbalance.FirstBalancer.
func WithBalancer(b loadbalance.Balancer) CacheOption {
	return func(c *Cache) { c.balancer = b }
}

// WithScanTimeout bounds each discovery scan.
func WithScanTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.query.Timeout = d }
}

// WithClientOptions are applied to every client the cache creates.
func WithClientOptions(opts ...client.Option) CacheOption {
	return func(c *Cache) { c.clientOpts = append(c.clientOpts, opts...) }
}

// NewCache creates a cache for the service called name. Only the first
// matching announcement is awaited unless a balancer other than the default
// needs to see every instance.
func NewCache(finder Finder, name string, opts ...CacheOption) *Cache {
	c := &Cache{
		finder:   finder,
		query:    Query{Names: []string{name}, MaxCount: 1},
		balancer: loadbalance.FirstBalancer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, first := c.balancer.(loadbalance.FirstBalancer); !first {
		c.query.MaxCount = 0
	}
	return c
}

// Client returns the cached client, scanning first when nothing is cached or
// rediscover is set. A failed rediscovery clears the cache.
func (c *Cache) Client(ctx context.Context, rediscover bool) (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !rediscover {
		return c.current, nil
	}
	c.current = nil

	found, err := c.finder.Find(ctx, c.query)
	if err != nil {
		return nil, fmt.Errorf("discovery: find %v: %w", c.query.Names, err)
	}
	addr, err := c.balancer.Pick(found)
	if errors.Is(err, loadbalance.ErrNoAddresses) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, c.query.Names)
	}
	if err != nil {
		return nil, err
	}

	c.current = client.New(addr, c.clientOpts...)
	return c.current, nil
}

// Current returns the cached address, if any.
func (c *Cache) Current() (address.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return address.Address{}, false
	}
	return c.current.Address(), true
}

// Invalidate drops the cached client.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}
