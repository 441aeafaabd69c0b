// Package controller drives a channel service from a host's timer.
//
// Every poll starts the service if it is not running, then drains its queue
// and hands each request to the application handler in arrival order, all
// on the host timer's goroutine. Two bindings exist: TimerController for a
// recurring GUI timer and FrameController for a per-frame timer table.
package controller

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"channels/logger"
	"channels/message"
	"channels/metrics"
)

// DefaultStopTimeout bounds the service shutdown performed by Stop.
const DefaultStopTimeout = 5 * time.Second

// Controller is what channel registration hands back to the application.
type Controller interface {
	// Start registers the periodic poll. Starting a started controller does nothing.
	Start()
	// Stop unregisters the poll and shuts the service down. A second call does nothing.
	Stop() error
	// IsRunning reports whether the poll is registered and the service is running.
	IsRunning() bool
}

// Service is the part of server.Server a controller needs.
type Service interface {
	Start() error
	Shutdown(ctx context.Context) error
	IsRunning() bool
	Drain() iter.Seq[message.Request]
}

// Handler processes one request on the host's goroutine.
type Handler func(message.Request)

type Option func(*poller)

func WithLogger(l *zap.Logger) Option {
	return func(p *poller) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *poller) { p.metrics = m }
}

// WithName labels logs and metrics with the channel name.
func WithName(name string) Option {
	return func(p *poller) { p.name = name }
}

func WithStopTimeout(d time.Duration) Option {
	return func(p *poller) { p.stopTimeout = d }
}

// poller is the poll step shared by both bindings.
type poller struct {
	svc         Service
	handler     Handler
	name        string
	log         *zap.Logger
	metrics     *metrics.Metrics
	stopTimeout time.Duration
}

func newPoller(svc Service, handler Handler, opts []Option) poller {
	p := poller{
		svc:         svc,
		handler:     handler,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.log == nil {
		p.log = logger.Logger("controller")
	}
	if p.name != "" {
		p.log = p.log.With(zap.String("channel", p.name))
	}
	return p
}

func (p *poller) poll() {
	if !p.svc.IsRunning() {
		if err := p.svc.Start(); err != nil {
			p.log.Error("failed to start channel service", zap.Error(err))
			return
		}
	}
	for req := range p.svc.Drain() {
		p.dispatch(req)
	}
}

func (p *poller) dispatch(req message.Request) {
	defer func() {
		if v := recover(); v != nil {
			p.log.Error("request handler panicked",
				zap.String("sender", req.Name),
				zap.Any("panic", v),
				zap.Stack("stack"))
		}
	}()
	p.metrics.Dispatched(p.name)
	p.handler(req)
}

// settle shuts down a service that a poll restarted after the controller
// was stopped.
func (p *poller) settle(active bool) {
	if active || !p.svc.IsRunning() {
		return
	}
	if err := p.shutdown(); err != nil {
		p.log.Warn("failed to stop channel service", zap.Error(err))
	}
}

func (p *poller) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.stopTimeout)
	defer cancel()
	return p.svc.Shutdown(ctx)
}
