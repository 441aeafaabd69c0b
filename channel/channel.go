// Package channel is the entry point for applications: register a named
// channel served from the host's timer, discover channels, send to them.
//
//	reg := registry.NewBroadcast(protocol.DefaultDiscoveryHost, protocol.DefaultDiscoveryPort)
//	ctrl, err := channel.Register("Blender", router.Serve,
//		channel.WithRegistry(reg),
//		channel.WithBinding(channel.FrameBinding(loop)),
//	)
//
// Nothing is global: the registry, the host timer and the handler are all
// passed in explicitly.
package channel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"channels/address"
	"channels/client"
	"channels/controller"
	"channels/discovery"
	"channels/logger"
	"channels/message"
	"channels/metrics"
	"channels/middleware"
	"channels/registry"
	"channels/server"
)

// ErrInvalidConfig is returned by Register before any socket is opened.
var ErrInvalidConfig = errors.New("channel: invalid configuration")

const DefaultPoll = 500 * time.Millisecond

// Binding builds the controller for one host scheduler.
type Binding func(svc controller.Service, h controller.Handler, poll time.Duration, opts ...controller.Option) controller.Controller

// TimerBinding drives the channel from a recurring GUI timer.
func TimerBinding(t controller.Timer) Binding {
	if isNil(t) {
		return nil
	}
	return func(svc controller.Service, h controller.Handler, poll time.Duration, opts ...controller.Option) controller.Controller {
		return controller.NewTimerController(svc, h, t, poll, opts...)
	}
}

// FrameBinding drives the channel from a host timer table.
func FrameBinding(ft controller.FrameTimers) Binding {
	if isNil(ft) {
		return nil
	}
	return func(svc controller.Service, h controller.Handler, poll time.Duration, opts ...controller.Option) controller.Controller {
		return controller.NewFrameController(svc, h, ft, poll, opts...)
	}
}

type options struct {
	registry    registry.Registry
	poll        time.Duration
	queueSize   int
	autostart   bool
	binding     Binding
	host        string
	middlewares []middleware.Middleware
	log         *zap.Logger
	metrics     *metrics.Metrics
}

type Option func(*options)

// WithRegistry sets the registry the service announces itself through. Required.
func WithRegistry(r registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithPoll sets the interval between two drain steps. Default 0.5s.
func WithPoll(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

// WithQueueSize bounds the request queue. Default 0, unbounded.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithAutostart controls whether Register starts the controller. Default true.
func WithAutostart(on bool) Option {
	return func(o *options) { o.autostart = on }
}

// WithBinding selects the host scheduler. Required.
func WithBinding(b Binding) Option {
	return func(o *options) { o.binding = b }
}

// WithHost sets the interface the service listens on. Default 127.0.0.1.
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithMiddleware wraps the service's HTTP handler.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// isNil also catches a nil pointer stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Register creates the channel service called name and the controller that
// feeds its requests to handler on the host scheduler.
func Register(name string, handler controller.Handler, opts ...Option) (controller.Controller, error) {
	o := options{
		poll:      DefaultPoll,
		autostart: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case handler == nil:
		return nil, fmt.Errorf("%w: nil handler for %q", ErrInvalidConfig, name)
	case o.registry == nil:
		return nil, fmt.Errorf("%w: no registry for %q", ErrInvalidConfig, name)
	case o.binding == nil:
		return nil, fmt.Errorf("%w: no host scheduler binding for %q", ErrInvalidConfig, name)
	case o.poll <= 0:
		return nil, fmt.Errorf("%w: poll interval %v", ErrInvalidConfig, o.poll)
	}
	if o.log == nil {
		o.log = logger.Logger("channel")
	}
	log := o.log.With(zap.String("channel", name))

	srvOpts := []server.Option{
		server.WithCapacity(o.queueSize),
		server.WithLogger(log),
		server.WithMetrics(o.metrics),
	}
	if o.host != "" {
		srvOpts = append(srvOpts, server.WithHost(o.host))
	}
	svc, err := server.New(o.registry, name, srvOpts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	for _, mw := range o.middlewares {
		svc.Use(mw)
	}

	ctrl := o.binding(svc, handler, o.poll,
		controller.WithName(name),
		controller.WithLogger(log),
		controller.WithMetrics(o.metrics),
	)
	if o.autostart {
		ctrl.Start()
	}
	return ctrl, nil
}

// Send submits one request to the service at addr. timeout <= 0 leaves only
// ctx to bound the exchange.
func Send(ctx context.Context, addr address.Address, req message.Request, timeout time.Duration) (message.Reply, error) {
	return client.New(addr, client.WithTimeout(timeout)).Send(ctx, req)
}

// Discover scans the discovery port for announced channels.
func Discover(ctx context.Context, q discovery.Query, opts ...discovery.Option) ([]address.Address, error) {
	return discovery.NewScanner(opts...).Find(ctx, q)
}
