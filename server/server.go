// Package server implements the channel service: a loopback HTTP endpoint
// that accepts requests into a bounded FIFO queue and announces itself
// through a registry.
//
// Request processing pipeline:
//
//	Accept conn (net/http, one goroutine per connection)
//	  → Middleware Chain → serveHTTP
//	    GET  → status probe, queue untouched
//	    POST → capacity check → Codec.Decode → Queue.TryPut → reply
//
// Requests are never handled here. The owner consumes them with Drain, on its
// own goroutine, at its own pace.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"channels/address"
	"channels/codec"
	"channels/logger"
	"channels/message"
	"channels/metrics"
	"channels/middleware"
	"channels/protocol"
	"channels/queue"
	"channels/registry"
)

var ErrInvalidConfig = errors.New("server: invalid configuration")

const maxBodySize = 1 << 20

// State is the service lifecycle phase.
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Server is one channel service.
type Server struct {
	name        string
	host        string
	registry    registry.Registry
	capacity    int
	queue       *queue.Queue[message.Request]
	codec       codec.Codec
	log         *zap.Logger
	metrics     *metrics.Metrics
	middlewares []middleware.Middleware // Applied in order, outermost first

	mu      sync.Mutex
	state   State
	addr    address.Address
	httpSrv *http.Server
	done    chan struct{} // Closed when the serve goroutine exits
	stopped chan struct{} // Closed when an in-progress Shutdown finishes
}

type Option func(*Server)

// WithCapacity bounds the queue. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(s *Server) {
		s.capacity = n
	}
}

// WithHost sets the interface to listen on. Defaults to 127.0.0.1.
func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

func WithCodec(c codec.Codec) Option {
	return func(s *Server) {
		s.codec = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a stopped service called name. No socket is opened until Start.
func New(reg registry.Registry, name string, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidConfig)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidConfig)
	}

	s := &Server{
		name:     name,
		host:     protocol.LocalHost,
		registry: reg,
		codec:    codec.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Logger("server").With(zap.String("channel", name))
	}
	if s.capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrInvalidConfig, s.capacity)
	}
	s.queue = queue.New[message.Request](s.capacity)
	return s, nil
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and take effect on the next Start.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
}

// Name returns the channel name.
func (s *Server) Name() string {
	return s.name
}

// Start binds an ephemeral port, registers the service address and starts
// serving on a background goroutine. Calling Start on a running service does
// nothing. A Start during Shutdown waits for it to finish, then starts again.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.state == StateStopping {
		stopped := s.stopped
		s.mu.Unlock()
		<-stopped
		s.mu.Lock()
	}
	if s.state == StateRunning {
		return nil
	}
	s.state = StateStarting

	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, "0"))
	if err != nil {
		s.state = StateStopped
		return fmt.Errorf("server: listen: %w", err)
	}
	s.addr = address.New(s.host, s.name, ln.Addr().(*net.TCPAddr).Port)

	// Build the middleware chain once per start, not per request.
	//   Chain(A, B, C)(handler) → A(B(C(handler)))
	handler := middleware.Chain(s.middlewares...)(http.HandlerFunc(s.serveHTTP))
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(s.log),
	}
	done := make(chan struct{})
	s.httpSrv, s.done = srv, done

	s.registry.Register(s.addr)
	s.state = StateRunning
	go s.serve(srv, ln, done)

	s.log.Info("channel service started", zap.String("address", s.addr.Display()))
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return
	}

	s.log.Error("channel service stopped unexpectedly", zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv == srv {
		s.registry.Unregister(s.addr)
		s.httpSrv = nil
		s.state = StateStopped
	}
}

// Shutdown unregisters the address, stops accepting connections and waits for
// the serve goroutine. In-flight requests finish unless ctx expires first.
// Pending queue entries are kept. Calling Shutdown when not running does nothing.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	stopped := make(chan struct{})
	s.stopped = stopped
	srv, done, addr := s.httpSrv, s.done, s.addr
	s.mu.Unlock()

	// Unregister first so scanners stop seeing this address.
	s.registry.Unregister(addr)

	err := srv.Shutdown(ctx)
	if err != nil {
		srv.Close()
	}
	<-done

	s.mu.Lock()
	if s.httpSrv == srv {
		s.httpSrv = nil
		s.state = StateStopped
	}
	close(stopped)
	s.mu.Unlock()

	s.log.Info("channel service stopped", zap.String("address", addr.Display()))
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// State returns the current lifecycle phase.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the service is accepting requests.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Address returns the address of the current (or last) run. It is the zero
// Address before the first Start.
func (s *Server) Address() address.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Drain yields queued requests in arrival order until the queue is empty.
// This is the only way requests leave the service.
func (s *Server) Drain() iter.Seq[message.Request] {
	return func(yield func(message.Request) bool) {
		defer func() { s.metrics.SetQueueDepth(s.name, s.queue.Len()) }()
		for req := range s.queue.Drain() {
			if !yield(req) {
				return
			}
		}
	}
}

// Len returns the number of queued requests.
func (s *Server) Len() int {
	return s.queue.Len()
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleProbe(w)
	case http.MethodPost:
		s.handleSubmit(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		s.writeReply(w, http.StatusMethodNotAllowed, message.Reply{
			Status:  message.StatusError,
			Message: "method not allowed",
		})
	}
}

func (s *Server) handleProbe(w http.ResponseWriter) {
	status := message.StatusOK
	if s.queue.Full() {
		status = message.StatusFull
	}
	s.metrics.Probe(s.name, status)
	s.writeReply(w, http.StatusOK, message.Reply{Status: status, Service: s.Address().String()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	// Refuse before reading the body when there is obviously no room.
	if s.queue.Full() {
		s.reject(w)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.badRequest(w, fmt.Errorf("read body: %w", err))
		return
	}
	var req message.Request
	if err := s.codec.Decode(body, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	// The queue may have filled while the body was read.
	if !s.queue.TryPut(req) {
		s.reject(w)
		return
	}
	s.metrics.Request(s.name, message.StatusOK)
	s.metrics.SetQueueDepth(s.name, s.queue.Len())
	s.writeReply(w, http.StatusOK, message.Reply{Status: message.StatusOK})
}

func (s *Server) reject(w http.ResponseWriter) {
	s.metrics.Request(s.name, message.StatusRejected)
	s.log.Debug("queue full, request rejected", zap.Int("capacity", s.queue.Cap()))
	s.writeReply(w, http.StatusOK, message.Reply{Status: message.StatusRejected, Message: "queue full"})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.metrics.Request(s.name, message.StatusError)
	s.log.Warn("malformed request", zap.Error(err))
	s.writeReply(w, http.StatusBadRequest, message.Reply{Status: message.StatusError, Message: err.Error()})
}

func (s *Server) writeReply(w http.ResponseWriter, code int, reply message.Reply) {
	body, err := s.codec.Encode(reply)
	if err != nil {
		s.log.Error("failed to encode reply", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", s.codec.ContentType())
	w.WriteHeader(code)
	w.Write(body)
}
