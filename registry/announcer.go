package registry

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"channels/address"
	"channels/logger"
	"channels/metrics"
	"channels/queue"
)

// DefaultInterval is the pause between two announce cycles.
const DefaultInterval = time.Second

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdShutdown
)

type command struct {
	kind commandKind
	addr address.Address
	seq  uint64 // register commands only
}

// Announcer is the Registry implementation: a lazily started worker that
// publishes every registered address each Interval.
//
// Cycle:
//
//	publish all entries → sleep Interval → drain queued commands in order
//
// A shutdown command ends the loop once it is drained. A publish failure or
// panic is logged and ends the loop too; the Announcer does not restart on
// its own, but the next Register starts a fresh worker.
type Announcer struct {
	dial     Dialer
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
	commands *queue.Queue[command]

	mu      sync.Mutex
	done    chan struct{} // non-nil while a worker runs, closed when it exits
	seq     uint64        // last register command enqueued
	applied uint64        // last register command a worker applied
}

type Option func(*Announcer)

func WithInterval(d time.Duration) Option {
	return func(a *Announcer) {
		if d > 0 {
			a.interval = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Announcer) { a.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Announcer) { a.metrics = m }
}

// NewAnnouncer creates an idle announcer; no goroutine or socket exists until
// the first Register.
func NewAnnouncer(dial Dialer, opts ...Option) *Announcer {
	a := &Announcer{
		dial:     dial,
		interval: DefaultInterval,
		log:      logger.Logger("registry"),
		commands: queue.New[command](0),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(zap.String("registry", uuid.NewString()[:8]))
	return a
}

// NewBroadcast is an Announcer publishing UDP datagrams to host:port.
func NewBroadcast(host string, port int, opts ...Option) *Announcer {
	return NewAnnouncer(Broadcast(host, port), opts...)
}

func (a *Announcer) Register(addr address.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.enqueue(command{kind: cmdRegister, addr: addr, seq: a.seq})
	if a.done == nil {
		a.startLocked()
	}
}

func (a *Announcer) startLocked() {
	a.done = make(chan struct{})
	a.log.Info("starting announcement worker")
	go a.run(a.done)
}

func (a *Announcer) Unregister(addr address.Address) {
	a.enqueue(command{kind: cmdUnregister, addr: addr})
}

func (a *Announcer) Shutdown() {
	a.enqueue(command{kind: cmdShutdown})
}

// Running reports whether the announce worker is alive.
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done != nil
}

// Done returns a channel closed when the current worker exits. With no worker
// running the returned channel is already closed.
func (a *Announcer) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return a.done
}

func (a *Announcer) enqueue(c command) {
	// The command queue is unbounded, Put cannot block.
	_ = a.commands.Put(context.Background(), c)
}

func (a *Announcer) run(done chan struct{}) {
	shutdown := false
	defer func() {
		a.mu.Lock()
		a.done = nil
		// A Register that raced with the shutdown found this worker still alive.
		if shutdown && a.seq > a.applied {
			a.startLocked()
		}
		a.mu.Unlock()
		close(done)
		a.log.Info("announcement worker stopped")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := a.dial(ctx)
	if err != nil {
		a.log.Error("cannot open publisher", zap.Error(err))
		a.metrics.AnnounceFailed()
		return
	}
	defer func() {
		if err := pub.Close(); err != nil {
			a.log.Warn("closing publisher", zap.Error(err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("announcement worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			a.metrics.AnnounceFailed()
		}
	}()

	entries := make(map[string]address.Address)
	for {
		if err := a.publish(ctx, pub, entries); err != nil {
			a.log.Error("announce failed", zap.Error(err))
			a.metrics.AnnounceFailed()
			return
		}
		time.Sleep(a.interval)
		if shutdown = a.apply(ctx, pub, entries); shutdown {
			return
		}
	}
}

func (a *Announcer) publish(ctx context.Context, pub Publisher, entries map[string]address.Address) error {
	addrs := slices.SortedFunc(maps.Values(entries), func(x, y address.Address) int {
		return strings.Compare(x.Name, y.Name)
	})
	if err := pub.Publish(ctx, addrs); err != nil {
		return fmt.Errorf("publish %d addresses: %w", len(addrs), err)
	}
	for _, addr := range addrs {
		a.metrics.Announced(addr.Name)
	}
	return nil
}

// apply drains pending commands and reports whether a shutdown was seen.
func (a *Announcer) apply(ctx context.Context, pub Publisher, entries map[string]address.Address) bool {
	for c := range a.commands.Drain() {
		switch c.kind {
		case cmdShutdown:
			a.log.Info("shutting down announcement worker")
			return true
		case cmdRegister:
			a.log.Info("registering service", zap.String("name", c.addr.Name), zap.String("address", c.addr.Display()))
			entries[c.addr.Name] = c.addr
			a.mu.Lock()
			a.applied = c.seq
			a.mu.Unlock()
		case cmdUnregister:
			// A stale unregister for a replaced address must not drop the new one.
			if cur, ok := entries[c.addr.Name]; !ok || cur != c.addr {
				continue
			}
			a.log.Info("unregistering service", zap.String("name", c.addr.Name))
			delete(entries, c.addr.Name)
			if err := pub.Withdraw(ctx, c.addr); err != nil {
				a.log.Warn("withdraw failed", zap.String("name", c.addr.Name), zap.Error(err))
			}
		}
	}
	return false
}
