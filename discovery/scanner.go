package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"channels/address"
	"channels/logger"
	"channels/metrics"
	"channels/protocol"
	"channels/sockopt"
)

// Scanner listens for announcements on the discovery port.
type Scanner struct {
	host    string
	port    int
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Scanner)

// WithHost sets the address the scanner binds; it must match the host the
// registries announce to.
func WithHost(host string) Option {
	return func(s *Scanner) { s.host = host }
}

func WithPort(port int) Option {
	return func(s *Scanner) { s.port = port }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		host: protocol.DefaultDiscoveryHost,
		port: protocol.DefaultDiscoveryPort,
		log:  logger.Logger("discovery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Find listens until q's timeout elapses, ctx is done or q.MaxCount distinct
// matches were collected, and returns the matches sorted by name, host and
// port. Datagrams that are not well-formed announcements are skipped.
//
// The only errors are a failure to bind the discovery port and ctx being
// canceled; in the latter case the addresses collected so far are returned
// alongside ctx.Err(). A deadline on ctx ends the scan like the timeout does.
func (s *Scanner) Find(ctx context.Context, q Query) ([]address.Address, error) {
	bind := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	lc := net.ListenConfig{Control: sockopt.ReuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp4", bind)
	if err != nil {
		return nil, fmt.Errorf("discovery: bind %s: %w", bind, err)
	}
	defer pc.Close()

	deadline := time.Now().Add(q.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := pc.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("discovery: set deadline: %w", err)
	}
	// Wake the blocked read as soon as ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = pc.SetReadDeadline(time.Now())
	})
	defer stop()

	c := newCollector(q)
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, net.ErrClosed) {
				break
			}
			if time.Now().After(deadline) {
				break
			}
			s.log.Debug("discovery read failed", zap.Error(err))
			continue
		}

		data := buf[:n]
		if !protocol.IsAnnouncement(data) {
			continue
		}
		addr, err := protocol.DecodeAnnouncement(data)
		if err != nil {
			s.log.Debug("ignoring malformed announcement", zap.Stringer("from", from), zap.Error(err))
			continue
		}
		if c.add(addr) {
			break
		}
	}

	found := c.result()
	for _, a := range found {
		s.metrics.Discovered(a.Name)
	}
	s.log.Debug("discovery finished", zap.Strings("names", q.Names), zap.Int("found", len(found)))

	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return found, err
	}
	return found, nil
}
