package registry

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"channels/address"
	"channels/protocol"
	"channels/sockopt"
)

// BroadcastPublisher sends one datagram per registered address to a fixed
// destination. Withdraw is a no-op: an address that stops being announced
// simply stops being discovered.
type BroadcastPublisher struct {
	conn net.PacketConn
	dest *net.UDPAddr
}

// Broadcast returns a Dialer for a BroadcastPublisher targeting host:port.
// SO_BROADCAST is set so host may be a broadcast address such as
// 255.255.255.255.
func Broadcast(host string, port int) Dialer {
	return func(ctx context.Context) (Publisher, error) {
		dest, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("resolve discovery destination: %w", err)
		}
		lc := net.ListenConfig{Control: sockopt.Broadcast}
		conn, err := lc.ListenPacket(ctx, "udp4", ":0")
		if err != nil {
			return nil, fmt.Errorf("open announce socket: %w", err)
		}
		return &BroadcastPublisher{conn: conn, dest: dest}, nil
	}
}

func (p *BroadcastPublisher) Publish(_ context.Context, addrs []address.Address) error {
	for _, addr := range addrs {
		if _, err := p.conn.WriteTo(protocol.EncodeAnnouncement(addr), p.dest); err != nil {
			return fmt.Errorf("announce %s: %w", addr.Display(), err)
		}
	}
	return nil
}

func (p *BroadcastPublisher) Withdraw(context.Context, address.Address) error {
	return nil
}

func (p *BroadcastPublisher) Close() error {
	return p.conn.Close()
}
