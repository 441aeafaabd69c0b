package registry

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"channels/address"
	"channels/discovery"
	"channels/logger"
)

// EtcdRegistry stores channel addresses in etcd instead of broadcasting them,
// for setups where UDP broadcast does not reach the peer process:
//
//	Key:   /channels/{Name}/{Host:Port}
//	Value: address token
//
// Entries are attached to a TTL lease owned by one announce worker run. The
// worker refreshes the lease every cycle, so a crashed process disappears
// after at most TTL. EtcdRegistry is also a discovery.Finder.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared by publishers and Find
	ttl    int64            // lease TTL in seconds
	prefix string
}

// DefaultEtcdTTL must be comfortably larger than the announce interval.
const DefaultEtcdTTL = 10 * time.Second

// NewEtcdRegistry connects to etcd. ttl <= 0 selects DefaultEtcdTTL.
func NewEtcdRegistry(endpoints []string, ttl time.Duration, log *zap.Logger) (*EtcdRegistry, error) {
	if ttl <= 0 {
		ttl = DefaultEtcdTTL
	}
	if log == nil {
		log = logger.Logger("etcd")
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	return &EtcdRegistry{client: c, ttl: int64(ttl / time.Second), prefix: "/channels/"}, nil
}

// Dialer returns the Dialer an Announcer uses to publish into etcd.
func (r *EtcdRegistry) Dialer() Dialer {
	return func(ctx context.Context) (Publisher, error) {
		lease, err := r.client.Grant(ctx, r.ttl)
		if err != nil {
			return nil, fmt.Errorf("grant lease: %w", err)
		}
		return &etcdPublisher{registry: r, lease: lease.ID}, nil
	}
}

// Find lists the addresses stored under the prefix of each queried name, or
// under the whole prefix when q.Names is empty. q.Timeout bounds the lookup.
func (r *EtcdRegistry) Find(ctx context.Context, q discovery.Query) ([]address.Address, error) {
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}

	prefixes := []string{r.prefix}
	if len(q.Names) > 0 {
		prefixes = prefixes[:0]
		for _, name := range q.Names {
			prefixes = append(prefixes, r.prefix+name+"/")
		}
	}

	var found []address.Address
	for _, prefix := range prefixes {
		resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
		if err != nil {
			return nil, fmt.Errorf("etcd get %s: %w", prefix, err)
		}
		for _, kv := range resp.Kvs {
			addr, err := address.Parse(string(kv.Value))
			if err != nil {
				continue // Skip malformed entries
			}
			found = append(found, addr)
		}
	}
	return discovery.Collect(q, found), nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

func (r *EtcdRegistry) key(addr address.Address) string {
	return r.prefix + addr.Name + "/" + addr.HostPort()
}

type etcdPublisher struct {
	registry *EtcdRegistry
	lease    clientv3.LeaseID
}

func (p *etcdPublisher) Publish(ctx context.Context, addrs []address.Address) error {
	c := p.registry.client
	for _, addr := range addrs {
		if _, err := c.Put(ctx, p.registry.key(addr), addr.String(), clientv3.WithLease(p.lease)); err != nil {
			return fmt.Errorf("etcd put %s: %w", addr.Display(), err)
		}
	}
	if _, err := c.KeepAliveOnce(ctx, p.lease); err != nil {
		return fmt.Errorf("etcd keepalive: %w", err)
	}
	return nil
}

func (p *etcdPublisher) Withdraw(ctx context.Context, addr address.Address) error {
	_, err := p.registry.client.Delete(ctx, p.registry.key(addr))
	return err
}

// Close revokes the lease, removing every key this run published.
func (p *etcdPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := p.registry.client.Revoke(ctx, p.lease)
	return err
}
