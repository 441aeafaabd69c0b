package loadbalance

import (
	"sync/atomic"

	"channels/address"
)

// RoundRobinBalancer cycles through the instances in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(addrs []address.Address) (address.Address, error) {
	if len(addrs) == 0 {
		return address.Address{}, ErrNoAddresses
	}
	index := (b.counter.Add(1) - 1) % uint64(len(addrs))
	return addrs[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "round_robin"
}
