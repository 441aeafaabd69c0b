// Package loadbalance chooses one address when discovery finds several
// services answering to the same name.
//
// Four strategies are implemented:
//   - First:      the first address in discovery order (sorted, so stable)
//   - RoundRobin: spread successive picks over every instance
//   - Random:     uniform random choice
//   - Affinity:   a key always lands on the same instance while the set is stable
package loadbalance

import (
	"errors"
	"fmt"

	"channels/address"
)

var ErrNoAddresses = errors.New("loadbalance: no addresses available")

// Balancer is the interface for selection strategies.
type Balancer interface {
	// Pick selects one address from the list. Must be goroutine-safe.
	Pick(addrs []address.Address) (address.Address, error)

	// Name returns the strategy name (for logging/config).
	Name() string
}

// FirstBalancer always picks the first address.
type FirstBalancer struct{}

func (FirstBalancer) Pick(addrs []address.Address) (address.Address, error) {
	if len(addrs) == 0 {
		return address.Address{}, ErrNoAddresses
	}
	return addrs[0], nil
}

func (FirstBalancer) Name() string {
	return "first"
}

// ByName returns the strategy configured under name. key feeds Affinity and
// is ignored by the others.
func ByName(name, key string) (Balancer, error) {
	switch name {
	case "", "first":
		return FirstBalancer{}, nil
	case "round_robin":
		return &RoundRobinBalancer{}, nil
	case "random":
		return RandomBalancer{}, nil
	case "affinity":
		return NewAffinityBalancer(key), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
