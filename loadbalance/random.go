package loadbalance

import (
	"math/rand/v2"

	"channels/address"
)

// RandomBalancer picks uniformly. Channel services carry no weight, every
// instance on a host is assumed equal.
type RandomBalancer struct{}

func (RandomBalancer) Pick(addrs []address.Address) (address.Address, error) {
	if len(addrs) == 0 {
		return address.Address{}, ErrNoAddresses
	}
	return addrs[rand.IntN(len(addrs))], nil
}

func (RandomBalancer) Name() string {
	return "random"
}
