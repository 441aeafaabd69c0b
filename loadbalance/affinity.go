package loadbalance

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"

	"channels/address"
)

const defaultReplicas = 100

// AffinityBalancer maps a fixed key onto a hash ring of the offered
// addresses, so one sender keeps talking to the same instance as long as
// that instance is still announced.
//
// Each address is placed on the ring as replicas virtual nodes hashed from
// "{token}#{i}" to keep the spread even with only a few instances.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	                ╲   ╱
type AffinityBalancer struct {
	key      string
	replicas int
}

func NewAffinityBalancer(key string) *AffinityBalancer {
	return &AffinityBalancer{key: key, replicas: defaultReplicas}
}

// Pick builds the ring for addrs and returns the owner of the key.
// Discovery results are small, so the ring is rebuilt on every call.
func (b *AffinityBalancer) Pick(addrs []address.Address) (address.Address, error) {
	if len(addrs) == 0 {
		return address.Address{}, ErrNoAddresses
	}

	ring := make([]uint32, 0, len(addrs)*b.replicas)
	nodes := make(map[uint32]address.Address, len(addrs)*b.replicas)
	for _, addr := range addrs {
		token := addr.String()
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(token + "#" + strconv.Itoa(i)))
			if _, taken := nodes[hash]; taken {
				continue
			}
			ring = append(ring, hash)
			nodes[hash] = addr
		}
	}
	slices.Sort(ring)

	hash := crc32.ChecksumIEEE([]byte(b.key))
	idx := sort.Search(len(ring), func(i int) bool {
		return ring[i] >= hash
	})
	// Wrap around the ring.
	if idx == len(ring) {
		idx = 0
	}
	return nodes[ring[idx]], nil
}

func (b *AffinityBalancer) Name() string {
	return "affinity"
}
