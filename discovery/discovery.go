// Package discovery finds channel services announced on the local network.
//
// A Scanner binds the well-known discovery port and listens for announcement
// datagrams for a bounded window; it never sends anything. Running out of time
// is the normal way a scan ends, and an empty result is a valid answer.
//
// Broadcast reach is host and OS dependent: the default destination and bind
// address are both 127.0.0.1:58987, so only processes on the same host see
// each other. Multi-homed or NAT'd hosts need an explicit broadcast host.
package discovery

import (
	"cmp"
	"context"
	"slices"
	"time"

	"channels/address"
)

// DefaultTimeout bounds a scan when Query.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Query selects which announcements a scan keeps.
type Query struct {
	Names    []string      // Channel names to keep; empty keeps every channel
	Timeout  time.Duration // Listening window; zero means DefaultTimeout
	MaxCount int           // Stop after this many distinct matches; zero means no limit
}

// Match reports whether an address named name passes the name filter.
func (q Query) Match(name string) bool {
	return len(q.Names) == 0 || slices.Contains(q.Names, name)
}

func (q Query) timeout() time.Duration {
	if q.Timeout <= 0 {
		return DefaultTimeout
	}
	return q.Timeout
}

// Finder resolves a Query to the set of matching addresses.
type Finder interface {
	Find(ctx context.Context, q Query) ([]address.Address, error)
}

// collector deduplicates matches and tracks MaxCount.
type collector struct {
	q     Query
	seen  map[address.Address]struct{}
	found []address.Address
}

func newCollector(q Query) *collector {
	return &collector{q: q, seen: make(map[address.Address]struct{})}
}

// add records addr and reports whether MaxCount has been reached.
func (c *collector) add(addr address.Address) (full bool) {
	if c.q.MaxCount > 0 && len(c.found) >= c.q.MaxCount {
		return true
	}
	if !c.q.Match(addr.Name) {
		return false
	}
	if _, dup := c.seen[addr]; !dup {
		c.seen[addr] = struct{}{}
		c.found = append(c.found, addr)
	}
	return c.q.MaxCount > 0 && len(c.found) >= c.q.MaxCount
}

func (c *collector) result() []address.Address {
	out := slices.Clone(c.found)
	slices.SortFunc(out, compare)
	return out
}

// Collect applies q's filter, deduplication and MaxCount to addresses found
// by some other means, keeping the first matches in input order.
func Collect(q Query, addrs []address.Address) []address.Address {
	c := newCollector(q)
	for _, a := range addrs {
		if c.add(a) {
			break
		}
	}
	return c.result()
}

func compare(a, b address.Address) int {
	return cmp.Or(
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Host, b.Host),
		cmp.Compare(a.Port, b.Port),
	)
}
