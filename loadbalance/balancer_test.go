package loadbalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channels/address"
)

var testAddrs = []address.Address{
	address.New("127.0.0.1", "Echo", 8001),
	address.New("127.0.0.1", "Echo", 8002),
	address.New("127.0.0.1", "Echo", 8003),
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{FirstBalancer{}, &RoundRobinBalancer{}, RandomBalancer{}, NewAffinityBalancer("k")} {
		_, err := b.Pick(nil)
		assert.ErrorIs(t, err, ErrNoAddresses, b.Name())
	}
}

func TestFirst(t *testing.T) {
	got, err := FirstBalancer{}.Pick(testAddrs)
	require.NoError(t, err)
	assert.Equal(t, testAddrs[0], got)
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	for round := 0; round < 2; round++ {
		for i := range testAddrs {
			got, err := b.Pick(testAddrs)
			require.NoError(t, err)
			assert.Equal(t, testAddrs[i], got)
		}
	}
}

func TestRandomCoversAll(t *testing.T) {
	seen := map[address.Address]int{}
	for i := 0; i < 3000; i++ {
		got, err := RandomBalancer{}.Pick(testAddrs)
		require.NoError(t, err)
		seen[got]++
	}
	require.Len(t, seen, len(testAddrs))
	for _, n := range seen {
		assert.Greater(t, n, 700)
	}
}

func TestAffinityIsStable(t *testing.T) {
	b := NewAffinityBalancer("FreeCAD")

	first, err := b.Pick(testAddrs)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, _ := b.Pick(testAddrs)
		assert.Equal(t, first, got)
	}

	// Order of the candidates does not matter.
	reversed := []address.Address{testAddrs[2], testAddrs[1], testAddrs[0]}
	got, _ := b.Pick(reversed)
	assert.Equal(t, first, got)
}

func TestAffinitySurvivesRemovalOfOtherInstance(t *testing.T) {
	b := NewAffinityBalancer("FreeCAD")
	owner, _ := b.Pick(testAddrs)

	rest := []address.Address{owner}
	for _, a := range testAddrs {
		if a != owner {
			rest = append(rest, a)
			break
		}
	}

	got, err := b.Pick(rest)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "first", "round_robin", "random", "affinity"} {
		b, err := ByName(name, "k")
		require.NoError(t, err, name)
		assert.NotNil(t, b)
	}
	_, err := ByName("weighted", "")
	assert.Error(t, err)
}
