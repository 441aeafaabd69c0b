package discovery

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"channels/address"
	"channels/protocol"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	return pc.LocalAddr().(*net.UDPAddr).Port
}

// announce sends payloads to the scanner port every few milliseconds until ctx is done.
func announce(ctx context.Context, t *testing.T, port int, payloads ...[]byte) {
	t.Helper()
	conn, err := net.Dial("udp4", net.JoinHostPort(protocol.LocalHost, strconv.Itoa(port)))
	require.NoError(t, err)

	go func() {
		defer conn.Close()
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			for _, p := range payloads {
				_, _ = conn.Write(p)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func newTestScanner(port int) *Scanner {
	return NewScanner(WithPort(port), WithLogger(zap.NewNop()))
}

func TestFindTimeoutIsNotAnError(t *testing.T) {
	s := newTestScanner(freeUDPPort(t))

	start := time.Now()
	found, err := s.Find(context.Background(), Query{Names: []string{"Echo"}, Timeout: 100 * time.Millisecond})

	require.NoError(t, err)
	assert.Empty(t, found)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestFindFiltersAndDeduplicates(t *testing.T) {
	port := freeUDPPort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := address.New(protocol.LocalHost, "Echo", 1111)
	other := address.New(protocol.LocalHost, "Other", 2222)
	announce(ctx, t, port,
		protocol.EncodeAnnouncement(echo),
		protocol.EncodeAnnouncement(other),
		[]byte("garbage"),
		[]byte(address.ServiceType+":broken"),
	)

	found, err := newTestScanner(port).Find(context.Background(), Query{Names: []string{"Echo"}, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []address.Address{echo}, found)

	all, err := newTestScanner(port).Find(context.Background(), Query{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, []address.Address{echo, other}, all)
}

func TestFindStopsAtMaxCount(t *testing.T) {
	port := freeUDPPort(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	announce(ctx, t, port,
		protocol.EncodeAnnouncement(address.New(protocol.LocalHost, "Blender", 1)),
		protocol.EncodeAnnouncement(address.New(protocol.LocalHost, "Blender", 2)),
	)

	start := time.Now()
	found, err := newTestScanner(port).Find(context.Background(), Query{Names: []string{"Blender"}, Timeout: 5 * time.Second, MaxCount: 1})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFindHonoursCancellation(t *testing.T) {
	s := newTestScanner(freeUDPPort(t))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	found, err := s.Find(ctx, Query{Timeout: 5 * time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, found)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFindReleasesSocket(t *testing.T) {
	port := freeUDPPort(t)
	s := newTestScanner(port)

	_, err := s.Find(context.Background(), Query{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	// Without SO_REUSEADDR the port is only free again if the scan closed it.
	pc, err := net.ListenPacket("udp4", net.JoinHostPort(protocol.LocalHost, strconv.Itoa(port)))
	require.NoError(t, err)
	pc.Close()
}

func TestCollect(t *testing.T) {
	a := address.New("h", "A", 1)
	b := address.New("h", "B", 2)
	c := address.New("h", "A", 3)

	assert.Equal(t, []address.Address{a, c, b}, Collect(Query{}, []address.Address{b, c, a, a}))
	assert.Equal(t, []address.Address{a, c}, Collect(Query{Names: []string{"A"}}, []address.Address{b, c, a}))
	assert.Equal(t, []address.Address{c}, Collect(Query{Names: []string{"A"}, MaxCount: 1}, []address.Address{b, c, a}))
	assert.Empty(t, Collect(Query{Names: []string{"Z"}}, []address.Address{a, b}))
}
