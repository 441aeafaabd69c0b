package registry_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"channels/address"
	"channels/discovery"
	"channels/protocol"
	"channels/registry"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	return pc.LocalAddr().(*net.UDPAddr).Port
}

func TestBroadcastConvergence(t *testing.T) {
	port := freeUDPPort(t)
	interval := 50 * time.Millisecond

	reg := registry.NewBroadcast(protocol.LocalHost, port,
		registry.WithInterval(interval), registry.WithLogger(zap.NewNop()))
	t.Cleanup(reg.Shutdown)

	echo := address.New(protocol.LocalHost, "Echo", 41000)
	reg.Register(echo)
	reg.Register(address.New(protocol.LocalHost, "Other", 41001))

	scanner := discovery.NewScanner(discovery.WithPort(port), discovery.WithLogger(zap.NewNop()))
	found, err := scanner.Find(context.Background(), discovery.Query{
		Names:   []string{"Echo"},
		Timeout: 10 * interval,
	})
	require.NoError(t, err)
	assert.Equal(t, []address.Address{echo}, found)
}

func TestBroadcastStopsAfterUnregister(t *testing.T) {
	port := freeUDPPort(t)
	interval := 30 * time.Millisecond

	reg := registry.NewBroadcast(protocol.LocalHost, port,
		registry.WithInterval(interval), registry.WithLogger(zap.NewNop()))
	t.Cleanup(reg.Shutdown)

	echo := address.New(protocol.LocalHost, "Echo", 41000)
	reg.Register(echo)
	reg.Unregister(echo)
	time.Sleep(3 * interval)

	scanner := discovery.NewScanner(discovery.WithPort(port), discovery.WithLogger(zap.NewNop()))
	found, err := scanner.Find(context.Background(), discovery.Query{Timeout: 5 * interval})
	require.NoError(t, err)
	assert.Empty(t, found)
}
