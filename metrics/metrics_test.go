package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecording(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.Request("Echo", "ok")
	m.Request("Echo", "ok")
	m.Request("Echo", "rejected")
	m.SetQueueDepth("Echo", 4)
	m.Announced("Echo")
	m.AnnounceFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("Echo", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("Echo", "rejected")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("Echo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnnouncementsTotal.WithLabelValues("Echo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnnounceErrors))
}

func TestSharedRegistryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.Dispatched("Echo")
	b.Dispatched("Echo")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.DispatchedTotal.WithLabelValues("Echo")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Request("x", "ok")
		m.Probe("x", "ok")
		m.SetQueueDepth("x", 1)
		m.Dispatched("x")
		m.Announced("x")
		m.AnnounceFailed()
		m.Discovered("x")
	})
}
