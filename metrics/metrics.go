// Package metrics exposes Prometheus collectors for channel services,
// registries and discovery.
//
// A nil *Metrics is valid and records nothing, so components take metrics as
// an optional dependency.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "channels"

// Metrics groups every collector the core records into.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec // channel, status (ok|rejected|error)
	ProbesTotal        *prometheus.CounterVec // channel, status (ok|full)
	QueueDepth         *prometheus.GaugeVec   // channel
	DispatchedTotal    *prometheus.CounterVec // channel
	AnnouncementsTotal *prometheus.CounterVec // channel
	AnnounceErrors     prometheus.Counter
	DiscoveredTotal    *prometheus.CounterVec // channel
}

// New creates the collectors and registers them on reg. A collector that is
// already registered (same descriptor) is reused, so several components can
// share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Submissions received by channel services, by reply status.",
		}, []string{"channel", "status"}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "probes_total",
			Help:      "Status probes answered by channel services.",
		}, []string{"channel", "status"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "queue_depth",
			Help:      "Requests waiting to be drained.",
		}, []string{"channel"}),
		DispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "dispatched_total",
			Help:      "Requests handed to the application handler.",
		}, []string{"channel"}),
		AnnouncementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "announcements_total",
			Help:      "Addresses published by the registry.",
		}, []string{"channel"}),
		AnnounceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "announce_errors_total",
			Help:      "Publish failures that stopped the announce worker.",
		}),
		DiscoveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "found_total",
			Help:      "Distinct addresses returned by discovery scans.",
		}, []string{"channel"}),
	}

	var err error
	m.RequestsTotal = register(reg, m.RequestsTotal, &err)
	m.ProbesTotal = register(reg, m.ProbesTotal, &err)
	m.QueueDepth = register(reg, m.QueueDepth, &err)
	m.DispatchedTotal = register(reg, m.DispatchedTotal, &err)
	m.AnnouncementsTotal = register(reg, m.AnnouncementsTotal, &err)
	m.AnnounceErrors = register(reg, m.AnnounceErrors, &err)
	m.DiscoveredTotal = register(reg, m.DiscoveredTotal, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if *errp != nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errp = err
	}
	return c
}

func (m *Metrics) Request(channel, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) Probe(channel, status string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) SetQueueDepth(channel string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(channel).Set(float64(n))
}

func (m *Metrics) Dispatched(channel string) {
	if m == nil {
		return
	}
	m.DispatchedTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) Announced(channel string) {
	if m == nil {
		return
	}
	m.AnnouncementsTotal.WithLabelValues(channel).Inc()
}

func (m *Metrics) AnnounceFailed() {
	if m == nil {
		return
	}
	m.AnnounceErrors.Inc()
}

func (m *Metrics) Discovered(channel string) {
	if m == nil {
		return
	}
	m.DiscoveredTotal.WithLabelValues(channel).Inc()
}
