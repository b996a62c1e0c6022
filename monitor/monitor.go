// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ConnectedPeers     prometheus.Gauge
	ActiveTopics       prometheus.Gauge
	EventsRelayed      prometheus.Counter
	SettlementFailures prometheus.Counter
	RelayLatency       prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Number of peers connected to the relay",
		}),
		ActiveTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_topics",
			Help:      "Number of room topics with at least one subscriber",
		}),
		EventsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_relayed_total",
			Help:      "Total number of broadcast events fanned out",
		}),
		SettlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_total",
			Help:      "Total number of failed wallet delta requests",
		}),
		RelayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_latency_seconds",
			Help:      "Packet fan-out latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	prometheus.MustRegister(
		m.ConnectedPeers,
		m.ActiveTopics,
		m.EventsRelayed,
		m.SettlementFailures,
		m.RelayLatency,
	)

	return m
}

type Monitor struct {
	metrics    *Metrics
	startTime  time.Time
	eventCount int64
	mutex      sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	expvar.Publish("events", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.eventCount
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncConnectedPeers() {
	m.metrics.ConnectedPeers.Inc()
}

func (m *Monitor) DecConnectedPeers() {
	m.metrics.ConnectedPeers.Dec()
}

func (m *Monitor) SetActiveTopics(count int) {
	m.metrics.ActiveTopics.Set(float64(count))
}

func (m *Monitor) IncEventsRelayed() {
	m.metrics.EventsRelayed.Inc()
	m.mutex.Lock()
	m.eventCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncSettlementFailures() {
	m.metrics.SettlementFailures.Inc()
}

func (m *Monitor) ObserveRelayLatency(duration time.Duration) {
	m.metrics.RelayLatency.Observe(duration.Seconds())
}
