// monitor/monitor.go
package monitor

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/landfluss/protocol"
)

type Metrics struct {
	OnlinePeers      prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	MessagesRelayed  *prometheus.CounterVec
	DeliveryLatency  prometheus.Histogram
	DeliveryTimeouts prometheus.Counter
	Reconnects       prometheus.Counter
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_peers",
			Help:      "Number of connected peers",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of open rooms",
		}),
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Total number of relayed game messages",
		}, []string{"type"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "Time until every recipient acknowledged a message",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		DeliveryTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_timeouts_total",
			Help:      "Messages not acknowledged in time",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Sessions resumed with a token",
		}),
	}

	reg.MustRegister(
		m.OnlinePeers,
		m.ActiveRooms,
		m.MessagesRelayed,
		m.DeliveryLatency,
		m.DeliveryTimeouts,
		m.Reconnects,
	)

	return m
}

// Monitor owns a registry with the relay metrics and the process collectors.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
	relayed   atomic.Int64
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the relay started",
		}, func() float64 {
			return time.Since(m.startTime).Seconds()
		}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Monitor) IncOnlinePeers() {
	m.metrics.OnlinePeers.Inc()
}

func (m *Monitor) DecOnlinePeers() {
	m.metrics.OnlinePeers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

// Relayed is the number of messages relayed since start.
func (m *Monitor) Relayed() int64 {
	return m.relayed.Load()
}

func (m *Monitor) MessageRelayed(msgType uint16) {
	m.metrics.MessagesRelayed.WithLabelValues(protocol.MsgType(msgType).String()).Inc()
	m.relayed.Add(1)
}

func (m *Monitor) DeliveryCompleted(latency time.Duration) {
	m.metrics.DeliveryLatency.Observe(latency.Seconds())
}

func (m *Monitor) DeliveryTimedOut() {
	m.metrics.DeliveryTimeouts.Inc()
}

func (m *Monitor) PlayerReconnected() {
	m.metrics.Reconnects.Inc()
}
