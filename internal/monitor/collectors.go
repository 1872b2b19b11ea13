package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// collectors holds the Prometheus view of the monitor. They live in their
// own registry so embedding applications choose whether and where to expose
// them; the core never binds a port.
type collectors struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	items    *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	if namespace == "" {
		namespace = "squadbot"
	}

	c := &collectors{registry: prometheus.NewRegistry()}

	c.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "requests_total",
			Help:      "Total number of requests served by a registry.",
		},
		[]string{"registry", "item", "result"},
	)

	c.latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "request_duration_seconds",
			Help:      "Duration of registry-backed requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"registry"},
	)

	c.items = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "items",
			Help:      "Current number of items held by a registry.",
		},
		[]string{"registry"},
	)

	c.registry.MustRegister(c.requests, c.latency, c.items)
	return c
}

func (c *collectors) observeRequest(registry, item string, success bool, latency time.Duration) {
	if item == "" {
		item = "unknown"
	}
	result := "success"
	if !success {
		result = "error"
	}
	c.requests.WithLabelValues(registry, item, result).Inc()
	c.latency.WithLabelValues(registry).Observe(latency.Seconds())
}

func (c *collectors) setItemCount(registry string, count int) {
	c.items.WithLabelValues(registry).Set(float64(count))
}

// Handler returns an HTTP handler exposing the Prometheus collectors. The
// zero-value handler (no WithPrometheus option) serves empty exposition so
// callers can mount it unconditionally.
func (m *Monitor) Handler() http.Handler {
	if m.collectors == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.collectors.registry, promhttp.HandlerOpts{})
}
