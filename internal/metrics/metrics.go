// Package metrics holds the Prometheus collectors of the chartdesk server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chartdesk"

// Metrics groups every collector. Build one per registry with New.
type Metrics struct {
	registry *prometheus.Registry

	mutations     *prometheus.CounterVec
	saveFailures  prometheus.Counter
	renderPasses  *prometheus.CounterVec
	pointerEvents *prometheus.CounterVec
	sessions      prometheus.Gauge
	httpDuration  *prometheus.HistogramVec
	dataRequests  *prometheus.CounterVec
	feedClients   prometheus.Gauge
}

// New registers the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "mutations_total",
			Help:      "Annotation store mutations by operation and kind",
		}, []string{"op", "kind"}),
		saveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "save_failures_total",
			Help:      "Annotation saves that did not reach storage",
		}),
		renderPasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "render_passes_total",
			Help:      "Render passes by kind (full or incremental)",
		}, []string{"pass"}),
		pointerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "pointer_events_total",
			Help:      "Pointer events by type and outcome",
		}, []string{"type", "outcome"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "sessions",
			Help:      "Open chart sessions",
		}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		dataRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "requests_total",
			Help:      "Market data lookups by endpoint and result",
		}, []string{"endpoint", "result"}),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected event feed subscribers",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Mutation(op, kind string) { m.mutations.WithLabelValues(op, kind).Inc() }

func (m *Metrics) SaveFailed() { m.saveFailures.Inc() }

func (m *Metrics) RenderPass(full bool) {
	pass := "incremental"
	if full {
		pass = "full"
	}
	m.renderPasses.WithLabelValues(pass).Inc()
}

// PointerEvent counts one pointer event; processed is false when the event
// was throttled or ignored.
func (m *Metrics) PointerEvent(typ string, processed bool) {
	outcome := "ignored"
	if processed {
		outcome = "processed"
	}
	m.pointerEvents.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) SessionOpened() { m.sessions.Inc() }
func (m *Metrics) SessionClosed() { m.sessions.Dec() }

func (m *Metrics) FeedConnected()    { m.feedClients.Inc() }
func (m *Metrics) FeedDisconnected() { m.feedClients.Dec() }

func (m *Metrics) DataRequest(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dataRequests.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
