package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "switchboard"

// Metrics owns a private registry. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry         *prometheus.Registry
	calls            *prometheus.CounterVec
	callDuration     *prometheus.HistogramVec
	dispatchAttempts *prometheus.CounterVec
	inFlight         prometheus.Gauge
	proxyRequests    *prometheus.CounterVec
	tenantLookups    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Completed downstream calls by direction and outcome.",
		}, []string{"direction", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Downstream call latency including retries.",
			Buckets:   []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"direction"}),
		dispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "Individual delivery attempts by direction.",
		}, []string{"direction"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_in_flight",
			Help:      "Event dispatches currently running.",
		}),
		proxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Outbound provider proxy requests by provider and status.",
		}, []string{"provider", "status"}),
		tenantLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_lookups_total",
			Help:      "Tenant resolutions by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.calls, m.callDuration, m.dispatchAttempts, m.inFlight, m.proxyRequests, m.tenantLookups,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCall(direction string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.calls.WithLabelValues(direction, outcome).Inc()
	m.callDuration.WithLabelValues(direction).Observe(d.Seconds())
}

func (m *Metrics) ObserveAttempt(direction string) {
	if m == nil {
		return
	}
	m.dispatchAttempts.WithLabelValues(direction).Inc()
}

func (m *Metrics) DispatchStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) DispatchFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) ObserveProxy(provider string, status int) {
	if m == nil {
		return
	}
	m.proxyRequests.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveTenantLookup(result string) {
	if m == nil {
		return
	}
	m.tenantLookups.WithLabelValues(result).Inc()
}
